package kvstore

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/angelmondragon/receiptflow/pkg/errors"
	"github.com/angelmondragon/receiptflow/pkg/redis"
)

type redisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	StateKey(name string) string
}

// Redis keeps each named store under its own namespaced key without expiry.
type Redis struct {
	client redisClient
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, name string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.client.StateKey(name))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return "", false, nil
		}
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis get").WithDetails(name)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, name, value string) error {
	if err := r.client.Set(ctx, r.client.StateKey(name), value, 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis set").WithDetails(name)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, r.client.StateKey(name)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis del").WithDetails(name)
	}
	return nil
}

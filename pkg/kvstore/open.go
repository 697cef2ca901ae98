package kvstore

import (
	"context"
	"fmt"

	"github.com/angelmondragon/receiptflow/pkg/config"
	"github.com/angelmondragon/receiptflow/pkg/db"
	"github.com/angelmondragon/receiptflow/pkg/logger"
	"github.com/angelmondragon/receiptflow/pkg/migrate"
	"github.com/angelmondragon/receiptflow/pkg/redis"
)

// CloseFunc releases whatever connection backs a Store.
type CloseFunc func() error

func noopClose() error { return nil }

// Open builds the Store selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Store, CloseFunc, error) {
	driver := cfg.Storage.NormalizedDriver()
	switch driver {
	case config.StorageDriverMemory:
		return NewMemory(), noopClose, nil

	case config.StorageDriverRedis:
		client, err := redis.New(ctx, cfg.Redis, cfg.Storage.Namespace, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		return NewRedis(client), client.Close, nil

	case config.StorageDriverSQLite, config.StorageDriverPostgres:
		client, err := db.New(ctx, driver, cfg.DB, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap database: %w", err)
		}
		if cfg.DB.AutoMigrate {
			sqlDB, err := client.SQLDB()
			if err != nil {
				_ = client.Close()
				return nil, nil, fmt.Errorf("extracting sql.DB: %w", err)
			}
			if logg != nil {
				logg.Info(logg.WithField(ctx, "driver", driver), "running kv migrations")
			}
			if err := migrate.Up(ctx, sqlDB, driver); err != nil {
				_ = client.Close()
				return nil, nil, err
			}
		}
		return NewSQL(client.DB()), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// Package state implements named, observable in-memory stores whose whole
// state is mirrored into a kvstore.Store after every change.
package state

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	pkgerrors "github.com/angelmondragon/receiptflow/pkg/errors"
	"github.com/angelmondragon/receiptflow/pkg/kvstore"
	"github.com/angelmondragon/receiptflow/pkg/logger"
	"github.com/angelmondragon/receiptflow/pkg/metrics"
)

const snapshotVersion = 0

// Listener is called with the new state after every applied change.
type Listener[T any] func(state T)

// Options carries the collaborators shared by every named store.
type Options struct {
	KV      kvstore.Store
	Logger  *logger.Logger
	Metrics *metrics.EngineMetrics
}

type snapshot[T any] struct {
	State   T   `json:"state"`
	Version int `json:"version"`
}

// Store holds one named piece of engine state. Values handed to listeners
// and returned by GetState must be treated as read-only; mutators build a
// new value instead of editing the current one in place.
type Store[T any] struct {
	name    string
	kv      kvstore.Store
	logg    *logger.Logger
	metrics *metrics.EngineMetrics

	mu        sync.Mutex
	initial   T
	state     T
	listeners map[int]Listener[T]
	nextID    int
}

// New creates a store named name holding initial until hydrated.
func New[T any](name string, initial T, opts Options) *Store[T] {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store[T]{
		name:      name,
		kv:        opts.KV,
		logg:      logg,
		metrics:   opts.Metrics,
		initial:   initial,
		state:     initial,
		listeners: map[int]Listener[T]{},
	}
}

func (s *Store[T]) Name() string {
	return s.name
}

func (s *Store[T]) GetState() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers l and returns a function that removes it.
func (s *Store[T]) Subscribe(l Listener[T]) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Update runs fn against the current state. When fn reports a change the
// new state is swapped in, written through to the key-value store and
// broadcast to listeners. Write failures are logged, never returned: the
// in-memory state stays authoritative for the session.
func (s *Store[T]) Update(ctx context.Context, fn func(current T) (next T, changed bool)) bool {
	s.mu.Lock()
	next, changed := fn(s.state)
	if !changed {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.persistLocked(ctx)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return true
}

// Apply is Update for mutators that also compute a result for the caller.
func Apply[T, R any](ctx context.Context, s *Store[T], fn func(current T) (next T, result R, changed bool)) R {
	var result R
	s.Update(ctx, func(current T) (T, bool) {
		next, r, changed := fn(current)
		result = r
		return next, changed
	})
	return result
}

// Reset restores the initial state and deletes the persisted snapshot.
// A failed delete is logged and counted like a failed write.
func (s *Store[T]) Reset(ctx context.Context) {
	s.mu.Lock()
	s.state = s.initial
	if s.kv != nil {
		if err := s.kv.Remove(ctx, s.name); err != nil {
			s.metrics.IncPersistFailure(s.name)
			s.logg.Error(s.logg.WithStore(ctx, s.name), "remove state snapshot", err)
		}
	}
	listeners := s.listenersLocked()
	current := s.state
	s.mu.Unlock()

	for _, l := range listeners {
		l(current)
	}
}

// Hydrate replaces the in-memory state with the persisted snapshot, if any.
// A missing snapshot keeps the initial state.
func (s *Store[T]) Hydrate(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	raw, ok, err := s.kv.Get(ctx, s.name)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read "+s.name).WithDetails(s.name)
	}
	if !ok {
		return nil
	}
	var snap snapshot[T]
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCorruptState, err, "decode "+s.name).WithDetails(s.name)
	}

	s.mu.Lock()
	s.state = snap.State
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap.State)
	}
	return nil
}

func (s *Store[T]) persistLocked(ctx context.Context) {
	if s.kv == nil {
		return
	}
	logCtx := s.logg.WithStore(ctx, s.name)
	payload, err := json.Marshal(snapshot[T]{State: s.state, Version: snapshotVersion})
	if err != nil {
		s.metrics.IncPersistFailure(s.name)
		s.logg.Error(logCtx, "encode state snapshot", err)
		return
	}
	if err := s.kv.Set(ctx, s.name, string(payload)); err != nil {
		s.metrics.IncPersistFailure(s.name)
		s.logg.Error(logCtx, "write state snapshot", err)
	}
}

func (s *Store[T]) listenersLocked() []Listener[T] {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener[T], 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}

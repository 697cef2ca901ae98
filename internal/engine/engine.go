// Package engine coordinates the ledger, intake queue, wishlist and
// transaction history into the receipt review workflow.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/angelmondragon/receiptflow/internal/channel"
	"github.com/angelmondragon/receiptflow/internal/ledger"
	"github.com/angelmondragon/receiptflow/internal/queue"
	"github.com/angelmondragon/receiptflow/internal/transactions"
	"github.com/angelmondragon/receiptflow/internal/wishlist"
	"github.com/angelmondragon/receiptflow/pkg/config"
	"github.com/angelmondragon/receiptflow/pkg/enums"
	"github.com/angelmondragon/receiptflow/pkg/logger"
	"github.com/angelmondragon/receiptflow/pkg/metrics"
	"github.com/angelmondragon/receiptflow/pkg/state"
	"go.uber.org/multierr"
)

// Params lists the stores and collaborators an Engine drives.
type Params struct {
	Ledger       *ledger.Ledger
	Queue        *queue.Queue
	Channel      *channel.Tracker
	Wishlist     *wishlist.Wishlist
	Transactions *transactions.History
	Logger       *logger.Logger
	Metrics      *metrics.EngineMetrics
}

// Engine serialises the multi-store operations of the review workflow.
// Single-store reads can go straight to the accessors.
//
// Store listeners run inline while an operation holds the engine lock. They
// may call Phase, Progress, SubscribePhase and the store accessors, but must
// not call an operation that mutates engine state.
type Engine struct {
	ledger       *ledger.Ledger
	queue        *queue.Queue
	channel      *channel.Tracker
	wishlist     *wishlist.Wishlist
	transactions *transactions.History
	logg         *logger.Logger
	metrics      *metrics.EngineMetrics

	mu      sync.Mutex
	editing int
	pending []Phase

	// phaseMu guards phase and the phase listeners. phase is written only
	// while mu is also held.
	phaseMu        sync.RWMutex
	phase          Phase
	phaseListeners map[int]func(Phase)
	nextListener   int
}

// New builds an engine over existing stores.
func New(p Params) (*Engine, error) {
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if p.Queue == nil {
		return nil, fmt.Errorf("queue required")
	}
	if p.Channel == nil {
		return nil, fmt.Errorf("channel tracker required")
	}
	if p.Wishlist == nil {
		return nil, fmt.Errorf("wishlist required")
	}
	if p.Transactions == nil {
		return nil, fmt.Errorf("transaction history required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	e := &Engine{
		ledger:         p.Ledger,
		queue:          p.Queue,
		channel:        p.Channel,
		wishlist:       p.Wishlist,
		transactions:   p.Transactions,
		logg:           logg,
		metrics:        p.Metrics,
		editing:        noEdit,
		phaseListeners: map[int]func(Phase){},
	}
	e.phase = e.restingPhase()
	return e, nil
}

// Build creates every named store over opts and wires an engine around them.
func Build(opts state.Options, cfg config.EngineConfig) *Engine {
	e, err := New(Params{
		Ledger:   ledger.New(opts),
		Queue:    queue.New(opts),
		Channel:  channel.New(opts),
		Wishlist: wishlist.New(opts),
		Transactions: transactions.New(transactions.Options{
			State:      opts,
			OrderIDMax: cfg.OrderIDMax,
		}),
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Ledger() *ledger.Ledger              { return e.ledger }
func (e *Engine) Queue() *queue.Queue                 { return e.queue }
func (e *Engine) ChannelTracker() *channel.Tracker    { return e.channel }
func (e *Engine) Wishlist() *wishlist.Wishlist        { return e.wishlist }
func (e *Engine) Transactions() *transactions.History { return e.transactions }
func (e *Engine) Channel() enums.UploadChannel        { return e.channel.Channel() }
func (e *Engine) SetChannel(ctx context.Context, c enums.UploadChannel) {
	e.channel.SetChannel(ctx, c)
}

// Hydrate reloads every named store from the KV store. All stores are
// attempted; failures are combined. The review phase is re-derived from the
// restored ledger.
func (e *Engine) Hydrate(ctx context.Context) error {
	var err error
	err = multierr.Append(err, e.ledger.Store().Hydrate(ctx))
	err = multierr.Append(err, e.queue.Store().Hydrate(ctx))
	err = multierr.Append(err, e.channel.Store().Hydrate(ctx))
	err = multierr.Append(err, e.wishlist.Store().Hydrate(ctx))
	err = multierr.Append(err, e.transactions.Store().Hydrate(ctx))

	e.run(func() {
		e.editing = noEdit
		e.setPhase(e.restingPhase())
	})

	if err != nil {
		e.logg.Error(ctx, "engine hydrate incomplete", err)
		return err
	}
	ctx = e.logg.WithFields(ctx, map[string]any{
		"ledger":       e.ledger.Len(),
		"queue":        e.queue.Len(),
		"wishlist":     e.wishlist.Len(),
		"transactions": e.transactions.Len(),
	})
	e.logg.Info(ctx, "engine hydrated")
	return nil
}

// Reset empties every named store and deletes its persisted snapshot.
func (e *Engine) Reset(ctx context.Context) {
	e.run(func() {
		e.ledger.Store().Reset(ctx)
		e.queue.Store().Reset(ctx)
		e.channel.Store().Reset(ctx)
		e.wishlist.Store().Reset(ctx)
		e.transactions.Store().Reset(ctx)
		e.editing = noEdit
		e.setPhase(PhaseEmpty)
	})
	e.logg.Warn(ctx, "engine state reset")
}

// run executes fn under the engine lock and then delivers any phase changes
// it recorded, outside the lock.
func (e *Engine) run(fn func()) {
	e.mu.Lock()
	fn()
	changes := e.pending
	e.pending = nil
	e.mu.Unlock()
	if len(changes) == 0 {
		return
	}

	e.phaseMu.RLock()
	ids := make([]int, 0, len(e.phaseListeners))
	for id := range e.phaseListeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(Phase), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, e.phaseListeners[id])
	}
	e.phaseMu.RUnlock()

	for _, p := range changes {
		for _, l := range listeners {
			l(p)
		}
	}
}

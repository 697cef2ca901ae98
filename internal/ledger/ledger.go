// Package ledger holds the receipts for the store branch currently under review.
package ledger

import (
	"context"

	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/pkg/logger"
	"github.com/angelmondragon/receiptflow/pkg/metrics"
	"github.com/angelmondragon/receiptflow/pkg/state"
)

// StoreName is the key the ledger snapshot is persisted under.
const StoreName = "receipt-storage"

// State is the persisted ledger shape.
type State struct {
	Receipts []receipts.Receipt `json:"receipts"`
}

// Outcome tells the caller what AddReceipt did.
type Outcome int

const (
	OutcomeAdded Outcome = iota
	OutcomeDuplicate
)

// AddResult is returned by AddReceipt. A duplicate is a normal outcome the
// caller is expected to surface as a warning, not an error.
type AddResult struct {
	Outcome Outcome
	// Receipt is the stored receipt when Outcome is OutcomeAdded.
	Receipt receipts.Receipt
	// Candidate is the draft exactly as it was passed in.
	Candidate receipts.Draft
}

func (r AddResult) Duplicate() bool {
	return r.Outcome == OutcomeDuplicate
}

// Ledger is the working buffer of receipts for one store branch.
type Ledger struct {
	store   *state.Store[State]
	logg    *logger.Logger
	metrics *metrics.EngineMetrics
}

func New(opts state.Options) *Ledger {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Ledger{
		store:   state.New(StoreName, State{}, opts),
		logg:    logg,
		metrics: opts.Metrics,
	}
}

// Store exposes the underlying observable store for hydration and subscriptions.
func (l *Ledger) Store() *state.Store[State] {
	return l.store
}

// Receipts returns a copy of the ledger contents.
func (l *Ledger) Receipts() []receipts.Receipt {
	return receipts.Clone(l.store.GetState().Receipts)
}

func (l *Ledger) Len() int {
	return len(l.store.GetState().Receipts)
}

func (l *Ledger) IsEmpty() bool {
	return l.Len() == 0
}

// ContainsBranch reports whether any ledger receipt belongs to storeBranch.
func (l *Ledger) ContainsBranch(storeBranch string) bool {
	return receipts.ContainsBranch(l.store.GetState().Receipts, storeBranch)
}

// AddReceipt appends candidate under a fresh id unless a receipt with the
// same product and store branch (trimmed, case-insensitive) is present.
func (l *Ledger) AddReceipt(ctx context.Context, candidate receipts.Draft) AddResult {
	result := state.Apply(ctx, l.store, func(current State) (State, AddResult, bool) {
		key := candidate.Key()
		for _, existing := range current.Receipts {
			if existing.Key() == key {
				return current, AddResult{Outcome: OutcomeDuplicate, Candidate: candidate}, false
			}
		}
		added := receipts.New(candidate)
		return appendReceipt(current, added), AddResult{Outcome: OutcomeAdded, Receipt: added, Candidate: candidate}, true
	})

	if result.Duplicate() {
		l.metrics.IncDuplicate()
		logCtx := l.logg.WithStoreBranch(ctx, candidate.StoreBranch)
		l.logg.Warn(l.logg.WithField(logCtx, "product", candidate.ProductName), "duplicate product rejected")
	}
	return result
}

// SetReceipts replaces the ledger contents without any duplicate check.
func (l *Ledger) SetReceipts(ctx context.Context, list []receipts.Receipt) {
	next := receipts.Clone(list)
	l.store.Update(ctx, func(State) (State, bool) {
		return State{Receipts: next}, true
	})
}

// UpdateReceipt replaces the receipt with the same id. Unknown ids are ignored.
func (l *Ledger) UpdateReceipt(ctx context.Context, r receipts.Receipt) bool {
	return l.store.Update(ctx, func(current State) (State, bool) {
		for i, existing := range current.Receipts {
			if existing.ReceiptID != r.ReceiptID {
				continue
			}
			next := receipts.Clone(current.Receipts)
			next[i] = r
			return State{Receipts: next}, true
		}
		return current, false
	})
}

// RemoveReceipt drops the receipt with id. Unknown ids are ignored.
func (l *Ledger) RemoveReceipt(ctx context.Context, id string) bool {
	return l.store.Update(ctx, func(current State) (State, bool) {
		next := make([]receipts.Receipt, 0, len(current.Receipts))
		for _, existing := range current.Receipts {
			if existing.ReceiptID != id {
				next = append(next, existing)
			}
		}
		if len(next) == len(current.Receipts) {
			return current, false
		}
		return State{Receipts: next}, true
	})
}

func (l *Ledger) Clear(ctx context.Context) {
	l.store.Update(ctx, func(State) (State, bool) {
		return State{Receipts: []receipts.Receipt{}}, true
	})
}

// GroupAndSort projects the ledger into branch sections sorted for display.
func (l *Ledger) GroupAndSort() []receipts.BranchGroup {
	return receipts.GroupAndSort(l.Receipts())
}

// RenameBranch moves every ledger receipt at oldName to newName.
func (l *Ledger) RenameBranch(ctx context.Context, oldName, newName string) bool {
	return l.store.Update(ctx, func(current State) (State, bool) {
		next, changed := receipts.RenameBranch(current.Receipts, oldName, newName)
		return State{Receipts: next}, changed
	})
}

func appendReceipt(current State, r receipts.Receipt) State {
	next := make([]receipts.Receipt, 0, len(current.Receipts)+1)
	next = append(next, current.Receipts...)
	next = append(next, r)
	return State{Receipts: next}
}

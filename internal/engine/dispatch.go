package engine

import (
	"context"

	"github.com/angelmondragon/receiptflow/internal/ledger"
	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/internal/transactions"
)

// Destination says where AddSingle put a receipt.
type Destination string

const (
	DestinationQueuedGroup Destination = "queued_group"
	DestinationLedger      Destination = "ledger"
	DestinationNewGroup    Destination = "new_group"
)

// AddSingleResult reports the outcome of AddSingle. When Destination is the
// ledger, Ledger carries the add outcome, including a duplicate rejection.
type AddSingleResult struct {
	Destination Destination
	Receipt     receipts.Receipt
	Ledger      ledger.AddResult
}

func (r AddSingleResult) Duplicate() bool {
	return r.Destination == DestinationLedger && r.Ledger.Duplicate()
}

// AddSingle routes one receipt from a single-item channel. The checks run
// in a fixed order: a queued group for the same store branch wins, then a
// non-empty ledger holding that branch, and otherwise the receipt starts a
// new queued group.
func (e *Engine) AddSingle(ctx context.Context, draft receipts.Draft) AddSingleResult {
	var result AddSingleResult
	e.run(func() {
		r := receipts.New(draft)
		if e.queue.AppendToGroup(ctx, r) {
			result = AddSingleResult{Destination: DestinationQueuedGroup, Receipt: r}
			return
		}
		if !e.ledger.IsEmpty() && e.ledger.ContainsBranch(draft.StoreBranch) {
			added := e.ledger.AddReceipt(ctx, draft)
			result = AddSingleResult{Destination: DestinationLedger, Receipt: added.Receipt, Ledger: added}
			return
		}
		e.queue.PushSingle(ctx, r)
		result = AddSingleResult{Destination: DestinationNewGroup, Receipt: r}
	})

	if !result.Duplicate() {
		e.metrics.IncReceiptAdded(string(result.Destination))
	}
	if result.Destination == DestinationNewGroup {
		e.metrics.IncGroupQueued(e.channel.Channel().String())
	}

	logCtx := e.logg.WithStoreBranch(ctx, draft.StoreBranch)
	e.logg.Debug(e.logg.WithField(logCtx, "destination", string(result.Destination)), "receipt dispatched")
	return result
}

// AddGroup queues a batch of receipts from one store. Empty batches are
// ignored.
func (e *Engine) AddGroup(ctx context.Context, group []receipts.Receipt) bool {
	var added bool
	e.run(func() {
		added = e.queue.AddGroup(ctx, group)
	})
	if !added {
		return false
	}
	ch := e.channel.Channel().String()
	e.metrics.IncGroupQueued(ch)
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"receipts": len(group),
		"queued":   e.queue.Len(),
	})
	e.logg.Debug(e.logg.WithChannel(logCtx, ch), "group queued")
	return true
}

// RenameBranch moves every receipt at oldName to newName in the ledger and
// in every queued group. Wishlist entries and transactions keep their
// names.
func (e *Engine) RenameBranch(ctx context.Context, oldName, newName string) bool {
	var changed bool
	e.run(func() {
		inLedger := e.ledger.RenameBranch(ctx, oldName, newName)
		inQueue := e.queue.RenameBranch(ctx, oldName, newName)
		changed = inLedger || inQueue
	})
	if changed {
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{"from": oldName, "to": newName}), "store branch renamed")
	}
	return changed
}

// Submit materialises the whole wishlist into transaction history and then
// empties the wishlist.
func (e *Engine) Submit(ctx context.Context) []transactions.TransactionItem {
	var items []transactions.TransactionItem
	e.run(func() {
		entries := e.wishlist.Entries()
		if len(entries) == 0 {
			return
		}
		items = e.transactions.Materialize(ctx, entries)
		e.wishlist.Clear(ctx)
	})
	return items
}

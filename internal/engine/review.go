package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/internal/wishlist"
	"github.com/angelmondragon/receiptflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/receiptflow/pkg/errors"
)

const noEdit = -1

// Phase is the position of the review loop.
type Phase string

const (
	PhaseEmpty     Phase = "empty"
	PhaseReviewing Phase = "reviewing"
	PhasePromoting Phase = "promoting"
	PhaseAdvancing Phase = "advancing"
)

// Source says where the receipts under review came from.
type Source string

const (
	SourceNone     Source = "none"
	SourceLedger   Source = "ledger"
	SourceQueue    Source = "queue"
	SourceHistory  Source = "history"
	SourceWishlist Source = "wishlist"
)

// Review describes the ledger contents after StartReview.
type Review struct {
	Source   Source
	Receipts []receipts.Receipt
}

// PromoteResult reports what a promotion did.
type PromoteResult struct {
	Entries []wishlist.Entry
	// Complete is true when the queue ran dry and the session ended.
	Complete bool
}

// ExitDecision is the answer to RequestExit.
type ExitDecision struct {
	// NeedsConfirmation is set when leaving would discard queued groups.
	NeedsConfirmation bool
	PendingGroups     int
}

// Progress is the "(current/total)" review counter.
type Progress struct {
	Current int
	Total   int
}

func (p Progress) String() string {
	return fmt.Sprintf("(%d/%d)", p.Current, p.Total)
}

// Phase returns the current review phase. It is safe to call from store
// and phase listeners.
func (e *Engine) Phase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.phase
}

// SubscribePhase registers l for every phase transition, including the
// transient promoting and advancing steps. It returns an unsubscribe func.
func (e *Engine) SubscribePhase(l func(Phase)) func() {
	e.phaseMu.Lock()
	id := e.nextListener
	e.nextListener++
	e.phaseListeners[id] = l
	e.phaseMu.Unlock()
	return func() {
		e.phaseMu.Lock()
		delete(e.phaseListeners, id)
		e.phaseMu.Unlock()
	}
}

// StartReview loads something into the ledger. A ledger that already holds
// receipts is resumed as is. Otherwise the next queued group is popped into
// it, and with an empty queue the most recent transaction is loaded as a
// fresh copy. With nothing to show the phase stays empty.
func (e *Engine) StartReview(ctx context.Context) Review {
	var review Review
	e.run(func() {
		if !e.ledger.IsEmpty() {
			e.setPhase(PhaseReviewing)
			review = Review{Source: SourceLedger, Receipts: e.ledger.Receipts()}
			return
		}
		if group, ok := e.popNextLocked(ctx); ok {
			review = Review{Source: SourceQueue, Receipts: group}
			return
		}
		if latest, ok := e.transactions.Latest(); ok && len(latest.Receipts) > 0 {
			list := receipts.CloneWithFreshIDs(latest.Receipts)
			e.ledger.SetReceipts(ctx, list)
			e.setPhase(PhaseReviewing)
			review = Review{Source: SourceHistory, Receipts: list}
			return
		}
		review = Review{Source: SourceNone}
	})
	e.logg.Debug(e.logg.WithField(ctx, "source", string(review.Source)), "review started")
	return review
}

// EditWishlistEntry loads the wishlist entry at index into the ledger. The
// next Promote writes the reviewed receipts back over that entry.
func (e *Engine) EditWishlistEntry(ctx context.Context, index int) (Review, error) {
	var (
		review Review
		err    error
	)
	e.run(func() {
		if !e.ledger.IsEmpty() {
			err = pkgerrors.New(pkgerrors.CodeStateConflict, "finish the current review before editing a wishlist entry")
			return
		}
		entry, ok := e.wishlist.Entry(index)
		if !ok {
			err = pkgerrors.New(pkgerrors.CodeNotFound, "wishlist entry not found").WithDetails(map[string]any{"index": index})
			return
		}
		e.ledger.SetReceipts(ctx, entry.Receipts)
		e.editing = index
		e.setPhase(PhaseReviewing)
		review = Review{Source: SourceWishlist, Receipts: entry.Receipts}
	})
	return review, err
}

// Promote turns the reviewed ledger into wishlist entries, one per store
// branch, then advances the queue: the next group is popped into the ledger,
// or, when none is left, the ledger and queue are cleared and the session is
// complete. An empty channel falls back to the tracked upload channel.
func (e *Engine) Promote(ctx context.Context, date time.Time, ch enums.UploadChannel) (PromoteResult, error) {
	var (
		result PromoteResult
		err    error
	)
	e.run(func() {
		if e.phase != PhaseReviewing {
			err = pkgerrors.New(pkgerrors.CodeStateConflict, "nothing is under review").
				WithDetails(map[string]any{"phase": string(e.phase)})
			return
		}
		if ch == "" {
			ch = e.channel.Channel()
		}

		e.setPhase(PhasePromoting)
		groups := e.ledger.GroupAndSort()
		entries := make([]wishlist.Entry, 0, len(groups))
		for _, g := range groups {
			entries = append(entries, wishlist.Entry{
				Receipts:      g.Receipts,
				Date:          date,
				UploadChannel: ch,
			})
		}
		result.Entries = entries

		if e.editing != noEdit {
			e.replaceEditedLocked(ctx, entries)
			e.ledger.Clear(ctx)
			e.setPhase(PhaseEmpty)
			result.Complete = e.queue.Len() == 0
			return
		}

		e.wishlist.Add(ctx, entries...)

		e.setPhase(PhaseAdvancing)
		e.queue.IncrementPosition(ctx)
		if _, ok := e.popNextLocked(ctx); ok {
			return
		}
		e.ledger.Clear(ctx)
		e.queue.Clear(ctx)
		e.setPhase(PhaseEmpty)
		result.Complete = true
	})
	if err != nil {
		return PromoteResult{}, err
	}

	e.metrics.AddPromotions(len(result.Entries))
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"entries":  len(result.Entries),
		"channel":  string(ch),
		"complete": result.Complete,
	})
	e.logg.Info(logCtx, "ledger promoted")
	return result, nil
}

// Confirm promotes the ledger dated now under the tracked upload channel.
func (e *Engine) Confirm(ctx context.Context) (PromoteResult, error) {
	return e.Promote(ctx, time.Now().UTC(), "")
}

// RequestExit asks whether the review screen can be left without losing
// queued groups.
func (e *Engine) RequestExit() ExitDecision {
	pending := e.queue.Len()
	return ExitDecision{NeedsConfirmation: pending > 0, PendingGroups: pending}
}

// ConfirmExit discards every queued group. The ledger is left alone.
func (e *Engine) ConfirmExit(ctx context.Context) {
	pending := e.queue.Len()
	e.run(func() {
		e.queue.Clear(ctx)
		if e.ledger.IsEmpty() {
			e.editing = noEdit
			e.setPhase(PhaseEmpty)
		}
	})
	if pending > 0 {
		e.logg.Warn(e.logg.WithField(ctx, "discarded_groups", pending), "review exited with queued groups")
	}
}

// Progress returns the 1-based position of the group under review against
// the number of groups queued for the session.
func (e *Engine) Progress() Progress {
	total := e.queue.TotalQueued()
	current := e.queue.Position() + 1
	if current > total {
		current = total
	}
	return Progress{Current: current, Total: total}
}

// popNextLocked moves the head of the queue into the ledger.
func (e *Engine) popNextLocked(ctx context.Context) (receipts.Group, bool) {
	group, ok := e.queue.Peek()
	if !ok {
		return nil, false
	}
	e.queue.PopAt(ctx, 0)
	e.ledger.SetReceipts(ctx, group)
	e.setPhase(PhaseReviewing)
	return group, true
}

func (e *Engine) replaceEditedLocked(ctx context.Context, entries []wishlist.Entry) {
	index := e.editing
	e.editing = noEdit
	if len(entries) == 0 {
		e.wishlist.Remove(ctx, index)
		return
	}
	if !e.wishlist.Update(ctx, index, entries[0]) {
		e.wishlist.Add(ctx, entries...)
		return
	}
	e.wishlist.Add(ctx, entries[1:]...)
}

func (e *Engine) restingPhase() Phase {
	if e.ledger.IsEmpty() {
		return PhaseEmpty
	}
	return PhaseReviewing
}

func (e *Engine) setPhase(p Phase) {
	e.phaseMu.Lock()
	changed := e.phase != p
	e.phase = p
	e.phaseMu.Unlock()
	if !changed {
		return
	}
	e.pending = append(e.pending, p)
}

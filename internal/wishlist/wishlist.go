// Package wishlist stores reviewed receipt groups awaiting conversion into
// transaction history.
package wishlist

import (
	"context"
	"time"

	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/pkg/enums"
	"github.com/angelmondragon/receiptflow/pkg/state"
)

const StoreName = "wishList-storage"

// Entry is one checklist item: the receipts of a reviewed group.
type Entry struct {
	Receipts      []receipts.Receipt  `json:"receipts"`
	Date          time.Time           `json:"date"`
	UploadChannel enums.UploadChannel `json:"uploadChannel,omitempty"`
}

type State struct {
	Entries []Entry `json:"wishList"`
}

type Wishlist struct {
	store *state.Store[State]
}

func New(opts state.Options) *Wishlist {
	return &Wishlist{store: state.New(StoreName, State{}, opts)}
}

func (w *Wishlist) Store() *state.Store[State] {
	return w.store
}

// Entries returns a copy of every entry, oldest first.
func (w *Wishlist) Entries() []Entry {
	entries := w.store.GetState().Entries
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func (w *Wishlist) Len() int {
	return len(w.store.GetState().Entries)
}

// Entry returns the entry at index.
func (w *Wishlist) Entry(index int) (Entry, bool) {
	entries := w.store.GetState().Entries
	if index < 0 || index >= len(entries) {
		return Entry{}, false
	}
	return cloneEntry(entries[index]), true
}

// Add appends entries in order.
func (w *Wishlist) Add(ctx context.Context, entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	w.store.Update(ctx, func(current State) (State, bool) {
		next := make([]Entry, 0, len(current.Entries)+len(entries))
		next = append(next, current.Entries...)
		for _, e := range entries {
			next = append(next, cloneEntry(e))
		}
		return State{Entries: next}, true
	})
}

// Update replaces the entry at index. Out of range indexes are ignored.
func (w *Wishlist) Update(ctx context.Context, index int, entry Entry) bool {
	return w.store.Update(ctx, func(current State) (State, bool) {
		if index < 0 || index >= len(current.Entries) {
			return current, false
		}
		next := make([]Entry, len(current.Entries))
		copy(next, current.Entries)
		next[index] = cloneEntry(entry)
		return State{Entries: next}, true
	})
}

// Remove drops the entry at index. Out of range indexes are ignored.
func (w *Wishlist) Remove(ctx context.Context, index int) bool {
	return w.store.Update(ctx, func(current State) (State, bool) {
		if index < 0 || index >= len(current.Entries) {
			return current, false
		}
		next := make([]Entry, 0, len(current.Entries)-1)
		next = append(next, current.Entries[:index]...)
		next = append(next, current.Entries[index+1:]...)
		return State{Entries: next}, true
	})
}

func (w *Wishlist) Clear(ctx context.Context) {
	w.store.Update(ctx, func(State) (State, bool) {
		return State{Entries: []Entry{}}, true
	})
}

// ReAdd puts copies of historical receipts back on the wishlist under
// fresh ids, so edits never reach the original records.
func (w *Wishlist) ReAdd(ctx context.Context, list []receipts.Receipt, date time.Time, channel enums.UploadChannel) Entry {
	entry := Entry{
		Receipts:      receipts.CloneWithFreshIDs(list),
		Date:          date,
		UploadChannel: channel,
	}
	w.Add(ctx, entry)
	return entry
}

func cloneEntry(e Entry) Entry {
	e.Receipts = receipts.Clone(e.Receipts)
	return e
}

// Package queue buffers per-store receipt groups waiting to be reviewed.
package queue

import (
	"context"

	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/pkg/state"
)

const StoreName = "queue-storage"

// State is the persisted queue shape. Groups is FIFO: index 0 is reviewed next.
type State struct {
	Groups []receipts.Group `json:"groups"`
	// CurrentPosition counts popped groups for progress labels; it is not
	// tied to len(Groups).
	CurrentPosition int `json:"currentPosition"`
	// TotalGroupsEverQueued is recomputed as len(Groups) by AddGroup and
	// reset only by Clear.
	TotalGroupsEverQueued int `json:"totalGroupsEverQueued"`
}

type Queue struct {
	store *state.Store[State]
}

func New(opts state.Options) *Queue {
	return &Queue{store: state.New(StoreName, State{}, opts)}
}

func (q *Queue) Store() *state.Store[State] {
	return q.store
}

// Groups returns a copy of the queued groups.
func (q *Queue) Groups() []receipts.Group {
	return cloneGroups(q.store.GetState().Groups)
}

func (q *Queue) Len() int {
	return len(q.store.GetState().Groups)
}

func (q *Queue) Position() int {
	return q.store.GetState().CurrentPosition
}

func (q *Queue) TotalQueued() int {
	return q.store.GetState().TotalGroupsEverQueued
}

// AddGroup appends a whole store group to the tail. Empty groups are ignored.
func (q *Queue) AddGroup(ctx context.Context, group []receipts.Receipt) bool {
	if len(group) == 0 {
		return false
	}
	g := receipts.Group(receipts.Clone(group))
	return q.store.Update(ctx, func(current State) (State, bool) {
		next := current
		next.Groups = append(cloneGroups(current.Groups), g)
		next.TotalGroupsEverQueued = len(next.Groups)
		return next, true
	})
}

// AppendToGroup appends r to the first queued group holding a receipt for
// the same store branch. It reports false, leaving the queue untouched,
// when no such group exists.
func (q *Queue) AppendToGroup(ctx context.Context, r receipts.Receipt) bool {
	return q.store.Update(ctx, func(current State) (State, bool) {
		for i, g := range current.Groups {
			if !receipts.ContainsBranch(g, r.StoreBranch) {
				continue
			}
			next := current
			next.Groups = cloneGroups(current.Groups)
			next.Groups[i] = append(next.Groups[i], r)
			return next, true
		}
		return current, false
	})
}

// PushSingle starts a new one-receipt group at the tail.
func (q *Queue) PushSingle(ctx context.Context, r receipts.Receipt) {
	q.store.Update(ctx, func(current State) (State, bool) {
		next := current
		next.Groups = append(cloneGroups(current.Groups), receipts.Group{r})
		return next, true
	})
}

// Peek returns the group that will be reviewed next.
func (q *Queue) Peek() (receipts.Group, bool) {
	groups := q.store.GetState().Groups
	if len(groups) == 0 {
		return nil, false
	}
	return receipts.Group(receipts.Clone(groups[0])), true
}

// PopAt removes the group at index. Out of range indexes are ignored.
func (q *Queue) PopAt(ctx context.Context, index int) bool {
	return q.store.Update(ctx, func(current State) (State, bool) {
		if index < 0 || index >= len(current.Groups) {
			return current, false
		}
		next := current
		next.Groups = make([]receipts.Group, 0, len(current.Groups)-1)
		next.Groups = append(next.Groups, current.Groups[:index]...)
		next.Groups = append(next.Groups, current.Groups[index+1:]...)
		return next, true
	})
}

// Clear drops every group and resets both counters.
func (q *Queue) Clear(ctx context.Context) {
	q.store.Update(ctx, func(State) (State, bool) {
		return State{Groups: []receipts.Group{}}, true
	})
}

func (q *Queue) SetPosition(ctx context.Context, position int) {
	q.store.Update(ctx, func(current State) (State, bool) {
		next := current
		next.CurrentPosition = position
		return next, current.CurrentPosition != position
	})
}

func (q *Queue) IncrementPosition(ctx context.Context) {
	q.store.Update(ctx, func(current State) (State, bool) {
		next := current
		next.CurrentPosition++
		return next, true
	})
}

// RenameBranch moves every queued receipt at oldName to newName.
func (q *Queue) RenameBranch(ctx context.Context, oldName, newName string) bool {
	return q.store.Update(ctx, func(current State) (State, bool) {
		var groups []receipts.Group
		for i, g := range current.Groups {
			renamed, changed := receipts.RenameBranch(g, oldName, newName)
			if !changed {
				continue
			}
			if groups == nil {
				groups = cloneGroups(current.Groups)
			}
			groups[i] = renamed
		}
		if groups == nil {
			return current, false
		}
		next := current
		next.Groups = groups
		return next, true
	})
}

// cloneGroups copies every group so the result shares no receipt arrays
// with groups.
func cloneGroups(groups []receipts.Group) []receipts.Group {
	out := make([]receipts.Group, len(groups))
	for i, g := range groups {
		out[i] = receipts.Group(receipts.Clone(g))
	}
	return out
}

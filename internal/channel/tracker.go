// Package channel records which intake channel is currently feeding the engine.
package channel

import (
	"context"

	"github.com/angelmondragon/receiptflow/pkg/enums"
	"github.com/angelmondragon/receiptflow/pkg/state"
)

const StoreName = "upload-channel-storage"

type State struct {
	Channel enums.UploadChannel `json:"uploadChannel"`
}

// Tracker holds a single process-wide channel value, overwritten by
// whichever intake flow started last.
type Tracker struct {
	store *state.Store[State]
}

func New(opts state.Options) *Tracker {
	return &Tracker{store: state.New(StoreName, State{}, opts)}
}

func (t *Tracker) Store() *state.Store[State] {
	return t.store
}

func (t *Tracker) SetChannel(ctx context.Context, c enums.UploadChannel) {
	t.store.Update(ctx, func(current State) (State, bool) {
		return State{Channel: c}, current.Channel != c
	})
}

// Channel returns the last channel set, or "" when none has been.
func (t *Tracker) Channel() enums.UploadChannel {
	return t.store.GetState().Channel
}

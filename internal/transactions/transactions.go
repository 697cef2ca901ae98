// Package transactions turns reviewed wishlist entries into immutable
// order history records.
package transactions

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/internal/wishlist"
	"github.com/angelmondragon/receiptflow/pkg/enums"
	"github.com/angelmondragon/receiptflow/pkg/logger"
	"github.com/angelmondragon/receiptflow/pkg/metrics"
	"github.com/angelmondragon/receiptflow/pkg/state"
)

const (
	StoreName = "transaction-storage"

	// DefaultOrderIDMax bounds the random part of generated order ids.
	DefaultOrderIDMax = 1000
	orderIDPrefix     = "#AB"
)

// TransactionItem is one historical order: the receipts of a single store
// branch taken from one wishlist entry.
type TransactionItem struct {
	OrderID       string              `json:"orderId"`
	NewDate       time.Time           `json:"newDate"`
	StoreName     string              `json:"storeName"`
	SubTotal      string              `json:"subTotal"`
	OrderStatus   enums.OrderStatus   `json:"orderStatus"`
	InWishlist    bool                `json:"inWishlist"`
	Receipts      []receipts.Receipt  `json:"reciept"`
	UploadChannel enums.UploadChannel `json:"uploadChannel"`
}

type State struct {
	Transactions []TransactionItem `json:"transactions"`
}

// Options configures a History.
type Options struct {
	State state.Options
	// OrderIDMax is the exclusive upper bound of the numeric order id part.
	OrderIDMax int
	// IntN returns a random integer in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
}

// History is the persisted, most-recent-first list of transactions.
type History struct {
	store      *state.Store[State]
	logg       *logger.Logger
	metrics    *metrics.EngineMetrics
	orderIDMax int
	intN       func(n int) int
}

func New(opts Options) *History {
	logg := opts.State.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	orderIDMax := opts.OrderIDMax
	if orderIDMax <= 0 {
		orderIDMax = DefaultOrderIDMax
	}
	intN := opts.IntN
	if intN == nil {
		intN = rand.IntN
	}
	return &History{
		store:      state.New(StoreName, State{}, opts.State),
		logg:       logg,
		metrics:    opts.State.Metrics,
		orderIDMax: orderIDMax,
		intN:       intN,
	}
}

func (h *History) Store() *state.Store[State] {
	return h.store
}

// List returns every transaction, most recently materialised first.
func (h *History) List() []TransactionItem {
	return cloneItems(h.store.GetState().Transactions)
}

func (h *History) Len() int {
	return len(h.store.GetState().Transactions)
}

// Latest returns the most recently materialised transaction.
func (h *History) Latest() (TransactionItem, bool) {
	items := h.store.GetState().Transactions
	if len(items) == 0 {
		return TransactionItem{}, false
	}
	return cloneItem(items[0]), true
}

// Materialize emits one transaction per store branch of every entry and
// puts the batch, in emission order, ahead of the existing history.
// Order ids are random and may collide.
func (h *History) Materialize(ctx context.Context, entries []wishlist.Entry) []TransactionItem {
	var emitted []TransactionItem
	for _, entry := range entries {
		channel := entry.UploadChannel
		if channel == "" {
			channel = enums.UploadChannelFormFilling
		}
		for _, group := range receipts.PartitionByBranch(entry.Receipts) {
			emitted = append(emitted, TransactionItem{
				OrderID:       h.nextOrderID(),
				NewDate:       entry.Date,
				StoreName:     group.StoreBranch,
				SubTotal:      receipts.SubTotal(group.Receipts).StringFixed(2),
				OrderStatus:   enums.OrderStatusEstimated,
				InWishlist:    false,
				Receipts:      receipts.Clone(group.Receipts),
				UploadChannel: channel,
			})
		}
	}
	if len(emitted) == 0 {
		return nil
	}

	h.store.Update(ctx, func(current State) (State, bool) {
		next := make([]TransactionItem, 0, len(emitted)+len(current.Transactions))
		next = append(next, emitted...)
		next = append(next, current.Transactions...)
		return State{Transactions: next}, true
	})

	h.metrics.AddTransactions(len(emitted))
	ctx = h.logg.WithFields(ctx, map[string]any{
		"entries":      len(entries),
		"transactions": len(emitted),
	})
	h.logg.Info(ctx, "transactions materialized")
	return cloneItems(emitted)
}

func (h *History) nextOrderID() string {
	return fmt.Sprintf("%s%d", orderIDPrefix, h.intN(h.orderIDMax))
}

func cloneItems(items []TransactionItem) []TransactionItem {
	out := make([]TransactionItem, len(items))
	for i, item := range items {
		out[i] = cloneItem(item)
	}
	return out
}

func cloneItem(item TransactionItem) TransactionItem {
	item.Receipts = receipts.Clone(item.Receipts)
	return item
}

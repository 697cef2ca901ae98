package engine

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/receiptflow/internal/ledger"
	"github.com/angelmondragon/receiptflow/internal/queue"
	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/internal/transactions"
	"github.com/angelmondragon/receiptflow/internal/wishlist"
	"github.com/angelmondragon/receiptflow/pkg/config"
	"github.com/angelmondragon/receiptflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/receiptflow/pkg/errors"
	"github.com/angelmondragon/receiptflow/pkg/kvstore"
	"github.com/angelmondragon/receiptflow/pkg/metrics"
	"github.com/angelmondragon/receiptflow/pkg/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

var newYear = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, kv kvstore.Store) *Engine {
	t.Helper()
	return Build(state.Options{KV: kv}, config.EngineConfig{OrderIDMax: 1000})
}

func draft(branch, product string, subTotal int64) receipts.Draft {
	return receipts.Draft{
		StoreBranch: branch,
		ProductName: product,
		Quantity:    1,
		UnitPrice:   decimal.NewFromInt(subTotal),
		SubTotal:    decimal.NewFromInt(subTotal),
	}
}

func group(branch string, products ...string) []receipts.Receipt {
	out := make([]receipts.Receipt, 0, len(products))
	for _, p := range products {
		out = append(out, receipts.New(draft(branch, p, 1)))
	}
	return out
}

func TestNewRequiresStores(t *testing.T) {
	_, err := New(Params{})
	require.Error(t, err)

	opts := state.Options{}
	_, err = New(Params{
		Ledger:       ledger.New(opts),
		Queue:        queue.New(opts),
		Wishlist:     wishlist.New(opts),
		Transactions: transactions.New(transactions.Options{}),
	})
	require.EqualError(t, err, "channel tracker required")
}

func TestAddSingleDispatchPriority(t *testing.T) {
	ctx := context.Background()

	t.Run("queued group wins over ledger", func(t *testing.T) {
		e := newEngine(t, nil)
		e.Ledger().SetReceipts(ctx, group("X", "Milk"))
		require.True(t, e.AddGroup(ctx, group("X", "Bread")))

		res := e.AddSingle(ctx, draft("X", "Eggs", 2))
		assert.Equal(t, DestinationQueuedGroup, res.Destination)
		assert.Equal(t, 1, e.Ledger().Len())
		assert.Len(t, e.Queue().Groups()[0], 2)
		assert.Equal(t, 1, e.Queue().Len())
	})

	t.Run("ledger when no queued group", func(t *testing.T) {
		e := newEngine(t, nil)
		e.Ledger().SetReceipts(ctx, group("X", "Milk"))

		res := e.AddSingle(ctx, draft("X", "Eggs", 2))
		assert.Equal(t, DestinationLedger, res.Destination)
		assert.False(t, res.Duplicate())
		assert.Equal(t, 2, e.Ledger().Len())
		assert.Equal(t, 0, e.Queue().Len())
		assert.NotEmpty(t, res.Receipt.ReceiptID)
	})

	t.Run("new group otherwise", func(t *testing.T) {
		e := newEngine(t, nil)
		e.Ledger().SetReceipts(ctx, group("Y", "Milk"))

		res := e.AddSingle(ctx, draft("X", "Eggs", 2))
		assert.Equal(t, DestinationNewGroup, res.Destination)
		assert.Equal(t, 1, e.Ledger().Len())
		require.Equal(t, 1, e.Queue().Len())
		assert.Equal(t, "X", e.Queue().Groups()[0][0].StoreBranch)
	})

	t.Run("ledger duplicate is signalled", func(t *testing.T) {
		e := newEngine(t, nil)
		e.Ledger().SetReceipts(ctx, group("Downtown", "Milk"))

		res := e.AddSingle(ctx, draft("Downtown", "  MILK ", 2))
		assert.True(t, res.Duplicate())
		assert.Equal(t, 1, e.Ledger().Len())
	})
}

func TestLedgerDedupNeverHoldsTwoKeys(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	e.Ledger().SetReceipts(ctx, group("Downtown", "Milk"))

	res := e.Ledger().AddReceipt(ctx, draft("downtown", "MILK", 1))
	require.True(t, res.Duplicate())
	e.AddSingle(ctx, draft("Downtown", "Eggs", 1))
	e.AddSingle(ctx, draft(" downtown", "eggs ", 1))

	seen := map[receipts.Key]string{}
	for _, r := range e.Ledger().Receipts() {
		if other, ok := seen[r.Key()]; ok {
			t.Fatalf("receipts %s and %s share key %+v", other, r.ReceiptID, r.Key())
		}
		seen[r.Key()] = r.ReceiptID
	}
	assert.Len(t, seen, 2)
}

func TestRenameBranchCascade(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	e.AddGroup(ctx, group("Downtown", "Bread"))
	e.AddGroup(ctx, group("Uptown", "Rice"))
	e.StartReview(ctx)
	_, err := e.Promote(ctx, newYear, enums.UploadChannelPhotos)
	require.NoError(t, err)
	require.Equal(t, 1, e.Wishlist().Len())

	e.Ledger().SetReceipts(ctx, group("Downtown", "Milk"))
	e.AddGroup(ctx, group("Downtown", "Eggs"))

	require.True(t, e.RenameBranch(ctx, "Downtown", "Downtown Central"))

	for _, r := range e.Ledger().Receipts() {
		assert.Equal(t, "Downtown Central", r.StoreBranch)
	}
	for _, g := range e.Queue().Groups() {
		for _, r := range g {
			assert.NotEqual(t, "Downtown", r.StoreBranch)
		}
	}
	assert.Equal(t, "Downtown", e.Wishlist().Entries()[0].Receipts[0].StoreBranch)
	assert.False(t, e.RenameBranch(ctx, "Nowhere", "Somewhere"))
}

func TestPromoteAdvancesQueue(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	e.AddGroup(ctx, group("A", "Bread"))
	e.AddGroup(ctx, group("B", "Milk"))
	e.AddGroup(ctx, group("C", "Eggs"))
	e.AddGroup(ctx, group("D", "Rice"))

	review := e.StartReview(ctx)
	require.Equal(t, SourceQueue, review.Source)
	require.Equal(t, 3, e.Queue().Len())
	require.Equal(t, 0, e.Queue().Position())
	assert.Equal(t, "(1/4)", e.Progress().String())

	nextHead, ok := e.Queue().Peek()
	require.True(t, ok)

	res, err := e.Promote(ctx, newYear, enums.UploadChannelCSV)
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, 2, e.Queue().Len())
	assert.Equal(t, 1, e.Queue().Position())
	assert.Equal(t, []receipts.Receipt(nextHead), e.Ledger().Receipts())
	assert.Equal(t, PhaseReviewing, e.Phase())
	assert.Equal(t, "(2/4)", e.Progress().String())
}

func TestPromoteSplitsMixedLedger(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	e.Ledger().SetReceipts(ctx, append(group("b-store", "Milk"), group("A-store", "Tea", "Bread")...))
	e.StartReview(ctx)

	res, err := e.Promote(ctx, newYear, enums.UploadChannelFormFilling)
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	entries := e.Wishlist().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "A-store", entries[0].Receipts[0].StoreBranch)
	assert.Equal(t, "Bread", entries[0].Receipts[0].ProductName)
	assert.Equal(t, "b-store", entries[1].Receipts[0].StoreBranch)
	assert.True(t, res.Complete)
	assert.Equal(t, PhaseEmpty, e.Phase())
}

func TestPromoteOutsideReviewIsStateConflict(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Promote(context.Background(), newYear, enums.UploadChannelPhotos)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 0, e.Wishlist().Len())
}

func TestPhaseTransitions(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	var seen []Phase
	unsubscribe := e.SubscribePhase(func(p Phase) { seen = append(seen, p) })

	e.AddGroup(ctx, group("A", "Bread"))
	e.AddGroup(ctx, group("B", "Milk"))
	e.StartReview(ctx)
	_, err := e.Promote(ctx, newYear, "")
	require.NoError(t, err)
	_, err = e.Promote(ctx, newYear, "")
	require.NoError(t, err)

	assert.Equal(t, []Phase{
		PhaseReviewing,
		PhasePromoting, PhaseAdvancing, PhaseReviewing,
		PhasePromoting, PhaseAdvancing, PhaseEmpty,
	}, seen)

	unsubscribe()
	e.AddGroup(ctx, group("C", "Eggs"))
	e.StartReview(ctx)
	assert.Len(t, seen, 7)
}

func TestStoreListenersCanReadEngineState(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	e.AddGroup(ctx, group("A", "Bread"))
	e.AddGroup(ctx, group("B", "Milk"))

	var phases []Phase
	var progress []Progress
	e.Ledger().Store().Subscribe(func(ledger.State) {
		phases = append(phases, e.Phase())
		progress = append(progress, e.Progress())
	})
	e.SubscribePhase(func(Phase) { _ = e.Phase() })

	done := make(chan error, 1)
	go func() {
		e.StartReview(ctx)
		_, err := e.Promote(ctx, newYear, "")
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine operation blocked on a store listener reading engine state")
	}
	require.NotEmpty(t, phases)
	assert.Equal(t, PhaseReviewing, e.Phase())
	assert.Equal(t, len(phases), len(progress))
}

func TestReceiptsAddedCountedByDestination(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	e := Build(state.Options{Metrics: metrics.NewEngineMetrics(reg)}, config.EngineConfig{OrderIDMax: 1000})

	e.AddSingle(ctx, draft("A", "Bread", 1))
	e.StartReview(ctx)
	e.AddSingle(ctx, draft("A", "Milk", 1))
	e.AddSingle(ctx, draft("A", "Milk", 1))
	e.AddGroup(ctx, group("B", "Eggs"))
	e.AddSingle(ctx, draft("B", "Tea", 1))

	assert.Equal(t, map[string]float64{
		string(DestinationNewGroup):    1,
		string(DestinationLedger):      1,
		string(DestinationQueuedGroup): 1,
	}, counterByLabel(t, reg, "receipts_added_total", "destination"))
	assert.Equal(t, map[string]float64{"": 1}, counterByLabel(t, reg, "receipts_duplicate_total", ""))
}

func counterByLabel(t *testing.T, reg *prometheus.Registry, name, label string) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label {
					key = lp.GetValue()
				}
			}
			out[key] += m.GetCounter().GetValue()
		}
	}
	return out
}

func TestStartReviewFallsBackToLatestTransaction(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	assert.Equal(t, SourceNone, e.StartReview(ctx).Source)
	assert.Equal(t, PhaseEmpty, e.Phase())

	e.Wishlist().Add(ctx, wishlist.Entry{Receipts: group("Aldi", "Bread"), Date: newYear})
	items := e.Submit(ctx)
	require.Len(t, items, 1)

	review := e.StartReview(ctx)
	require.Equal(t, SourceHistory, review.Source)
	require.Len(t, review.Receipts, 1)
	assert.NotEqual(t, items[0].Receipts[0].ReceiptID, review.Receipts[0].ReceiptID)
	assert.Equal(t, PhaseReviewing, e.Phase())

	again := e.StartReview(ctx)
	assert.Equal(t, SourceLedger, again.Source)
}

func TestEditWishlistEntry(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	e.Wishlist().Add(ctx,
		wishlist.Entry{Receipts: group("A", "Bread"), Date: newYear},
		wishlist.Entry{Receipts: group("B", "Milk"), Date: newYear},
	)

	_, err := e.EditWishlistEntry(ctx, 5)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	review, err := e.EditWishlistEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, SourceWishlist, review.Source)

	_, err = e.EditWishlistEntry(ctx, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	e.AddSingle(ctx, draft("B", "Butter", 4))
	_, err = e.Promote(ctx, newYear, enums.UploadChannelBarcode)
	require.NoError(t, err)

	entries := e.Wishlist().Entries()
	require.Len(t, entries, 2)
	assert.Len(t, entries[1].Receipts, 2)
	assert.Equal(t, enums.UploadChannelBarcode, entries[1].UploadChannel)
	assert.True(t, e.Ledger().IsEmpty())
	assert.Equal(t, PhaseEmpty, e.Phase())
}

func TestExitGuard(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	assert.False(t, e.RequestExit().NeedsConfirmation)

	e.AddGroup(ctx, group("A", "Bread"))
	e.AddGroup(ctx, group("B", "Milk"))
	e.StartReview(ctx)

	decision := e.RequestExit()
	assert.True(t, decision.NeedsConfirmation)
	assert.Equal(t, 1, decision.PendingGroups)
	assert.Equal(t, 1, e.Queue().Len(), "asking must not clear anything")

	e.ConfirmExit(ctx)
	assert.Equal(t, 0, e.Queue().Len())
	assert.Equal(t, 0, e.Queue().TotalQueued())
	assert.Equal(t, 1, e.Ledger().Len())
	assert.False(t, e.RequestExit().NeedsConfirmation)
}

func TestEndToEndSession(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	e := newEngine(t, kv)

	require.True(t, e.AddGroup(ctx, []receipts.Receipt{receipts.New(draft("Aldi", "Bread", 3))}))
	require.Equal(t, 1, e.Queue().Len())

	e.StartReview(ctx)
	require.Equal(t, 1, e.Ledger().Len())
	require.Equal(t, 0, e.Queue().Len())

	res, err := e.Promote(ctx, newYear, enums.UploadChannelPhotos)
	require.NoError(t, err)
	assert.True(t, res.Complete)
	require.Equal(t, 1, e.Wishlist().Len())
	assert.Equal(t, enums.UploadChannelPhotos, e.Wishlist().Entries()[0].UploadChannel)
	assert.True(t, e.Ledger().IsEmpty())
	assert.Equal(t, 0, e.Queue().Len())

	items := e.Submit(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, 1, e.Transactions().Len())
	latest, _ := e.Transactions().Latest()
	assert.Equal(t, "Aldi", latest.StoreName)
	assert.Equal(t, "3.00", latest.SubTotal)
	assert.Equal(t, 0, e.Wishlist().Len())

	restored := newEngine(t, kv)
	require.NoError(t, restored.Hydrate(ctx))
	assert.Equal(t, 1, restored.Transactions().Len())
	assert.Equal(t, PhaseEmpty, restored.Phase())
}

func TestHydrateRestoresReviewPhase(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	e := newEngine(t, kv)
	e.SetChannel(ctx, enums.UploadChannelCSV)
	e.AddGroup(ctx, group("A", "Bread"))
	e.AddGroup(ctx, group("B", "Milk"))
	e.StartReview(ctx)

	restored := newEngine(t, kv)
	require.NoError(t, restored.Hydrate(ctx))
	assert.Equal(t, PhaseReviewing, restored.Phase())
	assert.Equal(t, enums.UploadChannelCSV, restored.Channel())
	assert.Equal(t, 1, restored.Queue().Len())
	assert.Equal(t, "(1/2)", restored.Progress().String())
}

func TestHydrateCombinesFailures(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, ledger.StoreName, "{not json"))
	require.NoError(t, kv.Set(ctx, wishlist.StoreName, "[]"))

	e := newEngine(t, kv)
	err := e.Hydrate(ctx)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCorruptState))
	}
}

func TestResetClearsPersistedState(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	e := newEngine(t, kv)
	e.AddGroup(ctx, group("A", "Bread"))
	e.StartReview(ctx)
	e.Wishlist().Add(ctx, wishlist.Entry{Receipts: group("B", "Milk"), Date: newYear})

	e.Reset(ctx)
	assert.Equal(t, PhaseEmpty, e.Phase())
	assert.True(t, e.Ledger().IsEmpty())
	assert.Equal(t, 0, e.Wishlist().Len())

	for _, name := range []string{ledger.StoreName, queue.StoreName, wishlist.StoreName} {
		_, ok, err := kv.Get(ctx, name)
		require.NoError(t, err)
		assert.False(t, ok, "snapshot %s should be gone", name)
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics counts receipt engine activity.
type EngineMetrics struct {
	receiptsAdded   *prometheus.CounterVec
	duplicates      prometheus.Counter
	groupsQueued    *prometheus.CounterVec
	promotions      prometheus.Counter
	transactions    prometheus.Counter
	persistFailures *prometheus.CounterVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	receiptsAdded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipts_added_total",
		Help: "Receipts accepted into the ledger or intake queue.",
	}, []string{"destination"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "receipts_duplicate_total",
		Help: "Receipts rejected because the product already exists for the store.",
	})
	groupsQueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_groups_queued_total",
		Help: "Receipt groups appended to the intake queue.",
	}, []string{"channel"})
	promotions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wishlist_promotions_total",
		Help: "Wishlist entries created from reviewed ledgers.",
	})
	transactions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transactions_materialized_total",
		Help: "Transaction records created from wishlist entries.",
	})
	persistFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "state_persist_failures_total",
		Help: "Snapshot writes to the key-value store that failed.",
	}, []string{"store"})
	reg.MustRegister(receiptsAdded, duplicates, groupsQueued, promotions, transactions, persistFailures)
	return &EngineMetrics{
		receiptsAdded:   receiptsAdded,
		duplicates:      duplicates,
		groupsQueued:    groupsQueued,
		promotions:      promotions,
		transactions:    transactions,
		persistFailures: persistFailures,
	}
}

// IncReceiptAdded records a receipt landing in the ledger or the queue.
func (m *EngineMetrics) IncReceiptAdded(destination string) {
	if m == nil || m.receiptsAdded == nil {
		return
	}
	m.receiptsAdded.WithLabelValues(normalizeLabel(destination)).Inc()
}

func (m *EngineMetrics) IncDuplicate() {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *EngineMetrics) IncGroupQueued(channel string) {
	if m == nil || m.groupsQueued == nil {
		return
	}
	m.groupsQueued.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *EngineMetrics) AddPromotions(n int) {
	if m == nil || m.promotions == nil || n <= 0 {
		return
	}
	m.promotions.Add(float64(n))
}

func (m *EngineMetrics) AddTransactions(n int) {
	if m == nil || m.transactions == nil || n <= 0 {
		return
	}
	m.transactions.Add(float64(n))
}

// IncPersistFailure increments the failure counter for the named store.
func (m *EngineMetrics) IncPersistFailure(store string) {
	if m == nil || m.persistFailures == nil {
		return
	}
	m.persistFailures.WithLabelValues(normalizeLabel(store)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// Package metrics exposes ledger counters in Prometheus format.
// All Record* methods are safe to call on nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rewardledger"

type Metrics struct {
	Registry *prometheus.Registry

	ledgerOps        *prometheus.CounterVec
	ledgerAmount     *prometheus.CounterVec
	taskRewards      *prometheus.CounterVec
	commissions      *prometheus.CounterVec
	commissionFailed prometheus.Counter
	withdrawals      *prometheus.CounterVec
	tierChanges      *prometheus.CounterVec
	conflictRetries  prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Balance operations by transaction kind and direction.",
		}, []string{"kind", "op"}),

		ledgerAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "amount_total",
			Help:      "Sum of credited and debited amounts in primary currency.",
		}, []string{"kind", "op"}),

		taskRewards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "completed_total",
			Help:      "Completed daily tasks by membership tier.",
		}, []string{"tier"}),

		commissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "commissions_total",
			Help:      "Paid referral commissions by level.",
		}, []string{"level"}),

		commissionFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "commission_failures_total",
			Help:      "Commissions that could not be credited to an ancestor.",
		}),

		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "withdrawals",
			Name:      "total",
			Help:      "Withdrawal lifecycle events by outcome.",
		}, []string{"outcome"}),

		tierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "tier_changes_total",
			Help:      "Membership tier changes by reason and resulting tier.",
		}, []string{"reason", "tier"}),

		conflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "conflict_retries_total",
			Help:      "Store operations repeated after optimistic concurrency conflict.",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
	}

	m.Registry.MustRegister(
		m.ledgerOps,
		m.ledgerAmount,
		m.taskRewards,
		m.commissions,
		m.commissionFailed,
		m.withdrawals,
		m.tierChanges,
		m.conflictRetries,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Handler serves metrics of the registry only, without Go runtime collectors
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) RecordLedger(kind, op string, amount float64) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(kind, op).Inc()
	m.ledgerAmount.WithLabelValues(kind, op).Add(amount)
}

func (m *Metrics) RecordTask(tier string) {
	if m == nil {
		return
	}
	m.taskRewards.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordCommission(level int) {
	if m == nil {
		return
	}
	m.commissions.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (m *Metrics) RecordCommissionFailure() {
	if m == nil {
		return
	}
	m.commissionFailed.Inc()
}

func (m *Metrics) RecordWithdrawal(outcome string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTierChange(reason, tier string) {
	if m == nil {
		return
	}
	m.tierChanges.WithLabelValues(reason, tier).Inc()
}

func (m *Metrics) RecordConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

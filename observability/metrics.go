package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics bundles collectors tracking ledger operation activity.
type LedgerMetrics struct {
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	redeemed prometheus.Counter
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// Ledger returns the lazily-initialised metrics registry used to record ledger
// operation activity.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			ops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "perk",
				Subsystem: "ledger",
				Name:      "ops_total",
				Help:      "Total ledger operations segmented by operation and result.",
			}, []string{"op", "result"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "perk",
				Subsystem: "ledger",
				Name:      "op_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			redeemed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "perk",
				Subsystem: "ledger",
				Name:      "points_redeemed_total",
				Help:      "Running total of points destroyed through redemption.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.ops,
			ledgerRegistry.latency,
			ledgerRegistry.redeemed,
		)
	})
	return ledgerRegistry
}

// Observe records the outcome and latency of a ledger operation.
func (m *LedgerMetrics) Observe(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if op = strings.TrimSpace(op); op == "" {
		op = "unknown"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRedeemed adds the supplied amount to the redeemed-points counter.
func (m *LedgerMetrics) RecordRedeemed(amount *big.Int) {
	if m == nil {
		return
	}
	value := bigToFloat(amount)
	if value <= 0 {
		return
	}
	m.redeemed.Add(value)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}

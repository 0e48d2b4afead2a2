package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type BankMetrics struct {
	depositsTotal    *prometheus.CounterVec
	withdrawalsTotal *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	conversionsTotal prometheus.Counter
	totalValue       prometheus.Gauge
}

var (
	bankOnce     sync.Once
	bankRegistry *BankMetrics
)

// Bank returns the metrics registry tracking ledger activity.
func Bank() *BankMetrics {
	bankOnce.Do(func() {
		bankRegistry = &BankMetrics{
			depositsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bank_deposits_total",
				Help: "Count of completed deposits by entry point.",
			}, []string{"entry"}),
			withdrawalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bank_withdrawals_total",
				Help: "Count of completed withdrawals by entry point.",
			}, []string{"entry"}),
			rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bank_rejections_total",
				Help: "Count of rejected operations by reason.",
			}, []string{"reason"}),
			conversionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bank_conversions_total",
				Help: "Count of completed venue conversions into the canonical unit.",
			}),
			totalValue: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "bank_total_value",
				Help: "Last observed aggregate holdings approximation in the canonical unit.",
			}),
		}
		prometheus.MustRegister(
			bankRegistry.depositsTotal,
			bankRegistry.withdrawalsTotal,
			bankRegistry.rejectionsTotal,
			bankRegistry.conversionsTotal,
			bankRegistry.totalValue,
		)
	})
	return bankRegistry
}

// ObserveDeposit increments the deposit counter for the entry point.
func (m *BankMetrics) ObserveDeposit(entry string) {
	if m == nil {
		return
	}
	if entry == "" {
		entry = "unknown"
	}
	m.depositsTotal.WithLabelValues(entry).Inc()
}

// ObserveWithdrawal increments the withdrawal counter for the entry point.
func (m *BankMetrics) ObserveWithdrawal(entry string) {
	if m == nil {
		return
	}
	if entry == "" {
		entry = "unknown"
	}
	m.withdrawalsTotal.WithLabelValues(entry).Inc()
}

// ObserveRejection increments the rejection counter for the reason.
func (m *BankMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveConversion increments the completed conversion counter.
func (m *BankMetrics) ObserveConversion() {
	if m == nil {
		return
	}
	m.conversionsTotal.Inc()
}

// SetTotalValue records the latest aggregate holdings approximation.
func (m *BankMetrics) SetTotalValue(value float64) {
	if m == nil {
		return
	}
	m.totalValue.Set(value)
}

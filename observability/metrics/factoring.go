package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type FactoringMetrics struct {
	deposits           prometheus.Counter
	redemptionsSettled prometheus.Counter
	redemptionsQueued  prometheus.Counter
	redemptionsSkipped *prometheus.CounterVec
	invoices           *prometheus.CounterVec
	pricePerShare      prometheus.Gauge
	capitalAccount     prometheus.Gauge
	freeLiquidity      prometheus.Gauge
	deployedPrincipal  prometheus.Gauge
	queueDepth         prometheus.Gauge
	sweepDuration      prometheus.Histogram
}

var (
	factoringOnce     sync.Once
	factoringRegistry *FactoringMetrics
)

func Factoring() *FactoringMetrics {
	factoringOnce.Do(func() {
		factoringRegistry = &FactoringMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "factoring_deposits_total",
				Help: "Count of completed share deposits.",
			}),
			redemptionsSettled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "factoring_redemptions_settled_total",
				Help: "Count of settled redemptions, immediate and queued.",
			}),
			redemptionsQueued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "factoring_redemptions_queued_total",
				Help: "Count of redemption requests placed on the queue.",
			}),
			redemptionsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "factoring_redemptions_skipped_total",
				Help: "Count of queued redemptions skipped during drains by reason.",
			}, []string{"reason"}),
			invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "factoring_invoice_transitions_total",
				Help: "Count of invoice lifecycle transitions by terminal action.",
			}, []string{"action"}),
			pricePerShare: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "factoring_price_per_share",
				Help: "Current share price scaled to asset units per whole share.",
			}),
			capitalAccount: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "factoring_capital_account",
				Help: "Investor-owned capital backing outstanding shares.",
			}),
			freeLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "factoring_free_liquidity",
				Help: "Asset amount currently available for funding and redemption.",
			}),
			deployedPrincipal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "factoring_deployed_principal",
				Help: "Net asset amount currently deployed into funded invoices.",
			}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "factoring_queue_depth",
				Help: "Number of entries currently waiting on the redemption queue.",
			}),
			sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "factoring_sweep_duration_seconds",
				Help:    "Latency distribution of reconciliation sweeps.",
				Buckets: prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			factoringRegistry.deposits,
			factoringRegistry.redemptionsSettled,
			factoringRegistry.redemptionsQueued,
			factoringRegistry.redemptionsSkipped,
			factoringRegistry.invoices,
			factoringRegistry.pricePerShare,
			factoringRegistry.capitalAccount,
			factoringRegistry.freeLiquidity,
			factoringRegistry.deployedPrincipal,
			factoringRegistry.queueDepth,
			factoringRegistry.sweepDuration,
		)
	})
	return factoringRegistry
}

func (m *FactoringMetrics) IncDeposit() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

func (m *FactoringMetrics) IncRedemptionSettled() {
	if m == nil {
		return
	}
	m.redemptionsSettled.Inc()
}

func (m *FactoringMetrics) IncRedemptionQueued() {
	if m == nil {
		return
	}
	m.redemptionsQueued.Inc()
}

func (m *FactoringMetrics) IncRedemptionSkipped(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.redemptionsSkipped.WithLabelValues(reason).Inc()
}

func (m *FactoringMetrics) IncInvoiceTransition(action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.invoices.WithLabelValues(action).Inc()
}

func (m *FactoringMetrics) SetPricePerShare(price float64) {
	if m == nil {
		return
	}
	m.pricePerShare.Set(price)
}

func (m *FactoringMetrics) SetCapitalAccount(amount float64) {
	if m == nil {
		return
	}
	m.capitalAccount.Set(amount)
}

func (m *FactoringMetrics) SetFreeLiquidity(amount float64) {
	if m == nil {
		return
	}
	m.freeLiquidity.Set(amount)
}

func (m *FactoringMetrics) SetDeployedPrincipal(amount float64) {
	if m == nil {
		return
	}
	m.deployedPrincipal.Set(amount)
}

func (m *FactoringMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *FactoringMetrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

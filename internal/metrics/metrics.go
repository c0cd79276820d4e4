// Package metrics exposes Prometheus collectors for the payment pipeline. All recording
// methods are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shopgame"

type Metrics struct {
	depositsOpened   *prometheus.CounterVec
	depositsResolved *prometheus.CounterVec
	creditedTotal    *prometheus.CounterVec
	webhooksTotal    *prometheus.CounterVec
	gatewayRequests  *prometheus.CounterVec
	gatewayLatency   prometheus.Histogram
	sweepRuns        *prometheus.CounterVec
	sweepExpired     prometheus.Counter
	sweepLastRunUnix prometheus.Gauge
	drawsTotal       *prometheus.CounterVec
	purchasesTotal   prometheus.Counter
	commissionTotal  prometheus.Counter
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		depositsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "deposit", Name: "opened_total",
			Help: "Deposit requests opened by channel.",
		}, []string{"channel"}),
		depositsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "deposit", Name: "resolved_total",
			Help: "Deposit requests reaching a terminal status by channel and status.",
		}, []string{"channel", "status"}),
		creditedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "deposit", Name: "credited_amount_total",
			Help: "Sum of amounts credited to wallets from approved deposits.",
		}, []string{"channel"}),
		webhooksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "webhook", Name: "received_total",
			Help: "Partner webhooks received by source and result.",
		}, []string{"source", "result"}),
		gatewayRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "card_gateway", Name: "requests_total",
			Help: "Card charge submissions by outcome.",
		}, []string{"outcome"}),
		gatewayLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "card_gateway", Name: "request_duration_seconds",
			Help:    "Latency of card charge submissions.",
			Buckets: prometheus.DefBuckets,
		}),
		sweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "runs_total",
			Help: "Expiry sweeper runs partitioned by result.",
		}, []string{"result"}),
		sweepExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "expired_total",
			Help: "Pending deposit requests rejected for staleness.",
		}),
		sweepLastRunUnix: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "last_run_unix",
			Help: "Unix time of the most recent sweep.",
		}),
		drawsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "prize", Name: "draws_total",
			Help: "Prize draws by winning prize kind.",
		}, []string{"kind"}),
		purchasesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "purchase", Name: "completed_total",
			Help: "Completed purchases.",
		}),
		commissionTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "purchase", Name: "commission_amount_total",
			Help: "Sum of referral commission credited.",
		}),
	}
}

func (m *Metrics) DepositOpened(channel string) {
	if m == nil {
		return
	}
	m.depositsOpened.WithLabelValues(channel).Inc()
}

func (m *Metrics) DepositResolved(channel, status string, credited int64) {
	if m == nil {
		return
	}
	m.depositsResolved.WithLabelValues(channel, status).Inc()
	if credited > 0 {
		m.creditedTotal.WithLabelValues(channel).Add(float64(credited))
	}
}

func (m *Metrics) Webhook(source, result string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(source, result).Inc()
}

func (m *Metrics) GatewayRequest(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(outcome).Inc()
	m.gatewayLatency.Observe(took.Seconds())
}

func (m *Metrics) Sweep(result string, expired int, at time.Time) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(result).Inc()
	m.sweepExpired.Add(float64(expired))
	m.sweepLastRunUnix.Set(float64(at.Unix()))
}

func (m *Metrics) Draw(kind string) {
	if m == nil {
		return
	}
	m.drawsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Purchase(commission int64) {
	if m == nil {
		return
	}
	m.purchasesTotal.Inc()
	if commission > 0 {
		m.commissionTotal.Add(float64(commission))
	}
}

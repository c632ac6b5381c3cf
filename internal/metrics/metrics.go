package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for purchases and network calls.
type Metrics struct {
	PurchasesStarted   *prometheus.CounterVec
	PurchasesFinalized *prometheus.CounterVec
	PendingPurchases   prometheus.Gauge
	PendingEvicted     prometheus.Counter

	NetworkCallsTotal   *prometheus.CounterVec
	NetworkCallDuration *prometheus.HistogramVec

	ChatMessagesRejected prometheus.Counter
}

// New creates and registers all collectors. A nil registry uses the default one.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		PurchasesStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paychat_purchases_started_total",
				Help: "Purchases that reached the interactive grant step",
			},
			[]string{"mode"},
		),
		PurchasesFinalized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paychat_purchases_finalized_total",
				Help: "Purchase callbacks by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		PendingPurchases: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "paychat_pending_purchases",
				Help: "Purchases awaiting user interaction",
			},
		),
		PendingEvicted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "paychat_pending_purchases_evicted_total",
				Help: "Pending purchases dropped after their TTL elapsed",
			},
		),
		NetworkCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paychat_openpayments_calls_total",
				Help: "Calls to the Open Payments network by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		NetworkCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paychat_openpayments_call_duration_seconds",
				Help:    "Latency of Open Payments calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		ChatMessagesRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "paychat_chat_messages_rejected_total",
				Help: "Buyer messages refused because the chat session was locked or expired",
			},
		),
	}
}

// ObserveNetworkCall records one outbound call. Safe on a nil receiver.
func (m *Metrics) ObserveNetworkCall(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.NetworkCallsTotal.WithLabelValues(operation, outcome).Inc()
	m.NetworkCallDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// PurchaseStarted increments the started counter. Safe on a nil receiver.
func (m *Metrics) PurchaseStarted(mode string) {
	if m == nil {
		return
	}
	m.PurchasesStarted.WithLabelValues(mode).Inc()
}

// PurchaseFinalized increments the finalized counter. Safe on a nil receiver.
func (m *Metrics) PurchaseFinalized(mode, outcome string) {
	if m == nil {
		return
	}
	m.PurchasesFinalized.WithLabelValues(mode, outcome).Inc()
}

// SetPending updates the pending gauge. Safe on a nil receiver.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingPurchases.Set(float64(n))
}

// Evicted counts TTL evictions. Safe on a nil receiver.
func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PendingEvicted.Add(float64(n))
}

// MessageRejected counts refused buyer messages. Safe on a nil receiver.
func (m *Metrics) MessageRejected() {
	if m == nil {
		return
	}
	m.ChatMessagesRejected.Inc()
}

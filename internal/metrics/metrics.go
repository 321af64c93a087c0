package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pos"

// Metrics records register activity. A nil *Metrics, or one built with a nil
// registerer, silently drops everything.
type Metrics struct {
	syncPasses   *prometheus.CounterVec
	syncEntries  *prometheus.CounterVec
	syncDuration prometheus.Histogram
	pending      prometheus.Gauge
	checkouts    *prometheus.CounterVec
	cartItems    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		syncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Replay passes over the offline queue, by outcome.",
		}, []string{"outcome"}),
		syncEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_entries_total",
			Help:      "Queued transactions submitted during replay, by result.",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of replay passes in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_transactions",
			Help:      "Transactions waiting in the offline queue.",
		}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Completed checkouts, by how the sale was recorded.",
		}, []string{"mode"}),
		cartItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_lines",
			Help:      "Line items currently in the cart.",
		}),
	}
	reg.MustRegister(m.syncPasses, m.syncEntries, m.syncDuration, m.pending, m.checkouts, m.cartItems)
	return m
}

func (m *Metrics) ObserveSync(outcome string, succeeded, failed int, duration time.Duration) {
	if m == nil || m.syncPasses == nil {
		return
	}
	m.syncPasses.WithLabelValues(outcome).Inc()
	m.syncEntries.WithLabelValues("succeeded").Add(float64(succeeded))
	m.syncEntries.WithLabelValues("failed").Add(float64(failed))
	m.syncDuration.Observe(duration.Seconds())
}

func (m *Metrics) SetPending(n int) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(n))
}

// IncCheckout counts a sale; mode is "online" or "queued".
func (m *Metrics) IncCheckout(mode string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(mode).Inc()
}

func (m *Metrics) SetCartLines(n int) {
	if m == nil || m.cartItems == nil {
		return
	}
	m.cartItems.Set(float64(n))
}

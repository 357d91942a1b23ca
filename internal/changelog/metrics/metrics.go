package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pass results used as the "result" label.
const (
	ResultSuccess       = "success"
	ResultFetchFailed   = "fetch_failed"
	ResultStorageFailed = "storage_failed"
	ResultSkipped       = "skipped"
)

// Metrics provides observability for the changelog module.
// Tracks pass outcomes, per-record decisions and remote health.
type Metrics struct {
	Passes             *prometheus.CounterVec
	RecordsApplied     *prometheus.CounterVec
	RecordsRejected    *prometheus.CounterVec
	DomainsDeleted     prometheus.Counter
	PassDuration       prometheus.Histogram
	LastSuccess        prometheus.Gauge
	RemoteCircuitOpen  prometheus.Gauge
	RemoteCallDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the changelog metrics with reg. Tests pass a
// fresh prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policysync_changelog_passes_total",
			Help: "Total number of sync passes by result",
		}, []string{"result"}),
		RecordsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policysync_changelog_records_applied_total",
			Help: "Total number of domain records written to the local store",
		}, []string{"mode"}),
		RecordsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policysync_changelog_records_rejected_total",
			Help: "Total number of domain records that failed validation",
		}, []string{"mode"}),
		DomainsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "policysync_changelog_domains_deleted_total",
			Help: "Total number of local domains removed because ZMS no longer lists them",
		}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "policysync_changelog_pass_duration_seconds",
			Help:    "Duration of complete sync passes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "policysync_changelog_last_success_timestamp_seconds",
			Help: "Unix time of the last fully successful sync pass",
		}),
		RemoteCircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "policysync_zms_circuit_open",
			Help: "1 when the ZMS circuit breaker is open",
		}),
		RemoteCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policysync_zms_request_duration_seconds",
			Help:    "Duration of ZMS API calls by endpoint",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
	}
}

// ObservePass records the outcome of one pass.
// Call with time.Now() at the start of the pass.
func (m *Metrics) ObservePass(result string, start time.Time) {
	m.Passes.WithLabelValues(result).Inc()
	m.PassDuration.Observe(time.Since(start).Seconds())
	if result == ResultSuccess {
		m.LastSuccess.SetToCurrentTime()
	}
}

func (m *Metrics) IncrementApplied(mode string) {
	m.RecordsApplied.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncrementRejected(mode string) {
	m.RecordsRejected.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncrementDeleted() {
	m.DomainsDeleted.Inc()
}

// SetCircuitOpen mirrors the remote circuit breaker state.
func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.RemoteCircuitOpen.Set(1)
		return
	}
	m.RemoteCircuitOpen.Set(0)
}

// ObserveRemoteCall records the duration of one ZMS API call.
func (m *Metrics) ObserveRemoteCall(endpoint string, start time.Time) {
	m.RemoteCallDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process-level Prometheus metrics.
type Metrics struct {
	BuildInfo *prometheus.GaugeVec
	gatherer  prometheus.Gatherer
}

// New creates and registers the process metrics on the default registry.
func New(version string) *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, version)
}

// NewWithRegistry registers on reg and exposes what gatherer collects.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer, version string) *Metrics {
	m := &Metrics{
		BuildInfo: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "policysync_build_info",
			Help: "Build information of the running syncer",
		}, []string{"version", "go_version"}),
		gatherer: gatherer,
	}
	m.BuildInfo.WithLabelValues(version, runtime.Version()).Set(1)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

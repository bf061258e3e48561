// internal/metrics/metrics.go

// Package metrics collects and exposes Prometheus metrics for the
// lending engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts lending operations. It implements lending.Metrics.
type Collector struct {
	issues        prometheus.Counter
	returns       prometheus.Counter
	finesAssessed prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		issues: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "libralend_issues_total",
			Help: "Total number of books issued.",
		}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "libralend_returns_total",
			Help: "Total number of books returned.",
		}),
		finesAssessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "libralend_fines_assessed_total",
			Help: "Total fine amount assessed on late returns.",
		}),
	}

	reg.MustRegister(c.issues, c.returns, c.finesAssessed)
	return c
}

// RecordIssue counts one issued book.
func (c *Collector) RecordIssue() {
	c.issues.Inc()
}

// RecordReturn counts one returned book and any fine assessed.
func (c *Collector) RecordReturn(fine int) {
	c.returns.Inc()
	c.finesAssessed.Add(float64(fine))
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Package metrics defines the Prometheus collectors for generation runs.
//
// The collectors live on a private registry. The CLI is short-lived, so
// instead of serving a scrape endpoint the registry is written to a
// node_exporter textfile after each run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Package results counted by rpmrepo_packages_total.
const (
	ResultReused   = "reused"
	ResultRebuilt  = "rebuilt"
	ResultFailed   = "failed"
	ResultRestored = "restored"
	ResultRemoved  = "removed"
)

// Collector holds the run collectors and the registry they belong to.
type Collector struct {
	PackagesTotal      *prometheus.CounterVec
	IndexPackages      prometheus.Gauge
	GenerationDuration *prometheus.HistogramVec
	LastSuccess        prometheus.Gauge

	registry *prometheus.Registry
	textfile string
}

// New creates the collectors on a fresh registry. When textfile is set,
// WriteTextfile writes the registry there.
func New(textfile string) *Collector {
	c := &Collector{
		PackagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmrepo_packages_total",
				Help: "Packages processed by result (reused, rebuilt, failed, restored, removed).",
			},
			[]string{"result"},
		),
		IndexPackages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rpmrepo_index_packages",
				Help: "Number of packages in the last published index.",
			},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpmrepo_generation_duration_seconds",
				Help:    "Duration of metadata generation runs in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"operation"},
		),
		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rpmrepo_last_success_timestamp_seconds",
				Help: "Unix time of the last successfully published index.",
			},
		),
		registry: prometheus.NewRegistry(),
		textfile: textfile,
	}

	c.registry.MustRegister(
		c.PackagesTotal,
		c.IndexPackages,
		c.GenerationDuration,
		c.LastSuccess,
	)
	return c
}

// Registry returns the registry the collectors are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObservePackages adds n packages with the given result.
func (c *Collector) ObservePackages(result string, n int) {
	c.PackagesTotal.WithLabelValues(result).Add(float64(n))
}

// ObserveRun records a successful run that published packages.
func (c *Collector) ObserveRun(operation string, packages int, d time.Duration) {
	c.GenerationDuration.WithLabelValues(operation).Observe(d.Seconds())
	c.IndexPackages.Set(float64(packages))
	c.LastSuccess.SetToCurrentTime()
}

// WriteTextfile writes the registry in the text exposition format. It does
// nothing when no textfile is configured.
func (c *Collector) WriteTextfile() error {
	if c.textfile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(c.textfile, c.registry)
}

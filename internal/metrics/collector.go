// Package metrics exposes run counters in Prometheus form. There is no HTTP
// endpoint; a run writes a node-exporter textfile when configured.
package metrics

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "securewipe"

// Collector holds the run metrics. All methods are safe on a nil Collector so
// components can record unconditionally.
type Collector struct {
	registry *prometheus.Registry

	bytesOverwritten prometheus.Counter
	bytesFilled      prometheus.Counter
	files            *prometheus.CounterVec
	swept            *prometheus.CounterVec
	junkFiles        prometheus.Counter
	stages           *prometheus.CounterVec
	rate             prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bytesOverwritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_overwritten_total",
			Help:      "Bytes of random data written over existing file contents.",
		}),
		bytesFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_filled_total",
			Help:      "Bytes written into free space by the fill phase.",
		}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files handled by the overwrite scheduler by result.",
		}, []string{"result"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_entries_total",
			Help:      "Entries removed by deletion sweeps.",
		}, []string{"kind"}),
		junkFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "junk_files_created_total",
			Help:      "Temporary fill files created.",
		}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_stages_total",
			Help:      "Volume sanitization stages by outcome.",
		}, []string{"stage", "outcome"}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "smoothed_rate_bytes_per_second",
			Help:      "Last smoothed write rate reported.",
		}),
	}
	c.registry.MustRegister(c.bytesOverwritten, c.bytesFilled, c.files, c.swept, c.junkFiles, c.stages, c.rate)
	return c
}

// Registry returns the registry holding the run metrics.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) AddOverwritten(n uint64) {
	if c == nil {
		return
	}
	c.bytesOverwritten.Add(float64(n))
}

func (c *Collector) AddFilled(n uint64) {
	if c == nil {
		return
	}
	c.bytesFilled.Add(float64(n))
}

// FileResult counts one file by result: overwritten, skipped or failed.
func (c *Collector) FileResult(result string) {
	if c == nil {
		return
	}
	c.files.WithLabelValues(result).Inc()
}

func (c *Collector) Swept(files, dirs int) {
	if c == nil {
		return
	}
	c.swept.WithLabelValues("file").Add(float64(files))
	c.swept.WithLabelValues("dir").Add(float64(dirs))
}

func (c *Collector) JunkCreated() {
	if c == nil {
		return
	}
	c.junkFiles.Inc()
}

// Stage counts one volume stage by outcome: ok, failed, cancelled or dry_run.
func (c *Collector) Stage(stage, outcome string) {
	if c == nil {
		return
	}
	c.stages.WithLabelValues(stage, outcome).Inc()
}

func (c *Collector) ObserveRate(bytesPerSecond float64) {
	if c == nil {
		return
	}
	c.rate.Set(bytesPerSecond)
}

// WriteTextfile writes the registry in text exposition format, atomically,
// for the node-exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create metrics directory")
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrapf(err, "write metrics textfile %s", path)
	}
	return nil
}

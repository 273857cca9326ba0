// Package metrics is a small, backend-agnostic abstraction for recording
// operational metrics from the load pipeline.
//
// A global, pluggable backend defaults to a no-op implementation, so metric
// calls are always safe even when nothing is configured. Concrete systems
// (Prometheus Pushgateway, Datadog statsd) live in subpackages and are wired
// only from the CLI layer.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface a metrics system implements.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration-style observation.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, for backends that need it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the current one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error { return backend.Flush() }

// RecordStep measures one pipeline step (download, extract, load of one
// table, compact, ...) with its outcome and duration.
func RecordStep(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"step": step, "status": status}
	backend.IncCounter("uls_step_total", 1, lbls)
	backend.ObserveHistogram("uls_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRecords counts record-level outcomes for a table. Typical kinds:
//
//   - "parsed"
//   - "skipped"
//   - "inserted"
func RecordRecords(table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("uls_records_total", float64(delta), Labels{
		"table": table,
		"kind":  kind,
	})
}

// RecordBatches counts committed insert batches for a table.
func RecordBatches(table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("uls_batches_total", float64(delta), Labels{"table": table})
}

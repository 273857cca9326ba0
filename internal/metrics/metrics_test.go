package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// captureBackend records calls for assertions.
type captureBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	labels   map[string]Labels
	flushed  bool
}

func newCapture() *captureBackend {
	return &captureBackend{
		counters: make(map[string]float64),
		labels:   make(map[string]Labels),
	}
}

func (c *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += delta
	c.labels[name] = labels
}

func (c *captureBackend) ObserveHistogram(name string, value float64, labels Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name+"_observations"]++
}

func (c *captureBackend) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushed = true
	return nil
}

func withBackend(t *testing.T, b Backend) {
	t.Helper()
	prev := backend
	SetBackend(b)
	t.Cleanup(func() { backend = prev })
}

func TestRecordStepLabelsStatus(t *testing.T) {
	cap := newCapture()
	withBackend(t, cap)

	RecordStep("load_HD", nil, 10*time.Millisecond)
	if got := cap.labels["uls_step_total"]["status"]; got != "success" {
		t.Errorf("status = %q, want success", got)
	}

	RecordStep("load_HD", errors.New("boom"), time.Millisecond)
	if got := cap.labels["uls_step_total"]["status"]; got != "failure" {
		t.Errorf("status = %q, want failure", got)
	}
	if cap.counters["uls_step_total"] != 2 {
		t.Errorf("step counter = %v, want 2", cap.counters["uls_step_total"])
	}
	if cap.counters["uls_step_duration_seconds_observations"] != 2 {
		t.Errorf("duration observations = %v, want 2", cap.counters["uls_step_duration_seconds_observations"])
	}
}

func TestRecordRecordsIgnoresNonPositive(t *testing.T) {
	cap := newCapture()
	withBackend(t, cap)

	RecordRecords("HD", "inserted", 0)
	RecordRecords("HD", "inserted", -5)
	if cap.counters["uls_records_total"] != 0 {
		t.Errorf("non-positive deltas must be dropped, got %v", cap.counters["uls_records_total"])
	}

	RecordRecords("HD", "inserted", 7)
	if cap.counters["uls_records_total"] != 7 {
		t.Errorf("records counter = %v, want 7", cap.counters["uls_records_total"])
	}
	if got := cap.labels["uls_records_total"]["table"]; got != "HD" {
		t.Errorf("table label = %q, want HD", got)
	}
}

func TestNilBackendKeepsPrevious(t *testing.T) {
	cap := newCapture()
	withBackend(t, cap)
	SetBackend(nil)
	RecordBatches("EN", 1)
	if cap.counters["uls_batches_total"] != 1 {
		t.Error("SetBackend(nil) must not clear the installed backend")
	}
}

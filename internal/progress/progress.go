// Package progress emits periodic progress lines for long-running downloads
// and record loads. Output goes through the standard logger so it interleaves
// cleanly with the rest of the run's logging; informational progress is
// printed regardless of verbosity.
package progress

import (
	"io"
	"log"
	"time"

	"github.com/dustin/go-humanize"
)

// logInterval is the minimum spacing between progress lines.
const logInterval = 2 * time.Second

// Counter tracks record-oriented progress against an estimated total.
// The total is advisory: passing 0 suppresses percentages but everything else
// still works.
type Counter struct {
	desc    string
	total   int64
	n       int64
	start   time.Time
	lastLog time.Time
	lastN   int64
}

// NewCounter starts a record counter with the given description, e.g.
// "loading HD".
func NewCounter(desc string, total int64) *Counter {
	now := time.Now()
	return &Counter{desc: desc, total: total, start: now, lastLog: now}
}

// Add records n more items and logs a progress line when due.
func (c *Counter) Add(n int64) {
	c.n += n
	now := time.Now()
	since := now.Sub(c.lastLog)
	if since < logInterval {
		return
	}
	rate := float64(c.n-c.lastN) / since.Seconds()
	if c.total > 0 {
		log.Printf("%s: %s/%s records (%d%%) %.0f rec/s",
			c.desc, humanize.Comma(c.n), humanize.Comma(c.total),
			min(100*c.n/c.total, 100), rate)
	} else {
		log.Printf("%s: %s records %.0f rec/s", c.desc, humanize.Comma(c.n), rate)
	}
	c.lastLog = now
	c.lastN = c.n
}

// Done logs the final tally with the overall rate.
func (c *Counter) Done() {
	elapsed := time.Since(c.start)
	rate := float64(0)
	if elapsed > 0 {
		rate = float64(c.n) / elapsed.Seconds()
	}
	log.Printf("%s: %s records in %s (%.0f rec/s)",
		c.desc, humanize.Comma(c.n), elapsed.Truncate(time.Millisecond), rate)
}

// Count returns the running total.
func (c *Counter) Count() int64 { return c.n }

// Writer is an io.Writer that reports byte-oriented progress, for wrapping
// download destinations.
type Writer struct {
	desc    string
	total   int64
	n       int64
	start   time.Time
	lastLog time.Time
}

// NewWriter starts a byte progress writer; total may be 0 when the remote
// does not advertise a content length.
func NewWriter(desc string, total int64) *Writer {
	now := time.Now()
	return &Writer{desc: desc, total: total, start: now, lastLog: now}
}

// Write implements io.Writer; it never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	now := time.Now()
	if now.Sub(w.lastLog) >= logInterval {
		if w.total > 0 {
			log.Printf("%s: %s/%s (%d%%)", w.desc,
				humanize.Bytes(uint64(w.n)), humanize.Bytes(uint64(w.total)),
				min(100*w.n/w.total, 100))
		} else {
			log.Printf("%s: %s", w.desc, humanize.Bytes(uint64(w.n)))
		}
		w.lastLog = now
	}
	return len(p), nil
}

// Done logs the final byte tally and elapsed time.
func (w *Writer) Done() {
	log.Printf("%s: %s in %s", w.desc,
		humanize.Bytes(uint64(w.n)), time.Since(w.start).Truncate(time.Millisecond))
}

var _ io.Writer = (*Writer)(nil)

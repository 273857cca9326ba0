// Package parser streams ULS .dat files into fixed-length field arrays.
//
// The dump is pipe-delimited, one logical record per line — except that a few
// tables carry free-text fields with embedded newlines, so a logical record
// may span several physical lines. The parser accumulates fields into a
// pending buffer, splices continuation lines back onto the last field, and
// emits a record every time the buffer reaches the table's expected column
// count. Records are delivered over a channel so the loader can batch them
// without materializing the whole file.
//
// The dump is externally produced and occasionally contains bytes that are
// not valid UTF-8; all input is decoded lossily (ill-formed sequences become
// U+FFFD) rather than failing the load.
package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"ulsdb/internal/schema"
)

// BlockSize is the chunk size for block-oriented reads of large files.
const BlockSize = 32 << 20 // 32 MiB

// blockThreshold is the file size above which the block path is used; smaller
// files go straight to the line scanner.
const blockThreshold = 50 << 20 // 50 MiB

// maxLineSize bounds a single physical line on the scanner path. ULS lines
// are short; the headroom is for pathological free-text fields.
const maxLineSize = 4 << 20

// SkipFunc receives non-fatal parse problems (soft-drop, never aborts the
// file). line is the 1-based physical line number.
type SkipFunc func(line int, reason string)

// StreamFile parses the .dat file at path according to tab and sends each
// emitted record to out. Every record has length tab.ColumnCount() exactly,
// by padding or truncation. It returns the number of records emitted.
//
// The caller owns out and closes it after StreamFile returns. Cancellation is
// cooperative via ctx.
func StreamFile(ctx context.Context, path string, tab *schema.Table, out chan<- []string, onSkip SkipFunc) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("parser: open %s: %w", path, err)
	}
	defer f.Close()

	b := &builder{
		tab:      tab,
		expected: tab.ColumnCount(),
		dateIdx:  tab.DateIndices(),
		onSkip:   onSkip,
		emit: func(rec []string) error {
			select {
			case out <- rec:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("parser: stat %s: %w", path, err)
	}

	if info.Size() >= blockThreshold {
		err = readBlocks(f, b)
		if err != nil && b.emitted == 0 && ctx.Err() == nil {
			// Block path failed before producing anything; retry the whole
			// file on the line-oriented path.
			if _, serr := f.Seek(0, io.SeekStart); serr == nil {
				b.reset()
				err = readLines(f, b)
			}
		}
	} else {
		err = readLines(f, b)
	}
	if err != nil {
		return b.emitted, err
	}
	if err := b.flush(); err != nil {
		return b.emitted, err
	}
	return b.emitted, nil
}

// builder holds the pending-record state shared by both read paths.
type builder struct {
	tab      *schema.Table
	expected int
	dateIdx  []int
	pending  []string
	line     int
	emitted  int64
	emit     func([]string) error
	onSkip   SkipFunc
}

func (b *builder) reset() {
	b.pending = nil
	b.line = 0
	b.emitted = 0
}

func (b *builder) skip(reason string) {
	if b.onSkip != nil {
		b.onSkip(b.line, reason)
	}
}

// feed consumes one physical line (without its trailing newline).
func (b *builder) feed(line string) error {
	b.line++
	line = strings.TrimRight(line, "\r")

	if !strings.Contains(line, "|") {
		// Continuation of a multiline free-text field, or junk.
		if len(b.pending) > 0 && b.tab.Multiline {
			b.pending[len(b.pending)-1] += "\n" + line
		} else if strings.TrimSpace(line) != "" {
			b.skip("line has fewer than 2 fields")
		}
		return nil
	}

	fields := strings.Split(line, "|")
	if len(b.pending) > 0 && b.tab.Multiline {
		// The first piece finishes the interrupted last field.
		b.pending[len(b.pending)-1] += "\n" + fields[0]
		b.pending = append(b.pending, fields[1:]...)
	} else {
		b.pending = append(b.pending, fields...)
	}

	// A single physical line can hold more than one logical record.
	for len(b.pending) >= b.expected {
		rec := make([]string, b.expected)
		copy(rec, b.pending[:b.expected])
		b.pending = append([]string(nil), b.pending[b.expected:]...)
		b.convertDates(rec)
		if err := b.emit(rec); err != nil {
			return err
		}
		b.emitted++
	}
	return nil
}

// flush emits whatever is pending at end of input, right-padded to the
// expected length (or truncated when over).
func (b *builder) flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	rec := make([]string, b.expected)
	copy(rec, b.pending)
	b.pending = nil
	b.convertDates(rec)
	if err := b.emit(rec); err != nil {
		return err
	}
	b.emitted++
	return nil
}

func (b *builder) convertDates(rec []string) {
	for _, i := range b.dateIdx {
		if i < len(rec) {
			rec[i] = ConvertDate(rec[i])
		}
	}
}

// ConvertDate rewrites MM/DD/YYYY to YYYY-MM-DD. Empty input stays empty and
// anything unparseable passes through unchanged.
func ConvertDate(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	d, err := time.Parse("01/02/2006", t)
	if err != nil {
		return s
	}
	return d.Format("2006-01-02")
}

// lossy wraps r so ill-formed UTF-8 is replaced instead of surfacing errors.
func lossy(r io.Reader) io.Reader {
	return transform.NewReader(r, runes.ReplaceIllFormed())
}

// readBlocks consumes the file in fixed-size chunks, carrying any trailing
// partial line into the next chunk.
func readBlocks(r io.Reader, b *builder) error {
	src := lossy(r)
	buf := make([]byte, BlockSize)
	leftover := ""
	for {
		n, err := src.Read(buf)
		if n > 0 {
			text := leftover + string(buf[:n])
			if cut := strings.LastIndexByte(text, '\n'); cut >= 0 {
				leftover = text[cut+1:]
				for _, line := range strings.Split(text[:cut], "\n") {
					if ferr := b.feed(line); ferr != nil {
						return ferr
					}
				}
			} else {
				leftover = text
			}
		}
		if err == io.EOF {
			if leftover != "" {
				return b.feed(leftover)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("parser: block read: %w", err)
		}
	}
}

// readLines is the line-oriented path, used for small files and as the
// fallback when block reading fails.
func readLines(r io.Reader, b *builder) error {
	sc := bufio.NewScanner(lossy(r))
	sc.Buffer(make([]byte, 64<<10), maxLineSize)
	for sc.Scan() {
		if err := b.feed(sc.Text()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("parser: scan: %w", err)
	}
	return nil
}

// Package loader orchestrates bulk loads: for each requested table it streams
// the parsed .dat file into the store in fixed-size batches inside a single
// transaction, with indexes dropped for the duration and rebuilt afterwards.
//
// Tables load in a fixed priority order — HD and EN first — so the minimum
// useful dataset (call-sign lookup) is available even if a later table's load
// fails or the run is interrupted. Updates are full refreshes: each table is
// dropped and recreated, never diffed row by row.
//
// Cancellation is cooperative via context, checked at batch-flush
// granularity; cancelling mid-table rolls that table's transaction back so
// the store never shows a partial batch.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"ulsdb/internal/metrics"
	"ulsdb/internal/parser"
	"ulsdb/internal/progress"
	"ulsdb/internal/schema"
	"ulsdb/internal/store"
)

// BatchSize is the number of records buffered between flushes to the store.
const BatchSize = 50000

const (
	lockRetries = 3
	lockBackoff = 5 * time.Second
)

// recordChanBuffer decouples the parse goroutine from insert latency.
const recordChanBuffer = 4096

// priorityTables load before everything else, in this order.
var priorityTables = []string{"HD", "EN"}

// Loader runs bulk loads against one store.
type Loader struct {
	store *store.Store

	// FreshStore marks a database file that did not exist before this run.
	// Fresh stores get all tables pre-created once; existing stores get each
	// table dropped and recreated at its turn.
	FreshStore bool

	// BatchSize overrides the default flush size; zero means BatchSize.
	BatchSize int

	// sleep is injectable so lock-retry tests run fast.
	sleep func(time.Duration)
}

// New returns a Loader for st. fresh reports whether the database file was
// absent before the store was opened (see store.Exists).
func New(st *store.Store, fresh bool) *Loader {
	return &Loader{store: st, FreshStore: fresh, sleep: time.Sleep}
}

// LoadAll loads every requested table's .dat file from extractDir. Missing
// files and lock-exhausted tables are reported but do not stop the run; any
// other store error aborts it. The run ends with a statistics refresh and
// compaction unless it was cancelled.
func (l *Loader) LoadAll(ctx context.Context, extractDir string, tableIDs []string) error {
	start := time.Now()

	// Validate every requested table up front: a missing schema is a
	// precondition error, reported before any partial action.
	for _, id := range tableIDs {
		if _, err := schema.Lookup(id); err != nil {
			return err
		}
	}

	counts := parseCountsFile(filepath.Join(extractDir, "counts"))

	if l.FreshStore {
		log.Printf("loader: creating new database with indexes disabled during load")
		if err := l.store.CreateTables(ctx, tableIDs); err != nil {
			return err
		}
	} else {
		log.Printf("loader: updating existing database with indexes disabled during load")
	}
	if err := l.store.DisableIndexes(ctx, tableIDs); err != nil {
		return err
	}

	var failed []string
	loaded := make(map[string]bool, len(tableIDs))
	for _, id := range orderTables(tableIDs) {
		if err := ctx.Err(); err != nil {
			log.Printf("loader: shutdown requested; stopping table processing")
			return err
		}

		path := filepath.Join(extractDir, id+".dat")
		if _, err := os.Stat(path); err != nil {
			log.Printf("loader: %s not found in the extracted files; skipping %s", path, id)
			continue
		}
		estimate := estimateRecords(counts, id, path)

		if err := l.loadTableWithRetry(ctx, path, id, estimate); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			if store.IsLocked(err) {
				log.Printf("loader: giving up on %s after lock retries: %v", id, err)
				failed = append(failed, id)
				continue
			}
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				log.Printf("loader: cannot read %s data file; skipping: %v", id, err)
				continue
			}
			return fmt.Errorf("loader: load %s: %w", id, err)
		}
		loaded[id] = true
		log.Printf("loader: table %s now holds %s rows",
			id, humanize.Comma(l.store.TableRowCount(ctx, id)))
	}

	// Indexes were dropped for every requested table up front; any table
	// that was skipped or failed must get them back so its existing data
	// stays queryable.
	for _, id := range tableIDs {
		if loaded[id] || ctx.Err() != nil {
			continue
		}
		if err := l.store.CreateIndexes(ctx, []string{id}); err != nil {
			log.Printf("loader: could not restore indexes for %s: %v", id, err)
		}
	}

	if ctx.Err() == nil {
		if err := l.finalize(ctx); err != nil {
			return err
		}
	}
	log.Printf("loader: total loading time %s", time.Since(start).Truncate(time.Millisecond))

	if len(failed) > 0 {
		return fmt.Errorf("loader: tables failed after lock retries: %s", strings.Join(failed, ", "))
	}
	return nil
}

// orderTables places the priority tables first and keeps the caller's order
// for the rest.
func orderTables(tableIDs []string) []string {
	requested := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		requested[id] = true
	}
	out := make([]string, 0, len(tableIDs))
	for _, id := range priorityTables {
		if requested[id] {
			out = append(out, id)
			requested[id] = false
		}
	}
	for _, id := range tableIDs {
		if requested[id] {
			out = append(out, id)
		}
	}
	return out
}

// loadTableWithRetry retries lock contention a bounded number of times with a
// fixed backoff before giving up on the table.
func (l *Loader) loadTableWithRetry(ctx context.Context, path, tableID string, estimate int64) error {
	var err error
	for attempt := 1; attempt <= lockRetries; attempt++ {
		start := time.Now()
		err = l.loadTable(ctx, path, tableID, estimate)
		metrics.RecordStep("load_"+tableID, err, time.Since(start))
		if err == nil || !store.IsLocked(err) || ctx.Err() != nil {
			return err
		}
		if attempt < lockRetries {
			log.Printf("loader: database lock detected for %s, retrying (%d/%d)...",
				tableID, attempt, lockRetries)
			l.sleep(lockBackoff)
		}
	}
	return err
}

// loadTable streams one .dat file into its table inside a single
// transaction. The parse and insert stages run as an errgroup pipeline
// connected by a channel; failure or cancellation of either side tears the
// whole pipeline down and rolls the transaction back.
func (l *Loader) loadTable(ctx context.Context, path, tableID string, estimate int64) (err error) {
	tab, err := schema.Lookup(tableID)
	if err != nil {
		return err
	}

	conn, err := l.store.LoadConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !l.FreshStore {
		log.Printf("loader: dropping and recreating table %s", tableID)
		if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableID); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
		if _, err := conn.ExecContext(ctx, tab.CreateDDL()); err != nil {
			return fmt.Errorf("recreate table: %w", err)
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = BatchSize
	}

	g, gctx := errgroup.WithContext(ctx)
	recs := make(chan []string, recordChanBuffer)

	var parsed, skipped int64
	g.Go(func() error {
		defer close(recs)
		n, perr := parser.StreamFile(gctx, path, tab, recs, func(line int, reason string) {
			skipped++
			log.Printf("loader: skipping invalid record in %s at line %d: %s", tableID, line, reason)
		})
		parsed = n
		return perr
	})

	counter := progress.NewCounter("loading "+tableID, estimate)
	var batches int64
	g.Go(func() error {
		batch := make([][]string, 0, batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if ferr := gctx.Err(); ferr != nil {
				return ferr
			}
			if ferr := store.InsertBatch(gctx, tx, tab, batch); ferr != nil {
				return ferr
			}
			counter.Add(int64(len(batch)))
			batches++
			batch = batch[:0]
			return nil
		}
		for rec := range recs {
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				if ferr := flush(); ferr != nil {
					return ferr
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		log.Printf("loader: rolling back %s transaction: %v", tableID, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	counter.Done()
	metrics.RecordRecords(tableID, "parsed", parsed)
	metrics.RecordRecords(tableID, "inserted", counter.Count())
	metrics.RecordRecords(tableID, "skipped", skipped)
	metrics.RecordBatches(tableID, batches)

	// Index rebuild happens on the same pinned connection, after commit.
	for _, ddl := range tab.IndexDDL {
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
	}
	log.Printf("loader: rebuilt %d indexes for %s", len(tab.IndexDDL), tableID)
	return nil
}

// finalize refreshes statistics and compacts the file after a run.
func (l *Loader) finalize(ctx context.Context) error {
	log.Printf("loader: performing final database optimizations...")
	for _, q := range []string{"PRAGMA optimize", "ANALYZE", "VACUUM"} {
		if _, err := l.store.DB().ExecContext(ctx, q); err != nil {
			return fmt.Errorf("loader: %s: %w", q, err)
		}
	}
	return nil
}

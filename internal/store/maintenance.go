package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ulsdb/internal/schema"
)

// Compact reclaims free space by rebuilding the database file in place.
func (s *Store) Compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("store: vacuum: %w", err)
	}
	log.Printf("store: compacted %s", s.path)
	return nil
}

// RebuildIndexes refreshes statistics, rebuilds every registered index that
// exists, recreates any registered index that is missing, and lets SQLite
// apply its own optimizations.
func (s *Store) RebuildIndexes(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("store: analyze: %w", err)
	}
	existing, err := s.existingIndexes(ctx)
	if err != nil {
		return err
	}
	for _, id := range schema.AllTableIDs() {
		tab := schema.Tables[id]
		for i, name := range tab.IndexNames() {
			if existing[name] {
				if _, err := s.db.ExecContext(ctx, "REINDEX "+name); err != nil {
					return fmt.Errorf("store: reindex %s: %w", name, err)
				}
			} else if s.tableExists(ctx, id) {
				if _, err := s.db.ExecContext(ctx, tab.IndexDDL[i]); err != nil {
					// Missing optimized indexes are recreated best-effort;
					// an optimized store may have dropped their columns.
					log.Printf("store: could not create index %s: %v", name, err)
				}
			}
		}
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("store: pragma optimize: %w", err)
	}
	log.Printf("store: indexes rebuilt for %s", s.path)
	return nil
}

// existingIndexes returns the names of the registered-style indexes present
// in the store.
func (s *Store) existingIndexes(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='index' AND name LIKE 'idx_%'")
	if err != nil {
		return nil, fmt.Errorf("store: list indexes: %w", err)
	}
	defer rows.Close()
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: scan index name: %w", err)
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

// Optimize shrinks the store to its lookup-only working set: every table
// except EN and HD is dropped, HD is pruned to the three columns the call-sign
// join needs, and the file is compacted. This is lossy and tool-specific; a
// subsequent update load recreates the full tables.
func (s *Store) Optimize(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return fmt.Errorf("store: list tables: %w", err)
	}
	var all []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("store: scan table name: %w", err)
		}
		all = append(all, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: list tables: %w", err)
	}

	used := map[string]bool{"EN": true, "HD": true}
	removed := 0
	for _, name := range all {
		if used[name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return fmt.Errorf("store: drop table %s: %w", name, err)
		}
		log.Printf("store: optimize removed table %s", name)
		removed++
	}

	// Prune HD to the columns the active-call-sign join touches. EN keeps
	// every column; lookups project all of its name/address fields.
	keep := []string{"unique_system_identifier", "call_sign", "license_status"}
	if s.tableExists(ctx, "HD") {
		cols := strings.Join(keep, ", ")
		stmts := []string{
			"CREATE TABLE HD_new AS SELECT " + cols + " FROM HD",
			"DROP TABLE HD",
			"ALTER TABLE HD_new RENAME TO HD",
		}
		for _, q := range stmts {
			if _, err := s.db.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("store: prune HD: %w", err)
			}
		}
		log.Printf("store: optimize pruned HD to %d columns", len(keep))
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("store: vacuum after optimize: %w", err)
	}
	log.Printf("store: optimized %s (%d tables removed)", s.path, removed)
	return nil
}

// ConfirmFunc asks whether the destructive operation should proceed, given
// the number of affected licenses and a sample of their call signs. Wire it
// to an interactive prompt, or to a constant for -yes runs and tests.
type ConfirmFunc func(count int64, sampleCallSigns []string) bool

// RemoveInactive deletes every non-active license and its dependent rows
// across all tables, after confirm approves. It returns the number of header
// rows removed; (0, nil) means nothing to do or the operation was declined.
func (s *Store) RemoveInactive(ctx context.Context, confirm ConfirmFunc) (int64, error) {
	if confirm == nil {
		return 0, fmt.Errorf("store: RemoveInactive requires a confirmation function")
	}

	if _, err := s.db.ExecContext(ctx,
		"CREATE TEMPORARY TABLE temp_inactive AS SELECT unique_system_identifier, call_sign FROM HD WHERE license_status != 'A'"); err != nil {
		return 0, fmt.Errorf("store: collect inactive records: %w", err)
	}
	defer s.db.ExecContext(ctx, "DROP TABLE IF EXISTS temp_inactive")

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM temp_inactive").Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count inactive records: %w", err)
	}
	if count == 0 {
		log.Printf("store: no inactive records found")
		return 0, nil
	}

	sample, err := s.sampleInactiveCallSigns(ctx, 10)
	if err != nil {
		return 0, err
	}
	if !confirm(count, sample) {
		log.Printf("store: inactive record removal declined; nothing deleted")
		return 0, nil
	}

	// Resolve table existence before the transaction takes the pool's only
	// connection.
	present := make([]string, 0, len(schema.AllTableIDs()))
	for _, id := range schema.AllTableIDs() {
		if s.tableExists(ctx, id) {
			present = append(present, id)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin removal: %w", err)
	}
	var removedHD int64
	for _, id := range present {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM "+id+" WHERE unique_system_identifier IN (SELECT unique_system_identifier FROM temp_inactive)")
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("store: remove inactive from %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		if id == "HD" {
			removedHD = n
		}
		log.Printf("store: removed %d inactive rows from %s", n, id)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit removal: %w", err)
	}

	if err := s.Compact(ctx); err != nil {
		return removedHD, err
	}
	return removedHD, nil
}

func (s *Store) sampleInactiveCallSigns(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT call_sign FROM temp_inactive WHERE call_sign != '' LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("store: sample inactive call signs: %w", err)
	}
	defer rows.Close()
	var sample []string
	for rows.Next() {
		var cs string
		if err := rows.Scan(&cs); err != nil {
			return nil, fmt.Errorf("store: sample scan: %w", err)
		}
		sample = append(sample, cs)
	}
	return sample, rows.Err()
}

func (s *Store) tableExists(ctx context.Context, name string) bool {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	return err == nil && n > 0
}

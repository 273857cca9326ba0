package store

import (
	"context"
	"testing"
)

func TestOptimizeDropsUnusedTablesAndPrunesHD(t *testing.T) {
	t.Parallel()

	s := newMemStore(t)
	ctx := context.Background()
	mustCreate(t, s, "HD", "EN", "AM")
	mustInsert(t, s, "HD", [][]string{hdRecord("1001", "W1AW", "A")})
	mustInsert(t, s, "EN", [][]string{enRecord("1001", "ARRL HQ CLUB", "", "", "", "CT")})

	if err := s.Optimize(ctx); err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	if s.tableExists(ctx, "AM") {
		t.Error("AM should be dropped by Optimize")
	}
	for _, id := range []string{"HD", "EN"} {
		if !s.tableExists(ctx, id) {
			t.Errorf("%s should survive Optimize", id)
		}
	}

	// HD keeps only the lookup columns.
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM pragma_table_info('HD')").Scan(&n); err != nil {
		t.Fatalf("table_info: %v", err)
	}
	if n != 3 {
		t.Errorf("HD column count after prune = %d, want 3", n)
	}

	// The call-sign lookup still works against the pruned store.
	lic, err := s.RecordByCallSign(ctx, "W1AW")
	if err != nil {
		t.Fatalf("RecordByCallSign after Optimize: %v", err)
	}
	if lic == nil || lic.EntityName != "ARRL HQ CLUB" {
		t.Fatalf("lookup after Optimize = %+v", lic)
	}
}

func TestRemoveInactiveDeclined(t *testing.T) {
	t.Parallel()

	s := newMemStore(t)
	ctx := context.Background()
	mustCreate(t, s, "HD", "EN")
	mustInsert(t, s, "HD", [][]string{
		hdRecord("1001", "W1AW", "A"),
		hdRecord("1002", "K2OLD", "E"),
	})

	removed, err := s.RemoveInactive(ctx, func(count int64, sample []string) bool {
		if count != 1 {
			t.Errorf("confirm count = %d, want 1", count)
		}
		if len(sample) != 1 || sample[0] != "K2OLD" {
			t.Errorf("confirm sample = %v, want [K2OLD]", sample)
		}
		return false
	})
	if err != nil {
		t.Fatalf("RemoveInactive: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d after decline, want 0", removed)
	}
	if n := s.TableRowCount(ctx, "HD"); n != 2 {
		t.Fatalf("HD rows = %d after decline, want 2", n)
	}
}

func TestRemoveInactiveDeletesAcrossTables(t *testing.T) {
	t.Parallel()

	s := newMemStore(t)
	ctx := context.Background()
	mustCreate(t, s, "HD", "EN")
	mustInsert(t, s, "HD", [][]string{
		hdRecord("1001", "W1AW", "A"),
		hdRecord("1002", "K2OLD", "E"),
	})
	mustInsert(t, s, "EN", [][]string{
		enRecord("1001", "", "Ada", "", "Active", "CT"),
		enRecord("1002", "", "Ed", "", "Expired", "NY"),
	})

	removed, err := s.RemoveInactive(ctx, func(int64, []string) bool { return true })
	if err != nil {
		t.Fatalf("RemoveInactive: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if n := s.TableRowCount(ctx, "HD"); n != 1 {
		t.Errorf("HD rows = %d, want 1", n)
	}
	if n := s.TableRowCount(ctx, "EN"); n != 1 {
		t.Errorf("EN rows = %d, want 1", n)
	}
	if lic, _ := s.RecordByCallSign(ctx, "W1AW"); lic == nil {
		t.Error("active license lost during inactive removal")
	}
}

func TestRemoveInactiveNothingToDo(t *testing.T) {
	t.Parallel()

	s := newMemStore(t)
	ctx := context.Background()
	mustCreate(t, s, "HD")
	mustInsert(t, s, "HD", [][]string{hdRecord("1001", "W1AW", "A")})

	called := false
	removed, err := s.RemoveInactive(ctx, func(int64, []string) bool { called = true; return true })
	if err != nil {
		t.Fatalf("RemoveInactive: %v", err)
	}
	if removed != 0 || called {
		t.Fatalf("removed=%d called=%v, want 0/false when all records active", removed, called)
	}
}

func TestCompact(t *testing.T) {
	t.Parallel()

	s := newMemStore(t)
	mustCreate(t, s, "HD")
	if err := s.Compact(context.Background()); err != nil {
		t.Fatalf("Compact: %v", err)
	}
}

func TestRebuildIndexes(t *testing.T) {
	t.Parallel()

	s := newMemStore(t)
	ctx := context.Background()
	mustCreate(t, s, "HD", "EN")
	mustInsert(t, s, "HD", [][]string{hdRecord("1001", "W1AW", "A")})

	// Start with no indexes: RebuildIndexes recreates the registered ones.
	if err := s.RebuildIndexes(ctx); err != nil {
		t.Fatalf("RebuildIndexes: %v", err)
	}
	if got := countIndexes(t, s); got == 0 {
		t.Fatal("no indexes after RebuildIndexes")
	}

	// And it is a no-op failure-wise when they already exist.
	if err := s.RebuildIndexes(ctx); err != nil {
		t.Fatalf("second RebuildIndexes: %v", err)
	}
}

func TestRebuildIndexesRestoresDropped(t *testing.T) {
	t.Parallel()

	s := newMemStore(t)
	ctx := context.Background()
	mustCreate(t, s, "HD", "EN")
	if err := s.CreateIndexes(ctx, []string{"HD", "EN"}); err != nil {
		t.Fatalf("CreateIndexes: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, "DROP INDEX idx_EN_state"); err != nil {
		t.Fatalf("drop index: %v", err)
	}

	if err := s.RebuildIndexes(ctx); err != nil {
		t.Fatalf("RebuildIndexes: %v", err)
	}
	existing, err := s.existingIndexes(ctx)
	if err != nil {
		t.Fatalf("existingIndexes: %v", err)
	}
	if !existing["idx_EN_state"] {
		t.Error("idx_EN_state not restored by RebuildIndexes")
	}
}

package loader

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ulsdb/internal/store"
)

func writeDat(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// amLine builds a pipe-delimited AM record with the given system identifier
// and call sign and empty remaining fields (18 total).
func amLine(usi, callSign string) string {
	fields := make([]string, 18)
	fields[0] = "AM"
	fields[1] = usi
	fields[4] = callSign
	return strings.Join(fields, "|")
}

func hdLine(usi, callSign, status string) string {
	fields := make([]string, 59)
	fields[0] = "HD"
	fields[1] = usi
	fields[4] = callSign
	fields[5] = status
	return strings.Join(fields, "|")
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "uls.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rowCount(t *testing.T, db *sql.DB, table string) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestParseCountsFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDat(t, dir, "counts",
		"1552394 ./AM.dat",
		"4613150 ./EN.dat",
		"not-a-count ./HD.dat",
		"garbage line here with extra fields",
	)
	counts := parseCountsFile(filepath.Join(dir, "counts"))
	if got := counts["AM"]; got != 1552394 {
		t.Errorf("AM count = %d, want 1552394", got)
	}
	if got := counts["EN"]; got != 4613150 {
		t.Errorf("EN count = %d, want 4613150", got)
	}
	if _, ok := counts["HD"]; ok {
		t.Error("unparseable HD count should be dropped")
	}
}

func TestParseCountsFileMissing(t *testing.T) {
	t.Parallel()
	counts := parseCountsFile(filepath.Join(t.TempDir(), "counts"))
	if len(counts) != 0 {
		t.Errorf("missing counts file should yield empty map, got %v", counts)
	}
}

func TestEstimateRecordsFallsBackToSize(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeDat(t, dir, "AM.dat", strings.Repeat("x", 999))
	if got := estimateRecords(nil, "AM", path); got != 10 {
		t.Errorf("estimate = %d, want 10", got)
	}
	if got := estimateRecords(map[string]int64{"AM": 42}, "AM", path); got != 42 {
		t.Errorf("sidecar estimate = %d, want 42", got)
	}
}

func TestOrderTables(t *testing.T) {
	t.Parallel()
	got := orderTables([]string{"AM", "CO", "EN", "HD", "LA"})
	want := []string{"HD", "EN", "AM", "CO", "LA"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}

	// Priority tables the caller did not request stay absent.
	got = orderTables([]string{"AM"})
	if len(got) != 1 || got[0] != "AM" {
		t.Errorf("order = %v, want [AM]", got)
	}
}

func TestLoadAllFreshStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDat(t, dir, "AM.dat",
		amLine("1000", "W1AW"),
		amLine("1001", "K2XYZ"),
	)
	writeDat(t, dir, "HD.dat",
		hdLine("1000", "W1AW", "A"),
		hdLine("1001", "K2XYZ", "A"),
	)

	s := newTestStore(t)
	l := New(s, true)

	if err := l.LoadAll(context.Background(), dir, []string{"AM", "HD"}); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got := rowCount(t, s.DB(), "AM"); got != 2 {
		t.Errorf("AM rows = %d, want 2", got)
	}
	if got := rowCount(t, s.DB(), "HD"); got != 2 {
		t.Errorf("HD rows = %d, want 2", got)
	}

	// Indexes exist after the load.
	var n int
	err := s.DB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = 'HD'").Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("HD indexes missing after load")
	}
}

func TestLoadAllRestoresIndexesForSkippedTables(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDat(t, dir, "AM.dat", amLine("1000", "W1AW"))
	writeDat(t, dir, "HD.dat", hdLine("1000", "W1AW", "A"))

	s := newTestStore(t)
	if err := New(s, true).LoadAll(context.Background(), dir, []string{"AM", "HD"}); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	// The update extraction lacks HD.dat; HD keeps its old rows and must
	// keep its indexes too.
	dir2 := t.TempDir()
	writeDat(t, dir2, "AM.dat", amLine("2000", "N0CALL"))
	if err := New(s, false).LoadAll(context.Background(), dir2, []string{"AM", "HD"}); err != nil {
		t.Fatalf("update load: %v", err)
	}

	if got := rowCount(t, s.DB(), "HD"); got != 1 {
		t.Fatalf("HD rows after skipped update = %d, want 1", got)
	}
	var n int64
	if err := s.DB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND tbl_name='HD'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("HD indexes were not restored after its file was skipped")
	}
}

func TestLoadAllUpdateReplacesTable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDat(t, dir, "AM.dat", amLine("1000", "W1AW"))

	s := newTestStore(t)
	if err := New(s, true).LoadAll(context.Background(), dir, []string{"AM"}); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	// A second run with different data fully replaces the table.
	dir2 := t.TempDir()
	writeDat(t, dir2, "AM.dat",
		amLine("2000", "N0CALL"),
		amLine("2001", "N1CALL"),
		amLine("2002", "N2CALL"),
	)
	if err := New(s, false).LoadAll(context.Background(), dir2, []string{"AM"}); err != nil {
		t.Fatalf("update load: %v", err)
	}
	if got := rowCount(t, s.DB(), "AM"); got != 3 {
		t.Errorf("AM rows after update = %d, want 3", got)
	}
	var old int64
	if err := s.DB().QueryRow(
		"SELECT COUNT(*) FROM AM WHERE unique_system_identifier = 1000").Scan(&old); err != nil {
		t.Fatal(err)
	}
	if old != 0 {
		t.Error("stale row survived the update load")
	}
}

func TestLoadAllSkipsMissingFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDat(t, dir, "AM.dat", amLine("1000", "W1AW"))

	s := newTestStore(t)
	// HD.dat is absent; the run still succeeds and loads AM.
	if err := New(s, true).LoadAll(context.Background(), dir, []string{"AM", "HD"}); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got := rowCount(t, s.DB(), "AM"); got != 1 {
		t.Errorf("AM rows = %d, want 1", got)
	}
	if got := rowCount(t, s.DB(), "HD"); got != 0 {
		t.Errorf("HD rows = %d, want 0", got)
	}
}

func TestLoadAllUnknownTable(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	err := New(s, true).LoadAll(context.Background(), t.TempDir(), []string{"ZZ"})
	if err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestLoadAllCancelledRollsBack(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	lines := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		lines = append(lines, amLine("1000", "W1AW"))
	}
	writeDat(t, dir, "AM.dat", lines...)

	s := newTestStore(t)
	if err := s.CreateTables(context.Background(), []string{"AM"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(s, true)
	l.BatchSize = 10
	if err := l.LoadAll(ctx, dir, []string{"AM"}); err == nil {
		t.Fatal("expected cancellation error")
	}
	if got := rowCount(t, s.DB(), "AM"); got != 0 {
		t.Errorf("cancelled load left %d rows, want 0", got)
	}
}

func TestLoadAllParsesDatesAndSkipsJunk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	hd := strings.Split(hdLine("1000", "W1AW", "A"), "|")
	hd[7] = "02/20/2015" // grant_date
	writeDat(t, dir, "HD.dat",
		strings.Join(hd, "|"),
	)

	s := newTestStore(t)
	if err := New(s, true).LoadAll(context.Background(), dir, []string{"HD"}); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	var grant string
	err := s.DB().QueryRow(
		"SELECT grant_date FROM HD WHERE unique_system_identifier = 1000").Scan(&grant)
	if err != nil {
		t.Fatal(err)
	}
	if grant != "2015-02-20" {
		t.Errorf("grant_date = %q, want 2015-02-20", grant)
	}
}

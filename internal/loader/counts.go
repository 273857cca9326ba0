package loader

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// avgRecordBytes is the rough per-record size used to estimate record counts
// from file size when the counts sidecar is absent. Estimates drive progress
// reporting only, never correctness.
const avgRecordBytes = 100

// parseCountsFile reads the optional sidecar mapping data files to expected
// record counts, one "<count> <path>" pair per line. A missing file is normal
// and returns an empty map with a warning.
func parseCountsFile(path string) map[string]int64 {
	counts := make(map[string]int64)
	f, err := os.Open(path)
	if err != nil {
		log.Printf("loader: counts file not found at %s; proceeding without record counts", path)
		return counts
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		if len(parts) != 2 {
			continue
		}
		n, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		table, _, _ := strings.Cut(filepath.Base(parts[1]), ".")
		counts[table] = n
	}
	if err := sc.Err(); err != nil {
		log.Printf("loader: reading counts file: %v", err)
	}
	return counts
}

// estimateRecords returns the sidecar count for table, falling back to a
// file-size estimate.
func estimateRecords(counts map[string]int64, table, dataPath string) int64 {
	if n, ok := counts[table]; ok && n > 0 {
		return n
	}
	info, err := os.Stat(dataPath)
	if err != nil {
		return 0
	}
	est := info.Size() / avgRecordBytes
	if est < 1 {
		est = 1
	}
	log.Printf("loader: estimated %s records for %s from file size",
		humanize.Comma(est), table)
	return est
}

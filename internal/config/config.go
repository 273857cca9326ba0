// Package config resolves runtime settings from defaults, an optional .env
// file, and ULSDB_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"ulsdb/internal/schema"
)

// DefaultSourceURL is the FCC's weekly complete amateur license dump.
const DefaultSourceURL = "https://data.fcc.gov/download/pub/uls/complete/l_amat.zip"

// DefaultTables is the minimum useful set: license headers, entities, and
// amateur-specific fields.
var DefaultTables = []string{"AM", "EN", "HD"}

// Config holds everything the commands need to run.
type Config struct {
	// DatabasePath is the SQLite file.
	DatabasePath string

	// SourceURL is the archive to download.
	SourceURL string

	// WorkDir holds the downloaded archive and extracted files.
	WorkDir string

	// Tables are the table IDs to load.
	Tables []string

	// BatchSize is the number of records per insert flush.
	BatchSize int

	// MetricsBackend selects "none", "pushgateway", or "datadog".
	MetricsBackend string

	// PushgatewayURL is required when MetricsBackend is "pushgateway".
	PushgatewayURL string

	// DatadogAddr is the dogstatsd address when MetricsBackend is "datadog".
	DatadogAddr string
}

// ArchivePath is where the downloaded zip lands.
func (c Config) ArchivePath() string { return filepath.Join(c.WorkDir, "l_amat.zip") }

// ExtractDir is where the archive is unpacked.
func (c Config) ExtractDir() string { return filepath.Join(c.WorkDir, "extracted") }

// MetadataPath is the JSON sidecar next to the database.
func (c Config) MetadataPath() string { return c.DatabasePath + ".metadata.json" }

// Load builds a Config from defaults, then a .env file in the working
// directory when present, then the process environment.
func Load() (Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	cfg := Config{
		DatabasePath:   envOr("ULSDB_DATABASE", "uls.db"),
		SourceURL:      envOr("ULSDB_SOURCE_URL", DefaultSourceURL),
		WorkDir:        envOr("ULSDB_WORK_DIR", "uls_data"),
		Tables:         append([]string(nil), DefaultTables...),
		BatchSize:      50000,
		MetricsBackend: envOr("ULSDB_METRICS", "none"),
		PushgatewayURL: os.Getenv("ULSDB_PUSHGATEWAY_URL"),
		DatadogAddr:    envOr("ULSDB_DATADOG_ADDR", "127.0.0.1:8125"),
	}

	if v := os.Getenv("ULSDB_TABLES"); v != "" {
		cfg.Tables = splitTables(v)
	}
	if v := os.Getenv("ULSDB_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("config: ULSDB_BATCH_SIZE %q is not a positive integer", v)
		}
		cfg.BatchSize = n
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent and that
// every requested table has a registered schema.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("config: database path must not be empty")
	}
	if c.SourceURL == "" {
		return fmt.Errorf("config: source URL must not be empty")
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("config: at least one table is required")
	}
	for _, id := range c.Tables {
		if _, err := schema.Lookup(id); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	switch c.MetricsBackend {
	case "none", "pushgateway", "datadog":
	default:
		return fmt.Errorf("config: unknown metrics backend %q", c.MetricsBackend)
	}
	if c.MetricsBackend == "pushgateway" && c.PushgatewayURL == "" {
		return fmt.Errorf("config: ULSDB_PUSHGATEWAY_URL is required for the pushgateway backend")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitTables parses a comma-separated table list, trimming whitespace and
// uppercasing IDs.
func splitTables(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Command ulsdb maintains and queries a local SQLite copy of the FCC
// amateur radio license database.
//
// Typical usage:
//
//	ulsdb -update                 # download and load the weekly dump
//	ulsdb -lookup W1AW            # look up one call sign
//	ulsdb -name smith -state ct   # search active licenses
//	ulsdb -optimize               # shrink the store to lookup-only data
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ulsdb/internal/config"
	"ulsdb/internal/display"
	"ulsdb/internal/httpds"
	"ulsdb/internal/loader"
	"ulsdb/internal/metrics"
	"ulsdb/internal/metrics/datadog"
	"ulsdb/internal/metrics/prompush"
	"ulsdb/internal/schema"
	"ulsdb/internal/store"
	"ulsdb/internal/updater"
)

func main() {
	var (
		update        = flag.Bool("update", false, "download the latest FCC dump and load it")
		forceDownload = flag.Bool("force-download", false, "download even when the local data is current")
		skipDownload  = flag.Bool("skip-download", false, "reuse already downloaded or extracted files")
		keepFiles     = flag.Bool("keep-files", false, "keep the archive and extracted files after loading")

		lookup = flag.String("lookup", "", "look up a call sign")
		asHTML = flag.Bool("html", false, "render lookup results as an HTML fragment")
		name   = flag.String("name", "", "search active licenses by name substring")
		state  = flag.String("state", "", "search active licenses by two-letter state code")

		compact        = flag.Bool("compact", false, "reclaim free space in the database file")
		rebuildIndexes = flag.Bool("rebuild-indexes", false, "refresh statistics and rebuild indexes")
		optimize       = flag.Bool("optimize", false, "shrink the database to call-sign lookup data only")
		removeInactive = flag.Bool("remove-inactive", false, "delete all non-active licenses")
		yes            = flag.Bool("yes", false, "answer yes to confirmation prompts")

		metricsBackend = flag.String("metrics-backend", "", "metrics backend: none, pushgateway, datadog (overrides env)")
		verbose        = flag.Bool("v", false, "enable verbose logs")
	)
	flag.Parse()

	if err := schema.Validate(); err != nil {
		fatalf("schema registry: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("%v", err)
	}
	if *metricsBackend != "" {
		cfg.MetricsBackend = *metricsBackend
	}
	setupMetrics(cfg, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	if err := run(ctx, cfg, options{
		update:         *update,
		forceDownload:  *forceDownload,
		skipDownload:   *skipDownload,
		keepFiles:      *keepFiles,
		lookup:         *lookup,
		html:           *asHTML,
		name:           *name,
		state:          *state,
		compact:        *compact,
		rebuildIndexes: *rebuildIndexes,
		optimize:       *optimize,
		removeInactive: *removeInactive,
		yes:            *yes,
	}); err != nil {
		if ctx.Err() != nil {
			log.Printf("interrupted after %s", time.Since(start).Truncate(time.Millisecond))
			os.Exit(130)
		}
		fatalf("%v", err)
	}
	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

type options struct {
	update         bool
	forceDownload  bool
	skipDownload   bool
	keepFiles      bool
	lookup         string
	html           bool
	name           string
	state          string
	compact        bool
	rebuildIndexes bool
	optimize       bool
	removeInactive bool
	yes            bool
}

func run(ctx context.Context, cfg config.Config, opts options) error {
	switch {
	case opts.update:
		return runUpdate(ctx, cfg, opts)
	case opts.lookup != "":
		return runLookup(ctx, cfg, opts.lookup, opts.html)
	case opts.name != "" || opts.state != "":
		return runSearch(ctx, cfg, opts.name, opts.state)
	case opts.compact, opts.rebuildIndexes, opts.optimize, opts.removeInactive:
		return runMaintenance(ctx, cfg, opts)
	default:
		flag.Usage()
		return fmt.Errorf("no operation requested")
	}
}

func runUpdate(ctx context.Context, cfg config.Config, opts options) error {
	client := httpds.NewClient(httpds.Config{
		MaxRetries: 3,
		UserAgent:  "ulsdb",
	})
	u := updater.New(client, cfg.SourceURL, updater.Paths{
		Archive:    cfg.ArchivePath(),
		ExtractDir: cfg.ExtractDir(),
		Metadata:   cfg.MetadataPath(),
	})
	uopts := updater.Options{
		Force:        opts.forceDownload,
		SkipDownload: opts.skipDownload,
		KeepFiles:    opts.keepFiles,
	}

	extractDir, err := u.Refresh(ctx, uopts)
	if err != nil {
		return err
	}

	fresh := !store.Exists(cfg.DatabasePath)
	s, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	l := loader.New(s, fresh)
	l.BatchSize = cfg.BatchSize
	if err := l.LoadAll(ctx, extractDir, cfg.Tables); err != nil {
		return err
	}

	u.Cleanup(uopts)
	return nil
}

func runLookup(ctx context.Context, cfg config.Config, callSign string, asHTML bool) error {
	s, err := openExisting(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	lic, err := s.RecordByCallSign(ctx, strings.ToUpper(callSign))
	if err != nil {
		return err
	}
	if lic == nil {
		fmt.Printf("No active license found for %s\n", strings.ToUpper(callSign))
		return nil
	}
	if asHTML {
		return display.WriteRecordHTML(os.Stdout, lic)
	}
	display.WriteRecord(os.Stdout, lic)
	return nil
}

func runSearch(ctx context.Context, cfg config.Config, name, state string) error {
	s, err := openExisting(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var lics []store.License
	switch {
	case name != "" && state != "":
		lics, err = s.SearchByNameAndState(ctx, name, state)
	case name != "":
		lics, err = s.SearchByName(ctx, name)
	default:
		lics, err = s.SearchByState(ctx, state)
	}
	if err != nil {
		return err
	}
	display.WriteTable(os.Stdout, lics)
	return nil
}

func runMaintenance(ctx context.Context, cfg config.Config, opts options) error {
	s, err := openExisting(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.removeInactive {
		confirm := confirmPrompt
		if opts.yes {
			confirm = func(int64, []string) bool { return true }
		}
		removed, err := s.RemoveInactive(ctx, confirm)
		if err != nil {
			return err
		}
		if removed > 0 {
			fmt.Printf("Removed %d inactive licenses\n", removed)
		}
	}
	if opts.optimize {
		if err := s.Optimize(ctx); err != nil {
			return err
		}
	}
	if opts.rebuildIndexes {
		if err := s.RebuildIndexes(ctx); err != nil {
			return err
		}
	}
	if opts.compact {
		if err := s.Compact(ctx); err != nil {
			return err
		}
	}
	return nil
}

func openExisting(cfg config.Config) (*store.Store, error) {
	if !store.Exists(cfg.DatabasePath) {
		return nil, fmt.Errorf("database %s does not exist; run with -update first", cfg.DatabasePath)
	}
	return store.Open(cfg.DatabasePath)
}

// confirmPrompt asks on the terminal before a destructive operation.
func confirmPrompt(count int64, sample []string) bool {
	fmt.Printf("About to permanently delete %d inactive licenses.\n", count)
	if len(sample) > 0 {
		fmt.Printf("Examples: %s\n", strings.Join(sample, ", "))
	}
	fmt.Print("Continue? [y/N]: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// signalContext cancels on the first interrupt and force-exits on the second.
func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		log.Printf("interrupt received; finishing current batch (interrupt again to force quit)")
		cancel()
		<-ch
		log.Printf("second interrupt; exiting immediately")
		os.Exit(130)
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}

func setupMetrics(cfg config.Config, verbose bool) {
	switch cfg.MetricsBackend {
	case "pushgateway":
		b, err := prompush.NewBackend("ulsdb", cfg.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; metrics disabled", err)
			return
		}
		if verbose {
			log.Printf("metrics: backend=pushgateway url=%s", cfg.PushgatewayURL)
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: cfg.DatadogAddr, Namespace: "ulsdb."})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; metrics disabled", err)
			return
		}
		if verbose {
			log.Printf("metrics: backend=datadog addr=%s", cfg.DatadogAddr)
		}
		metrics.SetBackend(b)
	default:
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", cfg.MetricsBackend)
		}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

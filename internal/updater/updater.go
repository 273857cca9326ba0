// Package updater keeps the local copy of the FCC weekly license dump
// current: it probes the server's Last-Modified against recorded metadata,
// downloads and extracts the archive when stale, and cleans up the
// intermediate files afterwards.
package updater

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"ulsdb/internal/httpds"
	"ulsdb/internal/metrics"
)

// Paths tells the updater where everything lives.
type Paths struct {
	// Archive is where the downloaded zip is written.
	Archive string

	// ExtractDir receives the unpacked .dat files.
	ExtractDir string

	// Metadata is the JSON sidecar recording the last download.
	Metadata string
}

// Options modify a Refresh run.
type Options struct {
	// Force downloads even when the remote archive is no newer than the
	// recorded one.
	Force bool

	// SkipDownload reuses the already-extracted files (or an already
	// downloaded archive) instead of fetching.
	SkipDownload bool

	// KeepFiles leaves the archive and extracted files on disk after the
	// load instead of removing them.
	KeepFiles bool
}

// Updater performs freshness checks and refreshes against one source URL.
type Updater struct {
	client    *httpds.Client
	sourceURL string
	paths     Paths
}

// New returns an Updater fetching from sourceURL with the given client.
func New(client *httpds.Client, sourceURL string, paths Paths) *Updater {
	return &Updater{client: client, sourceURL: sourceURL, paths: paths}
}

// CheckForUpdate reports whether the remote archive is newer than the last
// recorded download. A failed probe is reported as "no update" with a
// warning: a flaky network must not trigger a multi-gigabyte refresh.
func (u *Updater) CheckForUpdate(ctx context.Context) (bool, time.Time, error) {
	stale, remote, _, err := u.probe(ctx)
	return stale, remote, err
}

func (u *Updater) probe(ctx context.Context) (stale bool, remote time.Time, size int64, err error) {
	meta, err := LoadMetadata(u.paths.Metadata)
	if err != nil {
		return false, time.Time{}, 0, err
	}

	remote, size, err = u.client.Head(ctx, u.sourceURL)
	if err != nil {
		log.Printf("updater: freshness probe failed: %v", err)
		return false, time.Time{}, 0, nil
	}

	// An unknown remote modification time cannot prove freshness; assume the
	// archive changed. Same for a first run with no recorded download.
	if remote.IsZero() || meta.LastModified.IsZero() {
		return true, remote, size, nil
	}
	log.Printf("updater: remote archive modified %s, size %d", remote.Format(time.RFC1123), size)
	return remote.After(meta.LastModified), remote, size, nil
}

// Refresh makes the extraction directory ready for loading and returns its
// path. Depending on opts and current state it downloads and extracts the
// archive, reuses files already on disk, or fails when told to skip a
// download that never happened.
func (u *Updater) Refresh(ctx context.Context, opts Options) (string, error) {
	if opts.SkipDownload {
		if extractionUsable(u.paths.ExtractDir) {
			log.Printf("updater: skipping download, using files in %s", u.paths.ExtractDir)
			return u.paths.ExtractDir, nil
		}
		if _, err := os.Stat(u.paths.Archive); err == nil {
			if err := u.verifyArchive(); err != nil {
				return "", err
			}
			log.Printf("updater: skipping download, extracting existing archive %s", u.paths.Archive)
			if err := extractArchive(ctx, u.paths.Archive, u.paths.ExtractDir); err != nil {
				return "", err
			}
			return u.paths.ExtractDir, nil
		}
		return "", fmt.Errorf("updater: no extracted files or archive to reuse; run without skip-download first")
	}

	stale, remote, size, err := u.probe(ctx)
	if err != nil {
		return "", err
	}
	if !stale && !opts.Force {
		if extractionUsable(u.paths.ExtractDir) {
			log.Printf("updater: local data is current; reusing %s", u.paths.ExtractDir)
			return u.paths.ExtractDir, nil
		}
		log.Printf("updater: no new update available")
		return "", fmt.Errorf("updater: nothing to load: %s has no extracted files; use force-download to fetch again",
			u.paths.ExtractDir)
	}

	start := time.Now()
	checksum, err := u.download(ctx, u.sourceURL, u.paths.Archive, size)
	metrics.RecordStep("download", err, time.Since(start))
	if err != nil {
		return "", err
	}

	start = time.Now()
	err = extractArchive(ctx, u.paths.Archive, u.paths.ExtractDir)
	metrics.RecordStep("extract", err, time.Since(start))
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	meta := Metadata{
		LastDownload:    now,
		LastModified:    remote,
		DownloadDate:    now.Format("2006-01-02"),
		SourceURL:       u.sourceURL,
		ArchiveChecksum: checksum,
	}
	if meta.LastModified.IsZero() {
		// The probe failed but the download succeeded; fall back to now so
		// the next check still has a baseline.
		meta.LastModified = now
	}
	if err := meta.Save(u.paths.Metadata); err != nil {
		return "", err
	}
	return u.paths.ExtractDir, nil
}

// verifyArchive checks the on-disk archive against the checksum recorded at
// download time, when one was recorded.
func (u *Updater) verifyArchive() error {
	meta, err := LoadMetadata(u.paths.Metadata)
	if err != nil || meta.ArchiveChecksum == "" {
		return err
	}
	sum, err := checksumFile(u.paths.Archive)
	if err != nil {
		return fmt.Errorf("updater: checksum archive: %w", err)
	}
	if sum != meta.ArchiveChecksum {
		return fmt.Errorf("updater: archive %s does not match recorded checksum; re-download required",
			u.paths.Archive)
	}
	return nil
}

// Cleanup removes the archive and extracted files unless opts.KeepFiles.
func (u *Updater) Cleanup(opts Options) {
	if opts.KeepFiles {
		log.Printf("updater: keeping downloaded files in place")
		return
	}
	if err := os.Remove(u.paths.Archive); err != nil && !os.IsNotExist(err) {
		log.Printf("updater: remove archive: %v", err)
	}
	if err := os.RemoveAll(u.paths.ExtractDir); err != nil {
		log.Printf("updater: remove extraction dir: %v", err)
	}
}

package updater

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Metadata records what the last successful refresh downloaded. It lives as
// a JSON sidecar next to the database and is the local half of the freshness
// comparison in CheckForUpdate.
type Metadata struct {
	// LastDownload is when the archive finished downloading.
	LastDownload time.Time `json:"last_download_timestamp"`

	// LastModified is the server's Last-Modified for that archive. Freshness
	// checks compare the remote header against this value.
	LastModified time.Time `json:"last_modified_timestamp"`

	// DownloadDate is LastDownload's calendar day, kept for display.
	DownloadDate string `json:"download_date"`

	// SourceURL is the archive URL the data came from.
	SourceURL string `json:"source_url"`

	// ArchiveChecksum is the xxh3 digest of the downloaded archive, hex
	// encoded. Used to detect a truncated or corrupted download on disk.
	ArchiveChecksum string `json:"archive_checksum,omitempty"`
}

// LoadMetadata reads the sidecar at path. A missing file returns a zero
// Metadata and no error: absence just means no recorded download.
func LoadMetadata(path string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, fmt.Errorf("updater: read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("updater: parse metadata %s: %w", path, err)
	}
	return m, nil
}

// Save writes m to path atomically (write temp, rename).
func (m Metadata) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("updater: encode metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("updater: create metadata dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("updater: write metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("updater: replace metadata: %w", err)
	}
	return nil
}

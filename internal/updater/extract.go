package updater

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// extractArchive unpacks the zip at archivePath into destDir, replacing any
// previous contents. Entry names are constrained to destDir; an entry that
// would escape it fails the whole extraction.
func extractArchive(ctx context.Context, archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("updater: open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("updater: clear extraction dir: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("updater: create extraction dir: %w", err)
	}

	var files int
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := extractOne(f, destDir); err != nil {
			return err
		}
		if !f.FileInfo().IsDir() {
			files++
		}
	}
	if files == 0 {
		return fmt.Errorf("updater: archive %s contains no files", archivePath)
	}
	log.Printf("updater: extracted %d files to %s", files, destDir)
	return nil
}

func extractOne(f *zip.File, destDir string) error {
	dest := filepath.Join(destDir, f.Name)
	if rel, err := filepath.Rel(destDir, dest); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("updater: archive entry %q escapes extraction dir", f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("updater: open archive entry %q: %w", f.Name, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("updater: create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("updater: extract %q: %w", f.Name, err)
	}
	return out.Close()
}

// extractionUsable reports whether dir holds at least one .dat file, which is
// the precondition for loading from it without a fresh extraction.
func extractionUsable(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".dat") {
			return true
		}
	}
	return false
}

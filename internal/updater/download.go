package updater

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"
	"golang.org/x/sys/unix"

	"ulsdb/internal/progress"
)

// diskHeadroom is how much the free-space check demands beyond the archive
// itself: the extracted .dat files are several times larger than the zip.
const diskHeadroom = 4

// checkDiskSpace fails when the filesystem holding dir cannot hold the
// archive plus extraction headroom. size <= 0 (unknown Content-Length) skips
// the check.
func checkDiskSpace(dir string, size int64) error {
	if size <= 0 {
		return nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		log.Printf("updater: cannot stat filesystem at %s: %v", dir, err)
		return nil
	}
	free := int64(st.Bavail) * st.Bsize
	need := size * diskHeadroom
	if free < need {
		return fmt.Errorf("updater: not enough disk space in %s: %s free, %s needed",
			dir, humanize.Bytes(uint64(free)), humanize.Bytes(uint64(need)))
	}
	return nil
}

// download streams the archive at url to destPath, reporting progress and
// returning the hex xxh3 checksum of the bytes written. The file lands under
// its final name only after a complete write.
func (u *Updater) download(ctx context.Context, url, destPath string, expectSize int64) (string, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("updater: create download dir: %w", err)
	}
	if err := checkDiskSpace(filepath.Dir(destPath), expectSize); err != nil {
		return "", err
	}

	resp, err := u.client.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("updater: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	tmp := destPath + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("updater: create %s: %w", tmp, err)
	}

	hash := xxh3.New()
	pw := progress.NewWriter("downloading archive", resp.ContentLength)
	n, err := io.Copy(io.MultiWriter(f, hash, pw), resp.Body)
	pw.Done()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("updater: download %s: %w", url, err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("updater: short download: got %d of %d bytes", n, resp.ContentLength)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("updater: finalize download: %w", err)
	}
	log.Printf("updater: downloaded %s (%s)", destPath, humanize.Bytes(uint64(n)))
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// checksumFile returns the hex xxh3 digest of the file at path.
func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hash := xxh3.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/edl-tools/tachyon-setup/pkg/security"
	"github.com/edl-tools/tachyon-setup/pkg/storage"
)

const partSuffix = ".part"

// ProgressFunc is called as bytes arrive. total is -1 when unknown.
type ProgressFunc func(done, total int64)

// Cache stores artifacts under <dir>/<sha256>/<file name>.
type Cache struct {
	dir       string
	opener    storage.Opener
	validator *security.Validator
	progress  ProgressFunc
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string, opener storage.Opener, validator *security.Validator) *Cache {
	return &Cache{dir: dir, opener: opener, validator: validator}
}

// OnProgress registers a progress callback.
func (c *Cache) OnProgress(fn ProgressFunc) {
	c.progress = fn
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// Options tune a download.
type Options struct {
	// AlwaysCleanCache drops any cached or partial copy first.
	AlwaysCleanCache bool
}

// Download returns the local path of artifact, fetching it if needed. A
// partial file left by an earlier run is resumed. The result is only moved
// into place after its SHA-256 matches; a mismatch removes the entry.
func (c *Cache) Download(ctx context.Context, a Artifact, opts Options) (string, error) {
	name := a.FileName()
	if err := c.validator.ValidateArtifactName(name); err != nil {
		return "", err
	}
	if err := c.validator.ValidateChecksum(a.SHA256); err != nil {
		return "", err
	}
	u, err := c.validator.ValidateURL(a.URL)
	if err != nil {
		return "", err
	}

	sum := strings.ToLower(a.SHA256)
	entry := filepath.Join(c.dir, sum)
	final := filepath.Join(entry, name)
	part := final + partSuffix

	if opts.AlwaysCleanCache {
		slog.Info("download_cache_clean", "entry", entry)
		if err := os.RemoveAll(entry); err != nil {
			return "", errors.Wrap(err, "failed to clean cache entry")
		}
	}

	if fi, err := os.Stat(final); err == nil && fi.Mode().IsRegular() {
		slog.Info("download_cache_hit", "path", final, "size", humanize.Bytes(uint64(fi.Size())))
		return final, nil
	}

	if err := os.MkdirAll(entry, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create cache entry")
	}

	h := sha256.New()
	offset, err := hashExisting(part, h)
	if err != nil {
		return "", err
	}

	obj, err := c.opener.Open(ctx, u, offset)
	if err != nil && offset > 0 {
		slog.Warn("download_resume_failed", "file", name, "offset", offset, "error", err)
		if rmErr := os.Remove(part); rmErr != nil {
			return "", errors.Wrap(rmErr, "failed to drop partial download")
		}
		h.Reset()
		offset = 0
		obj, err = c.opener.Open(ctx, u, 0)
	}
	if err != nil {
		return "", err
	}
	defer obj.Body.Close()

	if obj.Size > 0 {
		if err := c.validator.ValidateFileSize(obj.Size); err != nil {
			return "", err
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if obj.Offset == 0 {
		// Fresh start, or the server ignored the range request.
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		h.Reset()
		offset = 0
	}
	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "failed to open partial download")
	}

	slog.Info("download_start",
		"file", name,
		"resume_from", humanize.Bytes(uint64(offset)),
		"total", sizeString(obj.Size))

	w := io.MultiWriter(f, h, &progressWriter{done: offset, total: obj.Size, fn: c.progress})
	n, copyErr := io.Copy(w, limitReader(obj.Body, c.validator.MaxArtifactSize()-offset))
	closeErr := f.Close()
	if copyErr != nil {
		slog.Error("download_interrupted", "file", name, "received", humanize.Bytes(uint64(offset+n)), "error", copyErr)
		return "", errors.Wrap(copyErr, "download interrupted")
	}
	if closeErr != nil {
		return "", errors.Wrap(closeErr, "failed to write partial download")
	}
	if err := c.validator.ValidateFileSize(offset + n); err != nil {
		os.Remove(part)
		return "", err
	}

	got := hex.EncodeToString(h.Sum(nil))
	if got != sum {
		slog.Error("download_checksum_mismatch", "file", name, "expected", sum, "actual", got)
		os.RemoveAll(entry)
		return "", errors.Newf(errors.KindChecksumMismatch,
			"Checksum mismatch for %s: expected %s, got %s", name, sum, got)
	}

	if err := os.Rename(part, final); err != nil {
		return "", errors.Wrap(err, "failed to finalize download")
	}

	slog.Info("download_complete", "path", final, "size", humanize.Bytes(uint64(offset+n)), "sha256", sum[:16]+"...")
	return final, nil
}

// Purge removes every cache entry and returns the bytes freed.
func (c *Cache) Purge() (int64, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to read cache")
	}

	var freed int64
	for _, e := range entries {
		p := filepath.Join(c.dir, e.Name())
		freed += dirSize(p)
		if err := os.RemoveAll(p); err != nil {
			return freed, errors.Wrap(err, "failed to remove cache entry")
		}
	}
	slog.Info("download_cache_purged", "dir", c.dir, "entries", len(entries), "freed", humanize.Bytes(uint64(freed)))
	return freed, nil
}

// hashExisting feeds an existing partial file into h and returns its size.
func hashExisting(path string, h hash.Hash) (int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to open partial download")
	}
	defer f.Close()

	n, err := io.Copy(h, f)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read partial download")
	}
	return n, nil
}

func dirSize(root string) int64 {
	var size int64
	filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}

func sizeString(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}

// limitReader stops one byte past max so oversize bodies are detected.
func limitReader(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return io.LimitReader(r, max+1)
}

type progressWriter struct {
	done, total int64
	fn          ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.fn != nil {
		p.fn(p.done, p.total)
	}
	return len(b), nil
}

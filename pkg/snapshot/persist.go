package snapshot

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/muninn/pkg/ident"
)

// backupTimeLayout names timestamped backups: <path>.backup.<UTC stamp>.
// Colons are replaced with dashes so the name is safe on every filesystem.
const backupTimeLayout = "2006-01-02T15-04-05"

// BackupInfo describes one backup file beside a snapshot.
type BackupInfo struct {
	Path    string
	Created time.Time
	Size    int64
	Digest  string
}

// Controller performs crash-safe snapshot persistence.
//
// Saves write to a temporary sibling and rename over the destination, which
// is atomic on POSIX filesystems: readers either see the old snapshot or
// the new one, never a torn write. Each save returns the BLAKE2b-256 digest
// of the bytes written and ListBackups reports each backup's digest; the
// digests are not stored, and recovery trusts a backup that decodes and
// validates without comparing digests.
type Controller struct {
	clock ident.Clock
	log   *zap.Logger
}

// NewController creates a Controller. Nil arguments fall back to the wall
// clock and a no-op logger.
func NewController(clock ident.Clock, log *zap.Logger) *Controller {
	if clock == nil {
		clock = ident.WallClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{clock: clock, log: log}
}

// Digest returns the hex BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Save atomically writes the document to path, creating parent directories
// as needed. Returns the digest of the written bytes.
func (c *Controller) Save(ctx context.Context, doc *Document, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := Encode(doc)
	if err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrIO, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %v", ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("%w: temp file: %v", ErrIO, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write %s: %v", ErrIO, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: sync %s: %v", ErrIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %v", ErrIO, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("%w: rename to %s: %v", ErrIO, path, err)
	}

	digest := Digest(data)
	c.log.Debug("snapshot saved",
		zap.String("path", path),
		zap.Int("bytes", len(data)),
		zap.String("digest", digest[:12]))
	return digest, nil
}

// SaveWithBackup copies an existing destination to <path>.backup before
// saving, so the previous snapshot survives one overwrite.
func (c *Controller) SaveWithBackup(ctx context.Context, doc *Document, path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			return "", fmt.Errorf("%w: backup before save: %v", ErrIO, err)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	return c.Save(ctx, doc, path)
}

// CreateBackup copies the snapshot at path to a timestamped sibling and
// returns the backup path.
func (c *Controller) CreateBackup(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}

	stamp := c.clock.Now().UTC().Format(backupTimeLayout)
	backupPath := path + ".backup." + stamp
	if err := copyFile(path, backupPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	return backupPath, nil
}

// ListBackups enumerates the backups beside path, newest first. Both the
// plain <path>.backup and timestamped variants are included.
func (c *Controller) ListBackups(path string) ([]BackupInfo, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []BackupInfo{}, nil
		}
		return nil, fmt.Errorf("%w: read dir %s: %v", ErrIO, dir, err)
	}

	backups := make([]BackupInfo, 0)
	for _, entry := range entries {
		name := entry.Name()
		if name != base+".backup" && !strings.HasPrefix(name, base+".backup.") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		full := filepath.Join(dir, name)
		backups = append(backups, BackupInfo{
			Path:    full,
			Created: backupCreationTime(base, name, info),
			Size:    info.Size(),
			Digest:  fileDigest(full),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Created.After(backups[j].Created)
	})
	return backups, nil
}

// CleanupOldBackups deletes all but the newest keepN backups and reports
// how many were removed.
func (c *Controller) CleanupOldBackups(path string, keepN int) (int, error) {
	if keepN < 0 {
		keepN = 0
	}
	backups, err := c.ListBackups(path)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, backup := range backups[min(keepN, len(backups)):] {
		if err := os.Remove(backup.Path); err != nil {
			return removed, fmt.Errorf("%w: remove %s: %v", ErrIO, backup.Path, err)
		}
		removed++
	}
	return removed, nil
}

// Load reads, parses, and validates the snapshot at path.
func (c *Controller) Load(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
	}
	return Decode(data)
}

// LoadWithRecovery loads the snapshot at path, falling back to
// <path>.backup on any failure. When neither file exists the error is
// ErrNoBackup; a corrupt primary with no backup surfaces the primary's
// error.
func (c *Controller) LoadWithRecovery(ctx context.Context, path string) (*Document, error) {
	doc, primaryErr := c.Load(ctx, path)
	if primaryErr == nil {
		return doc, nil
	}

	backupPath := path + ".backup"
	doc, backupErr := c.Load(ctx, backupPath)
	if backupErr == nil {
		c.log.Warn("snapshot recovered from backup",
			zap.String("path", path),
			zap.String("backup", backupPath),
			zap.NamedError("primary_error", primaryErr))
		return doc, nil
	}

	if errors.Is(primaryErr, ErrFileNotFound) && errors.Is(backupErr, ErrFileNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoBackup, path)
	}
	return nil, primaryErr
}

func backupCreationTime(base, name string, info fs.FileInfo) time.Time {
	suffix := strings.TrimPrefix(name, base+".backup")
	suffix = strings.TrimPrefix(suffix, ".")
	if suffix != "" {
		if t, err := time.Parse(backupTimeLayout, suffix); err == nil {
			return t
		}
	}
	return info.ModTime().UTC()
}

func fileDigest(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return Digest(data)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

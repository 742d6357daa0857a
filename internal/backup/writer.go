// Package backup writes files in place, keeping a timestamped copy of whatever
// was there before.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
)

const (
	// Marker identifies a backup copy. It sits between a file's stem and its
	// extension.
	Marker = ".backup."

	// TimestampLayout is the time format embedded in backup names. It sorts
	// lexically in time order.
	TimestampLayout = "20060102-150405"

	// maxCollisions bounds the counter suffix used when two backups of the
	// same file fall in the same second.
	maxCollisions = 1000
)

// PathFor returns the backup path for path at time t:
// config.jsonc -> config.backup.20261018-153000.jsonc, config -> config.backup.20261018-153000.
func PathFor(path string, t time.Time) string {
	return pathWithStamp(path, t.Format(TimestampLayout))
}

func pathWithStamp(path, stamp string) string {
	dir, name := filepath.Split(path)
	stem, ext := splitExt(name)
	return dir + stem + Marker + stamp + ext
}

// splitExt splits name at its last dot. A leading dot (".env") does not count
// as an extension.
func splitExt(name string) (string, string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// IsBackup reports whether name looks like a backup produced by this package.
func IsBackup(name string) bool {
	return strings.Contains(filepath.Base(name), Marker)
}

// Writer replaces files, backing up the previous content first.
type Writer struct {
	now func() time.Time
}

// NewWriter returns a Writer that stamps backups with the wall clock.
func NewWriter() *Writer {
	return &Writer{now: time.Now}
}

// NewWriterWithClock returns a Writer that stamps backups using now.
func NewWriterWithClock(now func() time.Time) *Writer {
	return &Writer{now: now}
}

// WriteWithBackup replaces the content of path with content. If path exists it
// is copied to a new backup first; the backup path is returned. A symlinked
// path is written through, with the backup placed next to the linked file. On
// failure the target is left untouched and no backup remains.
func (w *Writer) WriteWithBackup(path string, content []byte) (string, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.IsDir() {
			return "", apperr.New(apperr.Validation, "%s is a directory", path)
		}
	case errors.Is(err, fs.ErrNotExist):
		info = nil
	default:
		return "", apperr.FromOS("checking", path, err)
	}

	if info != nil {
		// Write through symlinks so the linked file gets the new content
		if linfo, err := os.Lstat(path); err == nil && linfo.Mode()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				return "", apperr.FromOS("resolving", path, err)
			}
			klog.V(2).Infof("Writing %s through link %s", resolved, path)
			path = resolved
		}
	}

	var backupPath string
	if info != nil {
		backupPath, err = w.createBackup(path, info.Mode().Perm())
		if err != nil {
			return "", err
		}
		klog.V(2).Infof("Backed up %s to %s", path, backupPath)
	}

	mode := fs.FileMode(0644)
	if info != nil {
		mode = info.Mode().Perm()
	}

	if err := replace(path, content, mode); err != nil {
		if backupPath != "" {
			if rmErr := os.Remove(backupPath); rmErr != nil {
				klog.ErrorS(rmErr, "Failed to remove backup after write failure", "backup", backupPath)
			}
		}
		return "", err
	}

	return backupPath, nil
}

// Backup copies path to a new backup file without modifying path.
func (w *Writer) Backup(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", apperr.FromOS("checking", path, err)
	}
	return w.createBackup(path, info.Mode().Perm())
}

// createBackup copies path to a backup name that did not exist before. The
// file is opened with O_EXCL so an existing backup is never overwritten.
func (w *Writer) createBackup(path string, mode fs.FileMode) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", apperr.FromOS("reading", path, err)
	}
	defer src.Close()

	stamp := w.now().Format(TimestampLayout)
	var dst *os.File
	var backupPath string
	for n := 0; n < maxCollisions; n++ {
		s := stamp
		if n > 0 {
			s = fmt.Sprintf("%s-%d", stamp, n)
		}
		backupPath = pathWithStamp(path, s)
		dst, err = os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", apperr.FromOS("creating backup", backupPath, err)
		}
	}
	if dst == nil {
		return "", apperr.New(apperr.AlreadyExists, "no free backup name for %s at %s", path, stamp)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", apperr.FromOS("writing backup", backupPath, err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", apperr.FromOS("syncing backup", backupPath, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(backupPath)
		return "", apperr.FromOS("closing backup", backupPath, err)
	}

	return backupPath, nil
}

// replace is swapped out by tests to simulate write failures
var replace = replaceFile

// replaceFile writes content to a temp file next to path and renames it into
// place, so readers see either the old content or the new content.
func replaceFile(path string, content []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return apperr.FromOS("writing", path, err)
	}
	tmpPath := tmp.Name()

	fail := func(op string, err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.FromOS(op, path, err)
	}

	if _, err := tmp.Write(content); err != nil {
		return fail("writing", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fail("setting mode of", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.FromOS("closing", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return apperr.FromOS("replacing", path, err)
	}
	return nil
}

// List returns the backup file names in dir, newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.FromOS("listing backups in", dir, err)
	}

	var backups []string
	for _, entry := range entries {
		if entry.IsDir() || !IsBackup(entry.Name()) {
			continue
		}
		backups = append(backups, entry.Name())
	}

	sort.SliceStable(backups, func(i, j int) bool {
		si, ni := stampOf(backups[i])
		sj, nj := stampOf(backups[j])
		if si != sj {
			return si > sj
		}
		if ni != nj {
			return ni > nj
		}
		return backups[i] < backups[j]
	})

	return backups, nil
}

// stampOf splits a backup name into its timestamp and collision counter.
func stampOf(name string) (string, int) {
	i := strings.LastIndex(name, Marker)
	if i < 0 {
		return "", 0
	}
	rest := name[i+len(Marker):]
	if len(rest) < len(TimestampLayout) {
		return rest, 0
	}
	stamp, rest := rest[:len(TimestampLayout)], rest[len(TimestampLayout):]

	n := 0
	if strings.HasPrefix(rest, "-") {
		for _, c := range rest[1:] {
			if c < '0' || c > '9' {
				break
			}
			n = n*10 + int(c-'0')
		}
	}
	return stamp, n
}

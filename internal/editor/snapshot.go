package editor

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
	"k8s.io/klog/v2"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
	"github.com/WhyIsSandwich/barctl/internal/backup"
)

const (
	snapshotPrefix = "waybar-"
	snapshotSuffix = ".tar.xz"
)

// SnapshotDir returns where snapshots are stored
func (e *Editor) SnapshotDir() string {
	return filepath.Join(e.dataDir, "snapshots")
}

// Snapshot archives the whole configuration directory as tar.xz and returns
// the archive path. Backup copies inside the directory are left out.
func (e *Editor) Snapshot(configDir string) (string, error) {
	snapDir := e.SnapshotDir()
	if err := os.MkdirAll(snapDir, 0755); err != nil {
		return "", apperr.FromOS("creating snapshot directory", snapDir, err)
	}

	f, snapPath, err := e.createSnapshotFile(snapDir)
	if err != nil {
		return "", err
	}

	if err := writeSnapshot(f, configDir); err != nil {
		f.Close()
		os.Remove(snapPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(snapPath)
		return "", apperr.FromOS("closing snapshot", snapPath, err)
	}

	klog.InfoS("Created snapshot", "dir", configDir, "snapshot", snapPath)
	return snapPath, nil
}

func (e *Editor) createSnapshotFile(snapDir string) (*os.File, string, error) {
	stamp := e.now().Format(backup.TimestampLayout)
	for n := 0; n < 100; n++ {
		name := snapshotPrefix + stamp
		if n > 0 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		p := filepath.Join(snapDir, name+snapshotSuffix)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, p, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", apperr.FromOS("creating snapshot", p, err)
		}
	}
	return nil, "", apperr.New(apperr.AlreadyExists, "no free snapshot name at %s", stamp)
}

func writeSnapshot(w io.Writer, configDir string) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "creating xz writer", err)
	}
	tw := tar.NewWriter(xw)

	err = filepath.WalkDir(configDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == configDir {
			return nil
		}
		if backup.IsBackup(d.Name()) {
			return nil
		}

		relPath, err := filepath.Rel(configDir, path)
		if err != nil {
			return fmt.Errorf("getting relative path: %w", err)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("creating tar header: %w", err)
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("writing tar header: %w", err)
		}

		if info.Mode().IsRegular() {
			src, err := os.Open(path)
			if err != nil {
				return err
			}
			defer src.Close()
			if _, err := io.Copy(tw, src); err != nil {
				return fmt.Errorf("writing %s: %w", relPath, err)
			}
		}

		klog.V(4).Infof("Added %s to snapshot", relPath)
		return nil
	})
	if err != nil {
		return apperr.FromOS("archiving", configDir, err)
	}

	if err := tw.Close(); err != nil {
		return apperr.Wrap(apperr.IO, "closing tar stream", err)
	}
	if err := xw.Close(); err != nil {
		return apperr.Wrap(apperr.IO, "closing xz stream", err)
	}
	return nil
}

// ListSnapshots returns snapshot file names, newest first
func (e *Editor) ListSnapshots() ([]string, error) {
	pattern := filepath.Join(e.SnapshotDir(), snapshotPrefix+"*"+snapshotSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "listing snapshots", err)
	}

	snapshots := make([]string, 0, len(matches))
	for _, m := range matches {
		snapshots = append(snapshots, filepath.Base(m))
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshotKey(snapshots[i]) > snapshotKey(snapshots[j])
	})
	return snapshots, nil
}

// snapshotKey pads the collision counter so keys sort by time, then counter.
func snapshotKey(name string) string {
	base := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
	n := len(backup.TimestampLayout)
	if len(base) <= n {
		return base
	}
	counter, err := strconv.Atoi(strings.TrimPrefix(base[n:], "-"))
	if err != nil {
		return base
	}
	return fmt.Sprintf("%s-%08d", base[:n], counter)
}

// RestoreSnapshot extracts a snapshot into configDir. Every regular file that
// already exists is backed up before it is replaced; files not present in the
// snapshot are left alone.
func (e *Editor) RestoreSnapshot(name, configDir string) ([]string, error) {
	snapPath := name
	if !strings.ContainsRune(name, filepath.Separator) {
		snapPath = filepath.Join(e.SnapshotDir(), name)
	}

	f, err := os.Open(snapPath)
	if err != nil {
		return nil, apperr.FromOS("opening snapshot", snapPath, err)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.Parse, Op: "reading snapshot", Path: snapPath, Err: err}
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, apperr.FromOS("creating config directory", configDir, err)
	}

	var restored []string
	tr := tar.NewReader(xr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, &apperr.Error{Kind: apperr.Parse, Op: "reading snapshot", Path: snapPath, Err: err}
		}

		target, err := safeJoin(configDir, header.Name)
		if err != nil {
			return restored, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return restored, apperr.FromOS("creating directory", target, err)
			}
		case tar.TypeReg:
			data, err := io.ReadAll(tr)
			if err != nil {
				return restored, &apperr.Error{Kind: apperr.Parse, Op: "reading snapshot entry", Path: header.Name, Err: err}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return restored, apperr.FromOS("creating directory", filepath.Dir(target), err)
			}
			if _, err := e.writer.WriteWithBackup(target, data); err != nil {
				return restored, err
			}
			restored = append(restored, target)
		case tar.TypeSymlink:
			if _, err := os.Lstat(target); err == nil {
				klog.V(2).Infof("Keeping existing %s instead of snapshot symlink", target)
				continue
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return restored, apperr.FromOS("creating symlink", target, err)
			}
			restored = append(restored, target)
		default:
			klog.V(2).Infof("Skipping snapshot entry %s (type %c)", header.Name, header.Typeflag)
		}
	}

	klog.InfoS("Restored snapshot", "snapshot", snapPath, "files", len(restored))
	return restored, nil
}

// safeJoin joins an archive entry name onto dir, rejecting names that would
// land outside dir.
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.Validation, "snapshot entry %q escapes %s", name, dir)
	}
	return target, nil
}

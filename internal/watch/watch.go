// Package watch reloads the bar when its config or style file changes.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
	"github.com/WhyIsSandwich/barctl/internal/backup"
)

// DefaultDebounce is the quiet period after the last event before the
// callback runs
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc receives the files changed during one debounce window
type ChangeFunc func(ctx context.Context, changed []string) error

// Watcher watches a fixed set of files
type Watcher struct {
	files    map[string]bool
	debounce time.Duration
	onChange ChangeFunc
}

// New creates a watcher for files. Files need not exist yet. Symlinked files
// are watched at both ends of the link.
func New(files []string, debounce time.Duration, onChange ChangeFunc) (*Watcher, error) {
	if len(files) == 0 {
		return nil, apperr.New(apperr.Validation, "no files to watch")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{files: make(map[string]bool), debounce: debounce, onChange: onChange}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, apperr.Wrap(apperr.IO, "resolving "+f, err)
		}
		w.files[abs] = true
		// Saves through a symlink land on the linked file
		if resolved, err := filepath.EvalSymlinks(abs); err == nil && resolved != abs {
			w.files[resolved] = true
		}
	}
	return w, nil
}

// Files returns the watched files, sorted
func (w *Watcher) Files() []string {
	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Relevant reports whether an event on path should trigger the callback.
// Backups and the temp files used for atomic writes are skipped.
func (w *Watcher) Relevant(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if !w.files[abs] {
		return false
	}
	name := filepath.Base(abs)
	return !backup.IsBackup(name) && !isTempFile(name)
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}

// Run watches until ctx is cancelled. Callback errors are logged and do not
// stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperr.Wrap(apperr.IO, "creating file watcher", err)
	}
	defer fw.Close()

	// Watch directories so rename-based saves are seen
	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return apperr.FromOS("watching", dir, err)
		}
		klog.V(1).Infof("Watching %s", dir)
	}

	changes := make(chan string)
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		for {
			select {
			case <-egCtx.Done():
				return nil
			case event, ok := <-fw.Events:
				if !ok {
					return nil
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if !w.Relevant(event.Name) {
					continue
				}
				klog.V(2).Infof("Event %s", event)
				select {
				case changes <- event.Name:
				case <-egCtx.Done():
					return nil
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return nil
				}
				klog.ErrorS(err, "File watcher error")
			}
		}
	})

	eg.Go(func() error {
		return w.debounceLoop(egCtx, changes)
	})

	return eg.Wait()
}

func (w *Watcher) debounceLoop(ctx context.Context, changes <-chan string) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case name := <-changes:
			pending[name] = true
			timer.Reset(w.debounce)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			clear(pending)

			klog.InfoS("Files changed", "files", changed)
			if err := w.onChange(ctx, changed); err != nil {
				klog.ErrorS(err, "Change handler failed", "files", changed)
			}
		}
	}
}

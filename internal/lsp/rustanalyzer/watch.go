package rustanalyzer

import (
	"context"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// DefaultDebounce is how long ManifestWatcher waits for changes to
// settle before reloading the workspace.
const DefaultDebounce = 500 * time.Millisecond

// ManifestWatcher reloads the workspace when a Cargo.toml or Cargo.lock
// file changes.
type ManifestWatcher struct {
	w        *fsnotify.Watcher
	reload   func(context.Context) error
	debounce time.Duration

	// Logger receives reload failures. Nil uses the standard logger.
	Logger *log.Logger
}

// NewManifestWatcher watches every directory under root that contains
// a Cargo.toml, skipping target and hidden directories.
func NewManifestWatcher(root string, debounce time.Duration, reload func(context.Context) error) (*ManifestWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	dirs, err := manifestDirs(root)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, errors.Wrapf(err, "failed to watch %v", dir)
		}
	}
	return &ManifestWatcher{
		w:        w,
		reload:   reload,
		debounce: debounce,
	}, nil
}

// manifestDirs returns root and the directories below it holding a
// Cargo.toml.
func manifestDirs(root string) ([]string, error) {
	dirs := []string{root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == "Cargo.toml" {
			if dir := filepath.Dir(path); dir != root {
				dirs = append(dirs, dir)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %v", root)
	}
	return dirs, nil
}

func skipDir(name string) bool {
	return name == "target" || strings.HasPrefix(name, ".")
}

func isManifest(path string) bool {
	switch filepath.Base(path) {
	case "Cargo.toml", "Cargo.lock":
		return true
	}
	return false
}

func (mw *ManifestWatcher) printf(format string, v ...interface{}) {
	if mw.Logger != nil {
		mw.Logger.Printf(format, v...)
		return
	}
	log.Printf(format, v...)
}

// Run waits for manifest changes until ctx is done or the watcher is
// closed. Each burst of changes results in one reload.
func (mw *ManifestWatcher) Run(ctx context.Context) error {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-mw.w.Events:
			if !ok {
				return nil
			}
			if !isManifest(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(mw.debounce)
			} else {
				timer.Reset(mw.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if err := mw.reload(ctx); err != nil {
				mw.printf("workspace reload failed: %v", err)
			}

		case err, ok := <-mw.w.Errors:
			if !ok {
				return nil
			}
			mw.printf("manifest watcher: %v", err)
		}
	}
}

// Close stops watching.
func (mw *ManifestWatcher) Close() error {
	return mw.w.Close()
}

package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/tabletype"
)

// Watch performs an initial scan, then rescans whenever a record file under
// the store root is created, written, renamed or removed. Bursts of events
// are coalesced by the debounce interval. Watch blocks until ctx is done or
// Close is called.
func (ix *Index) Watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ix.timerMu.Lock()
	ix.cancel = cancel
	ix.timerMu.Unlock()
	defer cancel()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	root := ix.st.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("creating store root: %w", err)
	}
	if err := w.Add(root); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	for _, t := range tabletype.All {
		ix.watchFolder(w, ix.st.Dir(t))
	}

	if err := ix.Rescan(ctx); err != nil {
		return err
	}
	ix.log.Info().Msg("watching record store")

	for {
		select {
		case <-ctx.Done():
			ix.stopTimer()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			ix.handleEvent(ctx, w, ev)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.log.Warn().Err(err).Msg("watcher error")
			ix.RequestRescan(ctx)
		}
	}
}

func (ix *Index) watchFolder(w *fsnotify.Watcher, dir string) {
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return
	}
	if err := w.Add(dir); err != nil {
		ix.log.Warn().Str("dir", dir).Err(err).Msg("cannot watch folder")
	}
}

func (ix *Index) handleEvent(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event) {
	if filepath.Dir(ev.Name) == filepath.Clean(ix.st.Root()) {
		if _, ok := tabletype.FromFolder(filepath.Base(ev.Name)); ok {
			// A type folder created after start needs its own watch.
			if ev.Has(fsnotify.Create) {
				ix.watchFolder(w, ev.Name)
			}
			ix.RequestRescan(ctx)
		}
		return
	}
	if !relevant(ev) {
		return
	}
	ix.log.Debug().Str("event", ev.Op.String()).Str("path", ev.Name).Msg("store changed")
	ix.RequestRescan(ctx)
}

// relevant reports whether ev concerns a record file in a type folder.
func relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if _, ok := store.UIDFromFile(name); !ok {
		return false
	}
	_, ok := tabletype.FromFolder(filepath.Base(filepath.Dir(ev.Name)))
	return ok
}

// RequestRescan schedules a rescan after the debounce interval. Requests
// arriving before it fires push it back, so a burst causes one scan.
func (ix *Index) RequestRescan(ctx context.Context) {
	ix.timerMu.Lock()
	defer ix.timerMu.Unlock()
	// Stop fails once the callback is running; that timer is spent.
	if ix.timer != nil && ix.timer.Stop() {
		ix.timer.Reset(ix.debounce)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(ix.debounce, func() {
		ix.timerMu.Lock()
		if ix.timer == t {
			ix.timer = nil
		}
		ix.timerMu.Unlock()
		if err := ix.Rescan(ctx); err != nil && ctx.Err() == nil {
			ix.log.Error().Err(err).Msg("rescan failed")
		}
	})
	ix.timer = t
}

func (ix *Index) stopTimer() {
	ix.timerMu.Lock()
	defer ix.timerMu.Unlock()
	if ix.timer != nil {
		ix.timer.Stop()
		ix.timer = nil
	}
}

// Close stops a running Watch and any pending rescan.
func (ix *Index) Close() {
	ix.timerMu.Lock()
	cancel := ix.cancel
	ix.cancel = nil
	ix.timerMu.Unlock()
	if cancel != nil {
		cancel()
	}
	ix.stopTimer()
}

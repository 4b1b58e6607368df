package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debouncer collapses a burst of Trigger calls into one action call after
// the burst has been quiet for the configured duration.
type Debouncer struct {
	mu       sync.Mutex
	duration time.Duration
	action   func()
	timer    *time.Timer
}

// NewDebouncer creates a debouncer for action.
func NewDebouncer(d time.Duration, action func()) *Debouncer {
	return &Debouncer{duration: d, action: action}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.action)
}

// Cancel drops a pending action.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// DBWatcher reports changes to the database file and its WAL, using
// filesystem events or polling when fsnotify is unavailable.
type DBWatcher struct {
	watcher      *fsnotify.Watcher
	debouncer    *Debouncer
	dbPath       string
	dir          string
	pollingMode  bool
	pollInterval time.Duration
	lastModTime  time.Time
	lastSize     int64
	wg           sync.WaitGroup
}

// NewDBWatcher watches dbPath. onChanged runs after changes settle.
// Falls back to polling unless PM_WATCHER_FALLBACK is "false" or "0".
func NewDBWatcher(dbPath string, onChanged func()) (*DBWatcher, error) {
	w := &DBWatcher{
		dbPath:       dbPath,
		dir:          filepath.Dir(dbPath),
		debouncer:    NewDebouncer(300*time.Millisecond, onChanged),
		pollInterval: 2 * time.Second,
	}
	w.lastModTime, w.lastSize = w.stat()

	fallback := os.Getenv("PM_WATCHER_FALLBACK")
	fallbackDisabled := fallback == "false" || fallback == "0"

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory: SQLite writes land in the -wal file and
		// checkpoints may replace the main file.
		if err = watcher.Add(w.dir); err != nil {
			_ = watcher.Close()
		}
	}
	if err != nil {
		if fallbackDisabled {
			return nil, fmt.Errorf("file watching unavailable and PM_WATCHER_FALLBACK is disabled: %w", err)
		}
		logger.Warn("fsnotify unavailable, polling instead", "error", err, "interval", w.pollInterval)
		w.pollingMode = true
		return w, nil
	}
	w.watcher = watcher
	return w, nil
}

func (w *DBWatcher) stat() (time.Time, int64) {
	var mod time.Time
	var size int64
	for _, p := range []string{w.dbPath, w.dbPath + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			if info.ModTime().After(mod) {
				mod = info.ModTime()
			}
			size += info.Size()
		}
	}
	return mod, size
}

func (w *DBWatcher) relevant(name string) bool {
	base := filepath.Base(w.dbPath)
	return strings.HasPrefix(filepath.Base(name), base)
}

// Start runs until ctx is cancelled.
func (w *DBWatcher) Start(ctx context.Context) {
	w.wg.Add(1)
	if w.pollingMode {
		go w.poll(ctx)
		return
	}
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if w.relevant(event.Name) && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					w.debouncer.Trigger()
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *DBWatcher) poll(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mod, size := w.stat()
			if !mod.Equal(w.lastModTime) || size != w.lastSize {
				w.lastModTime, w.lastSize = mod, size
				w.debouncer.Trigger()
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops watching and waits for the event loop to exit. Cancel the
// context passed to Start first when polling.
func (w *DBWatcher) Close() error {
	w.debouncer.Cancel()
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

package bluetooth

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/b0bbywan/odio-bluetooth/logger"
)

// Scanner re-runs a full sweep at a fixed interval while discovery is on.
type Scanner struct {
	parent   context.Context
	interval time.Duration
	sweep    func()

	mu     sync.Mutex
	cancel context.CancelFunc
	active bool
}

func NewScanner(ctx context.Context, interval time.Duration, sweep func()) *Scanner {
	return &Scanner{
		parent:   ctx,
		interval: interval,
		sweep:    sweep,
	}
}

// Start is idempotent: only one ticker runs at a time.
func (s *Scanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.active = true
	go s.run(ctx)
}

func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.active = false
}

func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scanner) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Debug("[bluetooth] discovery rescan started (every %s)", s.interval)
	defer logger.Debug("[bluetooth] discovery rescan stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// storageWatcher triggers a sweep when bluetoothd adds or removes a device
// directory under its storage dir, e.g. after pairing from another client.
type storageWatcher struct {
	dir      string
	debounce time.Duration
	sweep    func()

	mu    sync.Mutex
	timer *time.Timer
}

func newStorageWatcher(dir string, sweep func()) *storageWatcher {
	return &storageWatcher{
		dir:      dir,
		debounce: 500 * time.Millisecond,
		sweep:    sweep,
	}
}

func (w *storageWatcher) Start(ctx context.Context) error {
	if _, err := os.Stat(w.dir); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Info("[bluetooth] failed to close watcher: %v", closeErr)
		}
		return err
	}
	// One directory per adapter address holds one directory per device.
	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				w.watch(watcher, filepath.Join(w.dir, e.Name()))
			}
		}
	}

	logger.Info("[bluetooth] watching %s for pairing changes", w.dir)
	go w.listen(ctx, watcher)
	return nil
}

func (w *storageWatcher) watch(watcher *fsnotify.Watcher, dir string) {
	if err := watcher.Add(dir); err != nil {
		logger.Debug("[bluetooth] cannot watch %s: %v", dir, err)
	}
}

func (w *storageWatcher) listen(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Warn("[bluetooth] failed to close watcher: %v", err)
		}
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.dispatch(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("[bluetooth] fsnotify watcher error: %v", err)
		}
	}
}

func (w *storageWatcher) dispatch(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	// a new adapter directory
	if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(w.dir) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watch(watcher, event.Name)
		}
	}
	logger.Debug("[bluetooth] storage change on %s", filepath.Base(event.Name))
	w.schedule()
}

// schedule coalesces bursts of events into one sweep.
func (w *storageWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.sweep)
}

package watchdog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettleDelay is how long a new file has to go without writes before
// it is reported.
const DefaultSettleDelay = 500 * time.Millisecond

type WatchDogFactory struct {
	logger *zap.Logger
	settle time.Duration
}

type filterFun func(string) bool

type WatchDog struct {
	watchCtx   context.Context
	notifyChan chan<- string
	filter     filterFun
	logger     *zap.Logger

	settle     time.Duration

	// states
	watcher *fsnotify.Watcher
	pending map[string]time.Time // new file -> last write seen, owned by watch()
}

func NewWatchDogFactory(logger *zap.Logger) *WatchDogFactory {
	return &WatchDogFactory{
		logger: logger.Named("watchdog"),
		settle: DefaultSettleDelay,
	}
}

// WithSettleDelay returns a factory whose watchers wait d after the last
// write to a new file before reporting it.
func (w *WatchDogFactory) WithSettleDelay(d time.Duration) *WatchDogFactory {
	return &WatchDogFactory{logger: w.logger, settle: d}
}

// New creates a WatchDog that reports files created or moved into the
// watched directories. A file is reported once no write to it was seen for
// the settle delay, so writers that create first and fill later are not
// read half-way. A writer that stalls longer than that is still reported early.
//
// - `watchCtx` controls the lifecycle of the watcher. After it is done, the watcher stops and closes `notifyChan`.
//
// - `notifyChan` receives the path of every new file.
//
// - `filter` decides which files are reported. If it returns false, the file is ignored. If set to nil, all files are sent.
func (w *WatchDogFactory) New(watchCtx context.Context, notifyChan chan<- string, filter filterFun) (*WatchDog, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("Failed to create watcher", zap.Error(err))
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	watchDog := &WatchDog{
		watchCtx:   watchCtx,
		notifyChan: notifyChan, // send only channel
		filter:     filter,
		logger:     w.logger,
		settle:     w.settle,
		watcher:    watcher,
		pending:    make(map[string]time.Time),
	}

	go watchDog.watch()

	return watchDog, nil
}

// AddDir adds a directory to the watch list
func (w *WatchDog) AddDir(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path of %s: %w", dir, err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", absDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", absDir)
	}
	if err := w.watcher.Add(absDir); err != nil {
		return fmt.Errorf("failed to add %s to watcher: %w", absDir, err)
	}
	w.logger.Debug("Added directory to watch list", zap.String("dir", absDir))
	return nil
}

func (w *WatchDog) watch() {
	defer w.watcher.Close()
	defer close(w.notifyChan)

	tick := w.settle / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.watchCtx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.logger.Debug("fsnotify channel closed")
				return
			}
			w.handleEvent(event, time.Now())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.logger.Debug("fsnotify error channel closed")
				return
			}
			w.logger.Error("fsnotify error", zap.Error(err))
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *WatchDog) handleEvent(event fsnotify.Event, now time.Time) {
	w.logger.Debug("fsnotify event", zap.String("event", event.String()))
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// a rename event names the old path; the new one arrives as Create
		delete(w.pending, event.Name)
	case event.Has(fsnotify.Create):
		if w.filter != nil && !w.filter(event.Name) {
			w.logger.Debug("File ignored by filter", zap.String("file", event.Name))
			return
		}
		w.pending[event.Name] = now
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		if _, ok := w.pending[event.Name]; ok {
			w.pending[event.Name] = now
		}
	}
}

// flush reports pending files that have been quiet for the settle delay, in
// name order.
func (w *WatchDog) flush(now time.Time) {
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, path)
		}
	}
	slices.Sort(ready)

	for _, path := range ready {
		delete(w.pending, path)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		select {
		case w.notifyChan <- path:
			w.logger.Debug("File added to notify channel", zap.String("file", path))
		case <-w.watchCtx.Done():
			return
		}
	}
}

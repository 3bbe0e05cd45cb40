package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/snapshot"
)

// DefaultDebounce is the quiet period before completed snapshots are reported.
const DefaultDebounce = 500 * time.Millisecond

// snapshotWatcher implements SnapshotWatcher. A snapshot counts as complete
// once its manifest appears, since the writer stores the manifest last.
type snapshotWatcher struct {
	watcher       *fsnotify.Watcher
	baseDir       string
	debounceTime  time.Duration
	logger        *zap.Logger
	callback      func(dirs []string)
	ctx           context.Context
	cancel        context.CancelFunc
	paused        bool
	pausedMu      sync.RWMutex
	accumulated   map[string]bool // completed snapshot dirs
	accumulatedMu sync.Mutex
	debounceTimer *time.Timer
	timerMu       sync.Mutex
	stopOnce      sync.Once
	doneCh        chan struct{}
}

// Option configures a snapshot watcher.
type Option func(*snapshotWatcher)

// WithDebounce sets the quiet period before a callback fires.
func WithDebounce(d time.Duration) Option {
	return func(w *snapshotWatcher) {
		if d > 0 {
			w.debounceTime = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *snapshotWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewSnapshotWatcher watches baseDir and every snapshot directory created in
// it. Snapshots already complete when the watcher starts are not reported.
func NewSnapshotWatcher(baseDir string, opts ...Option) (SnapshotWatcher, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "watch", Path: baseDir, Err: os.ErrInvalid}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &snapshotWatcher{
		watcher:      fsw,
		baseDir:      filepath.Clean(baseDir),
		debounceTime: DefaultDebounce,
		logger:       zap.NewNop(),
		accumulated:  make(map[string]bool),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fsw.Add(w.baseDir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins watching for completed snapshots.
func (w *snapshotWatcher) Start(ctx context.Context, callback func(dirs []string)) error {
	if callback == nil {
		return nil
	}

	w.callback = callback
	w.ctx, w.cancel = context.WithCancel(ctx)

	go w.watch()
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *snapshotWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.doneCh
		} else {
			close(w.doneCh)
		}
		err = w.watcher.Close()
	})
	return err
}

func (w *snapshotWatcher) Pause() {
	w.pausedMu.Lock()
	defer w.pausedMu.Unlock()
	w.paused = true
}

func (w *snapshotWatcher) Resume() {
	w.pausedMu.Lock()
	wasPaused := w.paused
	w.paused = false
	w.pausedMu.Unlock()

	if wasPaused {
		w.flush()
	}
}

// watch is the main event loop.
func (w *snapshotWatcher) watch() {
	defer close(w.doneCh)

	flushCh := make(chan struct{}, 1)

	for {
		select {
		case <-w.ctx.Done():
			w.stopDebounceTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if dir, ok := w.completedSnapshot(event); ok {
				w.accumulatedMu.Lock()
				w.accumulated[dir] = true
				w.accumulatedMu.Unlock()
				w.resetDebounceTimer(flushCh)
			}

		case <-flushCh:
			w.pausedMu.RLock()
			paused := w.paused
			w.pausedMu.RUnlock()
			if !paused {
				w.flush()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("snapshot watcher error", zap.Error(err))
		}
	}
}

// completedSnapshot maps an event to the snapshot directory it completes.
// New directories under the base are watched as they appear; if the manifest
// landed before the watch was added, the directory is reported right away.
func (w *snapshotWatcher) completedSnapshot(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return "", false
	}
	parent := filepath.Dir(event.Name)

	if parent == w.baseDir && event.Op&fsnotify.Create != 0 {
		info, err := os.Stat(event.Name)
		if err != nil || !info.IsDir() {
			return "", false
		}
		if err := w.watcher.Add(event.Name); err != nil {
			w.logger.Warn("failed to watch snapshot directory", zap.String("dir", event.Name), zap.Error(err))
			return "", false
		}
		if _, err := os.Stat(filepath.Join(event.Name, snapshot.ManifestFile)); err == nil {
			return event.Name, true
		}
		return "", false
	}

	if filepath.Base(event.Name) != snapshot.ManifestFile || filepath.Dir(parent) != w.baseDir {
		return "", false
	}
	if _, err := os.Stat(event.Name); err != nil {
		return "", false
	}
	return parent, true
}

// flush reports and clears the accumulated directories, sorted.
func (w *snapshotWatcher) flush() {
	w.accumulatedMu.Lock()
	if len(w.accumulated) == 0 {
		w.accumulatedMu.Unlock()
		return
	}
	dirs := make([]string, 0, len(w.accumulated))
	for dir := range w.accumulated {
		dirs = append(dirs, dir)
	}
	w.accumulated = make(map[string]bool)
	w.accumulatedMu.Unlock()

	sort.Strings(dirs)
	if w.callback != nil {
		w.callback(dirs)
	}
}

// resetDebounceTimer restarts the quiet period.
func (w *snapshotWatcher) resetDebounceTimer(flushCh chan struct{}) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceTime, func() {
		select {
		case flushCh <- struct{}{}:
		default:
		}
	})
}

func (w *snapshotWatcher) stopDebounceTimer() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
}

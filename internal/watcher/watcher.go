// Package watcher reloads the configuration file with fsnotify and swaps the active snapshot.
package watcher

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches one config file and stores every valid new version in a snapshot.
type Watcher struct {
	path     string
	snapshot *config.Snapshot
	onReload func(*config.Config)
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for reload events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithOnReload registers a callback invoked after a new config is stored.
func WithOnReload(fn func(*config.Config)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, snapshot *config.Snapshot, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		snapshot: snapshot,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts watching. It runs until ctx is cancelled or Stop is called. The
// file's directory is watched so that editors which replace the file by rename
// are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	w.started = true
	w.logger.Debug("config watcher starting", zap.String("path", w.path))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("config watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	w.logger.Debug("config watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		_ = w.Reload()
	})
}

// Reload reads the config file and, if it loads and validates, makes it current.
// Settings that require reopening indices keep their running values.
func (w *Watcher) Reload() error {
	cfg, err := config.Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return err
	}
	cur := w.snapshot.Load()
	if pinned := pinRestartSettings(cfg, cur); len(pinned) > 0 {
		w.logger.Warn("config changes need a restart to take effect", zap.Strings("sections", pinned))
	}
	if err := w.snapshot.Store(cfg); err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return err
	}
	w.logger.Info("config reloaded", zap.String("path", w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
	return nil
}

// pinRestartSettings copies the sections bound at startup from cur into next and
// returns the names of those that differed.
func pinRestartSettings(next, cur *config.Config) []string {
	if cur == nil {
		return nil
	}
	var changed []string
	if !reflect.DeepEqual(next.Collections, cur.Collections) {
		changed = append(changed, "collections")
		next.Collections = cur.Collections
	}
	if next.Storage != cur.Storage {
		changed = append(changed, "storage")
		next.Storage = cur.Storage
	}
	if next.Embedding != cur.Embedding {
		changed = append(changed, "embedding")
		next.Embedding = cur.Embedding
	}
	if next.Vector != cur.Vector {
		changed = append(changed, "vector")
		next.Vector = cur.Vector
	}
	// max_candidates is read per request; the rest is bound to the loaded model.
	candidates := next.Reranker.MaxCandidates
	next.Reranker.MaxCandidates = cur.Reranker.MaxCandidates
	if next.Reranker != cur.Reranker {
		changed = append(changed, "reranker")
		next.Reranker = cur.Reranker
	}
	next.Reranker.MaxCandidates = candidates
	if next.Server != cur.Server {
		changed = append(changed, "server")
		next.Server = cur.Server
	}
	if next.Breaker != cur.Breaker {
		changed = append(changed, "breaker")
		next.Breaker = cur.Breaker
	}
	if next.Logging != cur.Logging {
		changed = append(changed, "logging")
		next.Logging = cur.Logging
	}
	return changed
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

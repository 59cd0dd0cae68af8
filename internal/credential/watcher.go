package credential

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a JSONStore whenever its backing file changes on disk,
// so an external process updating credentials is picked up without a
// gateway restart. Grounded on the teacher's
// internal/domain/service/config_watcher.go reload-on-change shape, but
// event-driven via fsnotify rather than polling.
type Watcher struct {
	store    *JSONStore
	onReload func(Envelope)
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
}

// NewWatcher builds a Watcher for store, invoking onReload with the newly
// loaded envelope on every write event.
func NewWatcher(store *JSONStore, onReload func(Envelope), logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(store.Path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &Watcher{store: store, onReload: onReload, logger: logger, watcher: fw, stopCh: make(chan struct{})}, nil
}

// Run blocks, dispatching reloads until Stop is called. Intended to be
// launched via safego.Go.
func (w *Watcher) Run() {
	target := filepath.Clean(w.store.Path)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			env, ok, err := w.store.Load()
			if err != nil || !ok {
				continue
			}
			w.logger.Info("credentials file changed on disk, reloading", zap.String("path", w.store.Path))
			w.onReload(env)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("credential watcher error", zap.Error(err))
		case <-w.stopCh:
			return
		}
	}
}

// Stop terminates Run and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.watcher.Close()
}

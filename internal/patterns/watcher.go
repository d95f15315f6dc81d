package patterns

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher merges records that appear in the learned store file into a
// running registry. It watches the parent directory so that atomic
// replacements (rename over the file) are seen.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup

	debounce     time.Duration
	pendingTimer *time.Timer
	timerMu      sync.Mutex
}

// NewWatcher returns a watcher for the registry's learned store. It fails
// if the registry has no store.
func NewWatcher(registry *Registry) (*Watcher, error) {
	if registry.Store() == nil {
		return nil, ErrNoStore
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		registry: registry,
		watcher:  fsWatcher,
		stopChan: make(chan struct{}),
		debounce: 250 * time.Millisecond,
	}, nil
}

// Start begins watching. A missing directory is logged and not fatal.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.registry.Store().Path())
	if err := w.watcher.Add(dir); err != nil {
		log.Warn("cannot watch %s: %v", dir, err)
		return nil
	}

	w.wg.Add(1)
	go w.run()

	log.Info("watching learned patterns in %s", dir)
	return nil
}

func (w *Watcher) Stop() error {
	close(w.stopChan)
	w.wg.Wait()

	w.timerMu.Lock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.registry.Store().Path()) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	log.Debug("learned store changed (%s)", event.Op)
	w.scheduleReload()
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	recs, err := w.registry.Store().Load()
	if err != nil {
		log.Warn("reloading learned patterns: %v", err)
		return
	}
	if n := w.registry.Merge(recs); n > 0 {
		log.Info("merged %d learned patterns", n)
	}
}

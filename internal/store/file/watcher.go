package file

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is called after the watched file changes on disk.
type ChangeHandler func()

// Watcher watches a store file for external edits.
// The parent directory is watched because writes replace the file by rename.
// Changes are debounced (300ms) to avoid rapid reloads.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	handlers []ChangeHandler
	debounce time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     filepath.Clean(path),
		watcher:  w,
		debounce: 300 * time.Millisecond,
	}, nil
}

// OnChange registers a handler to be called when the file changes.
func (sw *Watcher) OnChange(handler ChangeHandler) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.handlers = append(sw.handlers, handler)
}

// Start begins watching.
func (sw *Watcher) Start() error {
	if err := sw.watcher.Add(filepath.Dir(sw.path)); err != nil {
		return err
	}

	sw.stopChan = make(chan struct{})
	go sw.watchLoop()

	slog.Info("store watcher started", "path", sw.path)
	return nil
}

// Stop halts the watcher. Safe to call more than once.
func (sw *Watcher) Stop() {
	sw.stopOnce.Do(func() {
		if sw.stopChan != nil {
			close(sw.stopChan)
		}
		sw.watcher.Close()
		slog.Info("store watcher stopped", "path", sw.path)
	})
}

func (sw *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-sw.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != sw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(sw.debounce, sw.fire)

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("store watcher error", "path", sw.path, "error", err)
		}
	}
}

func (sw *Watcher) fire() {
	slog.Info("store file changed", "path", sw.path)

	sw.mu.Lock()
	handlers := make([]ChangeHandler, len(sw.handlers))
	copy(handlers, sw.handlers)
	sw.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

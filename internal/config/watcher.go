package config

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads configuration when the backing file changes. The
// server binary uses it to apply the log level without a restart.
type Watcher struct {
	fw        *fsnotify.Watcher
	path      string
	callbacks []func(*Config)
	mu        sync.RWMutex
	done      chan struct{}
	logger    *slog.Logger
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	// Watch the directory, not the file, to catch editor-style renames.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		fw:     fw,
		path:   path,
		done:   make(chan struct{}),
		logger: logger,
	}, nil
}

// OnReload registers a callback invoked with each successfully
// reloaded configuration.
func (w *Watcher) OnReload(cb func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start blocks, dispatching reloads until Stop is called.
func (w *Watcher) Start() {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Error("config reload failed", "path", w.path, "error", err)
				continue
			}
			w.logger.Info("configuration reloaded", "path", w.path)
			w.notify(cfg)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// StartAsync starts the watcher in a goroutine.
func (w *Watcher) StartAsync() { go w.Start() }

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) notify(cfg *Config) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, cb := range w.callbacks {
		cb(cfg)
	}
}

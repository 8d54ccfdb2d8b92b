package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"newsroom/pkg/logging"
)

// DefaultDebounceInterval is how long the watcher waits after the last
// dotenv change before reloading.
const DefaultDebounceInterval = 500 * time.Millisecond

// WatcherConfig holds configuration for the dotenv watcher.
type WatcherConfig struct {
	// Loader reloads the configuration. Its dotenv files are watched.
	Loader *Loader

	// Debounce defaults to DefaultDebounceInterval.
	Debounce time.Duration

	// OnReload receives the result of every reload, including failed ones.
	OnReload func(*Config, error)
}

// Watcher reloads the configuration whenever one of the loader's dotenv
// files is written, created or renamed into place. Each reload goes through
// Loader.Reload, so dotenv values override the process environment.
type Watcher struct {
	mu sync.Mutex

	config  WatcherConfig
	files   map[string]bool
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	running bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the loader's dotenv files.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Loader == nil {
		return nil, fmt.Errorf("config watcher requires a loader")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounceInterval
	}

	files := make(map[string]bool)
	for _, file := range config.Loader.EnvFiles() {
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", file, err)
		}
		files[abs] = true
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("config watcher has no dotenv files to watch")
	}

	return &Watcher{config: config, files: files}, nil
}

// Start begins watching. The directories holding the dotenv files are
// watched rather than the files, so files created later are picked up too.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for file := range w.files {
		dirs[filepath.Dir(file)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	go w.processEvents(w.stopCh, watcher.Events, watcher.Errors)

	logging.Info("Config", "Watching %d dotenv file(s) for changes", len(w.files))
	return nil
}

// Stop ends watching. Pending reloads are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	if err := watcher.Close(); err != nil {
		logging.Warn("Config", "Failed to close file watcher: %v", err)
	}
}

func (w *Watcher) processEvents(stopCh <-chan struct{}, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errs:
			if !ok {
				return
			}
			logging.Error("Config", err, "File watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil || !w.files[abs] {
		return
	}

	logging.Debug("Config", "Dotenv file changed: %s", event.Name)
	w.reloadDebounced()
}

// reloadDebounced collapses bursts of events, such as an editor writing a
// temp file and renaming it, into one reload.
func (w *Watcher) reloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		if !running {
			return
		}

		cfg, err := w.config.Loader.Reload()
		if err != nil {
			logging.Warn("Config", "Reload after dotenv change failed: %v", err)
		} else {
			logging.Info("Config", "Configuration reloaded from %v", cfg.EnvFiles)
		}
		if w.config.OnReload != nil {
			w.config.OnReload(cfg, err)
		}
	})
}

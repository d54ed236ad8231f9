package persona

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// OnReload is called with the freshly loaded persona after a file change
type OnReload func(Persona)

// Watcher hot-reloads the persona file when it changes. Events are
// debounced because editors produce bursts of writes for a single save.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onReload OnReload
	logger   zerolog.Logger

	debounce      time.Duration
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the given persona file
func NewWatcher(path string, onReload OnReload, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsw,
		path:     path,
		onReload: onReload,
		logger:   logger.With().Str("component", "persona-watcher").Logger(),
		debounce: 200 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The containing directory is watched rather than
// the file itself so atomic rename-into-place saves are seen too.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.path).Msg("Persona watcher started")
	return nil
}

// Stop stops the watcher. Idempotent.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()

		w.debounceMu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.debounceMu.Unlock()
	})
	return err
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	p, err := Load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Persona reload rejected, keeping previous persona")
		return
	}

	w.logger.Info().Msg("Persona reloaded")
	w.onReload(p)
}

package ranking

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is the minimum time between reloads of the same file.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads calibration and lexicon files into a Store when they change
// on disk. A file that fails to load leaves the current snapshot in place.
type Watcher struct {
	store           *Store
	calibrationPath string
	lexiconPath     string
	debounce        time.Duration
	logger          *slog.Logger

	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	lastChange map[string]time.Time
	done       chan struct{}
	stopped    chan struct{}
	onReload   func(path string, elapsed time.Duration, err error)

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	CalibrationPath string
	LexiconPath     string
	Debounce        time.Duration
	Logger          *slog.Logger
	// OnReload is called after each reload attempt with its duration.
	OnReload func(path string, elapsed time.Duration, err error)
}

// NewWatcher creates a watcher for the configured files. The parent
// directories are watched so editors that replace files atomically are seen.
func NewWatcher(store *Store, opts WatcherOptions) (*Watcher, error) {
	if opts.Debounce == 0 {
		opts.Debounce = DefaultReloadDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		store:           store,
		calibrationPath: cleanPath(opts.CalibrationPath),
		lexiconPath:     cleanPath(opts.LexiconPath),
		debounce:        opts.Debounce,
		logger:          opts.Logger,
		watcher:         fw,
		lastChange:      make(map[string]time.Time),
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
		onReload:        opts.OnReload,
	}

	dirs := map[string]struct{}{}
	for _, p := range []string{w.calibrationPath, w.lexiconPath} {
		if p != "" {
			dirs[filepath.Dir(p)] = struct{}{}
		}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.logger.Info("watching ranking config", "dir", dir)
	}

	return w, nil
}

// Start begins watching for file changes. Calls after the first, or after
// Stop, do nothing.
func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		select {
		case <-w.done:
			return
		default:
		}
		w.started = true
		go w.run()
	})
}

// Stop stops watching and waits for the event loop to exit if it was
// started. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		close(w.done)
		started := w.started
		w.mu.Unlock()

		w.watcher.Close()
		if started {
			<-w.stopped
		}
	})
}

func (w *Watcher) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(event.Name)
			if name != w.calibrationPath && name != w.lexiconPath {
				continue
			}

			w.mu.Lock()
			now := time.Now()
			if now.Sub(w.lastChange[name]) < w.debounce {
				w.mu.Unlock()
				continue
			}
			w.lastChange[name] = now
			w.mu.Unlock()

			w.Reload(name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("ranking config watcher error", "error", err)
		}
	}
}

// Reload loads the file at path and publishes it if it parses.
func (w *Watcher) Reload(path string) {
	start := time.Now()
	var err error
	switch path {
	case w.calibrationPath:
		var weights *Weights
		var version string
		weights, version, err = LoadCalibration(path)
		if err == nil {
			w.store.SwapWeights(version, weights)
			w.logger.Info("ranking calibration reloaded", "path", path, "version", version)
		}
	case w.lexiconPath:
		var lex *Lexicon
		lex, err = LoadLexicon(path)
		if err == nil {
			w.store.SwapLexicon(lex)
			w.logger.Info("lexicon reloaded", "path", path)
		}
	default:
		return
	}

	if err != nil {
		w.logger.Warn("ranking config reload failed, keeping current", "path", path, "error", err)
	}
	if w.onReload != nil {
		w.onReload(path, time.Since(start), err)
	}
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

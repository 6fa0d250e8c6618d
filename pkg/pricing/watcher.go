package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a pricing YAML file for changes and hot-reloads the
// table. Reloads are debounced so editors that write in multiple syscalls
// do not trigger reload storms. A reload that fails to parse or lacks the
// default entry is logged and discarded; the previous table stays active.
type Watcher struct {
	table   *Table
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	debounceInterval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher that reloads the given table from path.
func NewWatcher(table *Table, path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		table:            table,
		path:             path,
		watcher:          fsw,
		logger:           slog.Default().With("component", "pricing.watcher"),
		debounceInterval: 100 * time.Millisecond,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}, nil
}

// Watch starts watching for file changes. It blocks until the context is
// cancelled or Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("pricing watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch pricing file %q: %w", w.path, err)
	}

	w.logger.Info("pricing watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("pricing watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("pricing watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Keep watching despite errors.
			w.logger.Error("pricing watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and cancels any pending reload.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

// scheduleReload debounces reload requests.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceInterval, w.reload)
}

// reload reads the pricing file and swaps the table contents.
func (w *Watcher) reload() {
	entries, err := readFile(w.path)
	if err != nil {
		w.logger.Error("pricing reload failed, keeping previous table",
			"path", w.path,
			"error", err,
		)
		return
	}

	if err := w.table.Replace(entries); err != nil {
		w.logger.Error("pricing reload rejected, keeping previous table",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.logger.Info("pricing table reloaded",
		"path", w.path,
		"models", len(entries),
	)
}

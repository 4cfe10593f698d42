package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/ba2"
	"github.com/evildarkarchon/unpackrr/internal/logging"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher signals on Changes when a mod folder or an archive inside one is
// created, removed or renamed. Bursts of events collapse into one signal.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *logging.Logger

	watcher *fsnotify.Watcher
	changes chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(root string, debounce time.Duration, logger *logging.Logger) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     filepath.Clean(root),
		debounce: debounce,
		logger:   logger,
		changes:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = watcher

	if err := w.setupWatches(); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to setup watches: %w", err)
	}

	go w.watchLoop()

	w.logger.Info("watching scan root", zap.String("root", w.root))
	return nil
}

func (w *Watcher) Stop() {
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) setupWatches() error {
	folders, err := modFolders(w.root)
	if err != nil {
		return err
	}
	for _, folder := range folders {
		path := filepath.Join(w.root, folder)
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch mod folder", zap.String("folder", path), zap.Error(err))
		}
	}
	return w.watcher.Add(w.root)
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	parent := filepath.Dir(event.Name)

	if parent == w.root {
		if event.Has(fsnotify.Create) {
			info, err := os.Stat(event.Name)
			if err != nil || !info.IsDir() {
				return
			}
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new mod folder", zap.String("folder", event.Name), zap.Error(err))
			}
		}
		w.logger.Debug("mod folder changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
		w.schedule()
		return
	}

	if filepath.Dir(parent) == w.root && strings.EqualFold(filepath.Ext(event.Name), ba2.Extension) {
		w.logger.Debug("archive changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
		w.schedule()
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.changes <- struct{}{}:
		default:
		}
	})
}

package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	domainconfig "conceptgraph/domain/config"
)

const defaultDebounce = 500 * time.Millisecond

// DomainConfigWatcher reloads the engine rules file when it changes and
// hands valid results to the registered callbacks. Invalid edits are logged
// and the previous rules stay in effect.
type DomainConfigWatcher struct {
	path        string
	environment string
	debounce    time.Duration

	mu        sync.RWMutex
	current   *domainconfig.DomainConfig
	callbacks []func(*domainconfig.DomainConfig)

	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDomainConfigWatcher starts watching the directory holding path. The
// directory is watched rather than the file so editors that save by rename
// are still picked up.
func NewDomainConfigWatcher(environment, path string, initial *domainconfig.DomainConfig, logger *zap.Logger) (*DomainConfigWatcher, error) {
	return newDomainConfigWatcher(environment, path, initial, logger, defaultDebounce)
}

func newDomainConfigWatcher(environment, path string, initial *domainconfig.DomainConfig, logger *zap.Logger, debounce time.Duration) (*DomainConfigWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("no config file to watch")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &DomainConfigWatcher{
		path:        filepath.Clean(path),
		environment: environment,
		debounce:    debounce,
		current:     initial,
		logger:      logger,
		watcher:     fsWatcher,
		stopCh:      make(chan struct{}),
	}
	go w.watchLoop()

	logger.Info("Configuration hot reloading enabled",
		zap.String("file", path),
		zap.String("environment", environment))
	return w, nil
}

// OnChange registers a callback for reloaded rules
func (w *DomainConfigWatcher) OnChange(callback func(*domainconfig.DomainConfig)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// Current returns the latest valid rules
func (w *DomainConfigWatcher) Current() *domainconfig.DomainConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop stops the watcher; safe to call more than once
func (w *DomainConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *DomainConfigWatcher) watchLoop() {
	defer w.watcher.Close()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.logger.Debug("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()))

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			w.logger.Info("Stopping configuration watcher")
			return
		}
	}
}

func (w *DomainConfigWatcher) reload() {
	next, err := LoadDomainConfig(w.environment, w.path)
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping previous rules",
			zap.String("file", w.path),
			zap.Error(err))
		return
	}

	w.mu.Lock()
	if w.current != nil && *w.current == *next {
		w.mu.Unlock()
		return
	}
	w.current = next
	callbacks := make([]func(*domainconfig.DomainConfig), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for i, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Callback panicked",
						zap.Int("callbackIndex", i),
						zap.Any("panic", r))
				}
			}()
			cb(next)
		}()
	}

	w.logger.Info("Configuration reloaded",
		zap.String("file", w.path),
		zap.Int("callbacksNotified", len(callbacks)))
}

package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadDebounce is how long the reloader waits after the last write.
const ReloadDebounce = 500 * time.Millisecond

// ApplyFunc receives each successfully reloaded config.
type ApplyFunc func(cfg *Config, hash string) error

// Reloader watches the config file and hands fresh configs to an ApplyFunc.
// Only the reloadable parts (scope extensions, alert webhooks, redaction
// rules) are expected to be applied; listeners and storage stay as started.
type Reloader struct {
	watcher *fsnotify.Watcher
	path    string
	apply   ApplyFunc
	logger  *zap.Logger
}

// NewReloader creates a watcher for path. A missing file is not watched and
// Run simply waits for cancellation.
func NewReloader(path string, apply ApplyFunc, logger *zap.Logger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := watcher.Add(path); err != nil {
				_ = watcher.Close()
				return nil, fmt.Errorf("config: watch %q: %w", path, err)
			}
		}
	}
	return &Reloader{watcher: watcher, path: path, apply: apply, logger: logger}, nil
}

// Run watches for changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer func() { _ = r.watcher.Close() }()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(ReloadDebounce, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) reload() {
	cfg, hash, err := LoadWithHash(r.path)
	if err != nil {
		r.logger.Error("config reload rejected, keeping previous config", zap.Error(err))
		return
	}
	if err := r.apply(cfg, hash); err != nil {
		r.logger.Error("config reload failed", zap.Error(err))
		return
	}
	r.logger.Info("config reloaded", zap.String("config_hash", hash))
}

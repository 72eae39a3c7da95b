// SPDX-License-Identifier: MIT
package config

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"hapsync/internal/log"
)

// HotConfig wraps Config with reload-on-write support. Each successful
// reload pushes the sync section into the bound SettingsStore.
type HotConfig struct {
	mu       sync.RWMutex
	cfg      *Config
	path     string
	settings *SettingsStore
	subs     []func(*Config)
	logger   *log.Logger
}

// NewHotConfig loads path and binds settings to its sync section.
func NewHotConfig(path string, settings *SettingsStore) (*HotConfig, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := settings.Store(cfg.Sync); err != nil {
		return nil, err
	}
	return &HotConfig{
		cfg:      cfg,
		path:     path,
		settings: settings,
		logger:   log.With("component", "config", "path", path),
	}, nil
}

// Get returns the most recently loaded configuration.
func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnReload registers a callback for config changes. Not safe to call after Watch.
func (hc *HotConfig) OnReload(fn func(*Config)) {
	hc.subs = append(hc.subs, fn)
}

func (hc *HotConfig) reload() {
	cfg, err := LoadConfig(hc.path)
	if err != nil {
		hc.logger.Errorf("config reload failed: %v", err)
		return
	}
	if err := hc.settings.Store(cfg.Sync); err != nil {
		hc.logger.Errorf("config reload rejected sync settings: %v", err)
		return
	}
	hc.mu.Lock()
	hc.cfg = cfg
	hc.mu.Unlock()

	hc.logger.Infof("config reloaded")
	for _, fn := range hc.subs {
		fn(cfg)
	}
}

// Watch reloads the file on write until ctx is cancelled.
func (hc *HotConfig) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(hc.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				hc.logger.Errorf("config watcher error: %v", err)
			}
		}
	}()
	return nil
}

package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/projecteru2/core/log"
	"github.com/spf13/viper"
)

// Watch re-reads path whenever it changes and hands the fresh snapshot to
// apply. Errors while re-reading keep the previous snapshot in place.
// Blocks until ctx is done.
//
// Editors commonly replace config files via rename, so the watch is placed
// on the parent directory and filtered by name.
func Watch(ctx context.Context, path string, apply func(*Config)) error {
	logger := log.WithFunc("config.Watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			conf, err := Load(path)
			if err != nil {
				logger.Warnf(ctx, "reload %s: %v", path, err)
				continue
			}
			logger.Infof(ctx, "config reloaded from %s", path)
			apply(conf)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf(ctx, "watch error: %v", err)
		}
	}
}

// Load reads a config file into a sanitized snapshot on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	conf := DefaultConfig()
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	conf.Sanitize()
	return conf, nil
}

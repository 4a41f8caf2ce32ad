package config

import (
	"fmt"
	"strings"

	"recal/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeListener receives the freshly reloaded configuration.
type ChangeListener func(*Config)

// Watch re-reads the root config file on filesystem changes and calls
// fn with every valid reload. Invalid edits are logged and skipped so
// a half-saved file never takes the process down. Only the root file
// is watched; include edits require touching the root.
func Watch(path string, fn ChangeListener) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config watch requires path")
	}
	if fn == nil {
		return fmt.Errorf("config watch requires a listener")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config for watch failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		cfg, err := Load(path)
		if err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("config reloaded from %s", evt.Name)
		fn(cfg)
	})
	v.WatchConfig()
	return nil
}

package config

import (
	"fmt"
	"log"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch loads the config file at path and re-reads it whenever it changes,
// invoking onChange with the fresh configuration. A change that fails to
// parse is logged and skipped; the previous configuration stays in effect.
// Returns the initially loaded configuration.
func Watch(path string, onChange func(*Config)) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	initial, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		cfg, err := unmarshal(v)
		if err != nil {
			log.Printf("[config] WARNING: ignoring unparseable change to %s: %v", event.Name, err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()

	return initial, nil
}

package config

import (
	"fmt"
	"time"

	"github.com/grovetools/modelcore/logging"
	"github.com/mitchellh/mapstructure"
)

const (
	// ReclaimAsync reclaims jobs on the reference manager's own goroutine.
	ReclaimAsync = "async"
	// ReclaimSync reclaims jobs on the goroutine that drops the last reference.
	ReclaimSync = "sync"
)

// WatchConfig configures the directory collector.
type WatchConfig struct {
	Dir      string   `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty" mapstructure:"dir" jsonschema:"description=Directory mirrored into the list model"`
	Ignore   []string `yaml:"ignore,omitempty" toml:"ignore,omitempty" json:"ignore,omitempty" mapstructure:"ignore" jsonschema:"description=Patterns (.dockerignore syntax) of entries to leave out"`
	Debounce string   `yaml:"debounce,omitempty" toml:"debounce,omitempty" json:"debounce,omitempty" mapstructure:"debounce" jsonschema:"description=How often the collector checks whether it should keep running (e.g. '250ms')"`
}

// Config is the contents of modelcore.yml.
type Config struct {
	Version      string      `yaml:"version,omitempty" toml:"version,omitempty" json:"version,omitempty" mapstructure:"version" jsonschema:"description=Configuration version (e.g. '1.0')"`
	PollInterval string      `yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty" json:"poll_interval,omitempty" mapstructure:"poll_interval" jsonschema:"description=Sleep between checks of blocking waits (e.g. '200ms')"`
	Reclaim      string      `yaml:"reclaim,omitempty" toml:"reclaim,omitempty" json:"reclaim,omitempty" mapstructure:"reclaim" jsonschema:"enum=async,enum=sync,description=Where finished jobs are destroyed"`
	Watch        WatchConfig `yaml:"watch,omitempty" toml:"watch,omitempty" json:"watch" mapstructure:"watch" jsonschema:"description=Directory collector settings"`

	// Extensions captures all other top-level keys, e.g. 'logging'.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" mapstructure:",remain" jsonschema:"-"`
}

// SetDefaults fills in every unset field.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.PollInterval == "" {
		c.PollInterval = "200ms"
	}
	if c.Reclaim == "" {
		c.Reclaim = ReclaimAsync
	}
	if c.Watch.Dir == "" {
		c.Watch.Dir = "."
	}
	if c.Watch.Debounce == "" {
		c.Watch.Debounce = "100ms"
	}
}

// ParsedPollInterval returns poll_interval as a duration. Call after Validate.
func (c *Config) ParsedPollInterval() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// ParsedDebounce returns watch.debounce as a duration. Call after Validate.
func (c *Config) ParsedDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Debounce)
	return d
}

// SyncReclaim reports whether jobs are reclaimed synchronously.
func (c *Config) SyncReclaim() bool {
	return c.Reclaim == ReclaimSync
}

// Logging decodes the 'logging' extension.
func (c *Config) Logging() (logging.Config, error) {
	var cfg logging.Config
	err := c.UnmarshalExtension("logging", &cfg)
	return cfg, err
}

// UnmarshalExtension decodes the extension section key into target, which must
// be a pointer. A missing section leaves target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// Package config loads the YAML host configuration: which roots to
// track, how they are filtered, and how the host logs and commits.
// Environment references like ${HOME} are expanded before decoding.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sourcefs/internal/logging"
	"sourcefs/internal/roots"
)

const (
	DefaultDebounceMS       = 50
	DefaultCommitIntervalMS = 250
	DefaultResultBuffer     = 128
)

type Config struct {
	Log              LogConfig    `yaml:"log"`
	Watch            WatchConfig  `yaml:"watch"`
	CommitIntervalMS int          `yaml:"commit_interval_ms"`
	ResultBuffer     int          `yaml:"result_buffer"`
	Filter           FilterConfig `yaml:"filter"`
	Roots            []RootConfig `yaml:"roots"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
	File  string `yaml:"file"`
}

type WatchConfig struct {
	Disabled   bool `yaml:"disabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// FilterConfig mirrors the root filter rules. An all-zero filter means
// "use the built-in defaults".
type FilterConfig struct {
	Extensions  []string `yaml:"extensions"`
	BuildDirs   []string `yaml:"build_dirs"`
	IgnoredDirs []string `yaml:"ignored_dirs"`
}

// RootConfig declares one tracked root. A root without its own filter
// uses the global one.
type RootConfig struct {
	Dir    string        `yaml:"dir"`
	Filter *FilterConfig `yaml:"filter"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	config := Config{}
	config.applyDefaults()
	return config
}

// Load reads and decodes the configuration file at path. Unknown keys
// are rejected so typos fail loudly instead of silently using
// defaults.
func Load(path string) (Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(payload)
}

// Parse decodes a configuration document after expanding ${ENV}
// references in it.
func Parse(payload []byte) (Config, error) {
	expanded := []byte(os.ExpandEnv(string(payload)))

	var config Config
	decoder := yaml.NewDecoder(bytes.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = string(logging.LevelInfo)
	}
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = DefaultDebounceMS
	}
	if c.CommitIntervalMS <= 0 {
		c.CommitIntervalMS = DefaultCommitIntervalMS
	}
	if c.ResultBuffer <= 0 {
		c.ResultBuffer = DefaultResultBuffer
	}
}

// Validate reports the first configuration mistake. Roots may be
// empty here because the CLI can supply them by flag.
func (c Config) Validate() error {
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	for i, root := range c.Roots {
		if root.Dir == "" {
			return fmt.Errorf("config: roots[%d] has no dir", i)
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() logging.Level {
	level, ok := logging.ParseLevel(c.Log.Level)
	if !ok {
		return logging.LevelInfo
	}
	return level
}

// Debounce returns the watch debounce window.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// CommitInterval returns the cadence of the host's commit loop.
func (c Config) CommitInterval() time.Duration {
	return time.Duration(c.CommitIntervalMS) * time.Millisecond
}

// Specs converts the configured roots for the root set, applying the
// global filter to roots without their own.
func (c Config) Specs() []roots.Spec {
	specs := make([]roots.Spec, 0, len(c.Roots))
	for _, root := range c.Roots {
		filter := c.Filter
		if root.Filter != nil {
			filter = *root.Filter
		}
		specs = append(specs, roots.Spec{
			Dir:    root.Dir,
			Config: filter.rootConfig(),
		})
	}
	return specs
}

func (f FilterConfig) rootConfig() roots.Config {
	return roots.Config{
		Extensions:  f.Extensions,
		BuildDirs:   f.BuildDirs,
		IgnoredDirs: f.IgnoredDirs,
	}
}

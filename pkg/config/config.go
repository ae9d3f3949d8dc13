package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/srodi/threadtop/pkg/rank"
	"github.com/srodi/threadtop/pkg/types"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultWidth    = 100
	MinWidth        = 80
)

// Config is the run configuration, loaded from an optional YAML file and
// overridden by command line flags.
type Config struct {
	Interval   time.Duration `yaml:"interval"`
	Limit      int           `yaml:"limit"`
	Mode       string        `yaml:"mode"`
	Width      int           `yaml:"width"`
	NameFilter string        `yaml:"name-filter"`
	Iterations int           `yaml:"iterations"`
	LogFile    string        `yaml:"log-file"`
	EBPF       bool          `yaml:"ebpf"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Interval: DefaultInterval,
		Limit:    types.DefaultThreadLimit,
		Mode:     rank.ModeCPU.Name(),
		Width:    DefaultWidth,
		EBPF:     true,
	}
}

// readFile allows tests to stub config file reads.
var readFile = os.ReadFile

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := readFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the reporter cannot run with and resolves the
// ranking mode.
func (c *Config) Validate() (rank.Mode, error) {
	mode, err := rank.ParseMode(c.Mode)
	if err != nil {
		return 0, err
	}
	if c.Limit < 1 {
		return 0, fmt.Errorf("%w: got %d", rank.ErrInvalidLimit, c.Limit)
	}
	if c.Interval <= 0 {
		return 0, errors.New("interval must be positive")
	}
	if c.Iterations < 0 {
		return 0, errors.New("iterations must not be negative")
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	} else if c.Width < MinWidth {
		c.Width = MinWidth
	}
	c.NameFilter = strings.TrimSpace(c.NameFilter)
	return mode, nil
}

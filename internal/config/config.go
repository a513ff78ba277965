// Package config loads and watches the engine configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/takeshi-yoshida/Naoru/internal/api"
	"github.com/takeshi-yoshida/Naoru/internal/detect"
	"github.com/takeshi-yoshida/Naoru/internal/healing"
	"github.com/takeshi-yoshida/Naoru/internal/learning"
	"github.com/takeshi-yoshida/Naoru/internal/monitoring"
	"github.com/takeshi-yoshida/Naoru/internal/state"
	"github.com/takeshi-yoshida/Naoru/internal/store"
)

// Config is the application-wide configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Healing    healing.Config    `yaml:"healing"`
	Learning   learning.Config   `yaml:"learning"`
	Store      store.Config      `yaml:"store"`
	API        api.Config        `yaml:"api"`
	Monitoring monitoring.Config `yaml:"monitoring"`
	Detect     detect.Config     `yaml:"detect"`
	State      state.Config      `yaml:"state"`

	Executor ExecutorConfig `yaml:"executor"`
}

// ExecutorConfig selects and tunes the healing executor.
type ExecutorConfig struct {
	Mode       string `yaml:"mode"` // "simulated" is the only built-in mode
	Accelerate bool   `yaml:"accelerate"`
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields across all sections.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Executor.Mode == "" {
		c.Executor.Mode = "simulated"
	}
	c.Healing.ApplyDefaults()
	c.Learning.ApplyDefaults()
	c.Store.ApplyDefaults()
	c.API.ApplyDefaults()
	c.Monitoring.ApplyDefaults()
	c.Detect.ApplyDefaults()
	c.State.ApplyDefaults()
}

// Validate rejects values outside their meaningful ranges.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if c.Executor.Mode != "simulated" {
		return fmt.Errorf("unsupported executor mode: %s", c.Executor.Mode)
	}
	if c.Healing.RL.LearningRate < 0 || c.Healing.RL.LearningRate > 1 {
		return fmt.Errorf("learning_rate must be in [0, 1]")
	}
	if c.Healing.RL.DiscountFactor < 0 || c.Healing.RL.DiscountFactor > 1 {
		return fmt.Errorf("discount_factor must be in [0, 1]")
	}
	if c.Healing.RL.Epsilon < 0 || c.Healing.RL.Epsilon > 1 {
		return fmt.Errorf("epsilon must be in [0, 1]")
	}
	return nil
}

// Load reads the YAML file at path, applies defaults and validates. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

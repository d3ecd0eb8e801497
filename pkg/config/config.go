// Package config loads ecsdeploy settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/ecsdeploy/pkg/stack"
)

const (
	DefaultRegion      = "us-east-2"
	DefaultStack       = "portyfoul-infra"
	DefaultProduct     = "portyfoul"
	DefaultEnvironment = "dev"
	DefaultTimeout     = 600 * time.Second
)

// Config holds every setting a deployment run needs
type Config struct {
	Region       string           `yaml:"region"`
	Stack        string           `yaml:"stack"`
	Product      string           `yaml:"product"`
	Environment  string           `yaml:"environment"`
	Timeout      Duration         `yaml:"timeout"`
	BuildContext string           `yaml:"buildContext"`
	Outputs      stack.OutputKeys `yaml:"outputs"`
	Log          LogConfig        `yaml:"log"`
	Pushgateway  string           `yaml:"pushgateway,omitempty"`
}

// LogConfig controls log output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Duration accepts either a Go duration string ("10m") or a number of seconds
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var seconds int
	if err := node.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file is supplied
func Default() *Config {
	return &Config{
		Region:       DefaultRegion,
		Stack:        DefaultStack,
		Product:      DefaultProduct,
		Environment:  DefaultEnvironment,
		Timeout:      Duration(DefaultTimeout),
		BuildContext: ".",
		Outputs:      stack.DefaultOutputKeys(),
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Outputs = cfg.Outputs.WithDefaults()
	return cfg, cfg.Validate()
}

// Validate checks required fields
func (c *Config) Validate() error {
	var errs []error
	if c.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if c.Stack == "" {
		errs = append(errs, errors.New("stack is required"))
	}
	if c.Product == "" {
		errs = append(errs, errors.New("product is required"))
	}
	if c.Environment == "" {
		errs = append(errs, errors.New("environment is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	return errors.Join(errs...)
}

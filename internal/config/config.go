package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the name of the config file inside a dist directory
	ConfigFileName = "pageserver.yaml"
)

// ManifestConfig controls how build manifests are read
type ManifestConfig struct {
	// Attempts is the total number of reads before giving up
	Attempts int `yaml:"attempts" validate:"gte=1,lte=20"`

	// Delay is the pause between two reads; it must be positive
	Delay time.Duration `yaml:"delay" validate:"gt=0"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// ModulesConfig controls compilation of built-in modules
type ModulesConfig struct {
	Minify bool `yaml:"minify"`
}

// Config represents the runtime configuration
type Config struct {
	Manifest ManifestConfig `yaml:"manifest"`
	Log      LogConfig      `yaml:"log"`
	Modules  ModulesConfig  `yaml:"modules"`

	// Version tracks the config file version for future migrations
	Version string `yaml:"version,omitempty"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		Manifest: ManifestConfig{
			Attempts: 3,
			Delay:    100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Modules: ModulesConfig{
			Minify: true,
		},
		Version: "1.0",
	}
}

var validate = validator.New()

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig loads the configuration from path.
// If the file doesn't exist, returns a default config
func LoadConfig(path string) (*Config, error) {
	// If config file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields missing from the file keep their defaults
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to path
func SaveConfig(path string, config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

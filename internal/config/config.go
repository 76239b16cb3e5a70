package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Output   Output   `yaml:"output"`
	Feedback Feedback `yaml:"feedback"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Feedback struct {
	AdjustmentWindowDays int `yaml:"adjustment_window_days"`
	RotationDays         int `yaml:"rotation_days"`
	ExpiryDays           int `yaml:"expiry_days"`
	MaxDirectives        int `yaml:"max_directives"`
	DailyFeedbackLimit   int `yaml:"daily_feedback_limit"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for threadpilot.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "threadpilot")
}

// DataDir returns the XDG data directory for threadpilot.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "threadpilot")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/threadpilot/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'threadpilot init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Feedback: Feedback{
			AdjustmentWindowDays: 7,
			RotationDays:         7,
			ExpiryDays:           14,
			MaxDirectives:        12,
			DailyFeedbackLimit:   10,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

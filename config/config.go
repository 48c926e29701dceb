// Package config loads server configuration from an optional YAML file
// layered over defaults.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Env        string `yaml:"env"`
	LogLevel   string `yaml:"log_level"`

	MaxMessageSize  int64  `yaml:"max_message_size"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	PingIntervalSec int    `yaml:"ping_interval_sec"`
	MaxClients      int    `yaml:"max_clients"`
	StaticDir       string `yaml:"static_dir"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		Env:             "dev",
		LogLevel:        "info",
		MaxMessageSize:  512 * 1024,
		WriteTimeoutSec: 10,
		ReadTimeoutSec:  60,
		PingIntervalSec: 30,
		MaxClients:      1000,
		StaticDir:       "client/static",
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

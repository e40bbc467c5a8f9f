package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"go.yaml.in/yaml/v3"

	"github.com/nkootstra/romlink/internal/protocol"
)

// ServerConfig holds the settings of `romlink serve`. Durations are kept as
// strings in the file ("5s", "250ms") and parsed by Validate.
type ServerConfig struct {
	Addr         string   `toml:"addr" yaml:"addr"`
	Dir          string   `toml:"dir" yaml:"dir"`
	Include      []string `toml:"include" yaml:"include"`
	HTTPAddr     string   `toml:"http_addr" yaml:"http_addr"`
	ReadTimeout  string   `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout string   `toml:"write_timeout" yaml:"write_timeout"`
	Sequential   bool     `toml:"sequential" yaml:"sequential"`
	Watch        bool     `toml:"watch" yaml:"watch"`

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// DefaultServerConfig returns the settings used when no file is given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         fmt.Sprintf(":%d", protocol.DefaultPort),
		Dir:          ".",
		ReadTimeout:  (protocol.ReadTimeoutMs * time.Millisecond).String(),
		WriteTimeout: (protocol.WriteTimeoutMs * time.Millisecond).String(),
	}
}

// LoadServerConfig reads a TOML or YAML file (by extension) on top of the
// defaults and validates the result.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := loadFile(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func loadFile(path string, out any) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".toml":
		err = toml.Unmarshal(data, out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		return fmt.Errorf("config load failed (%s): unsupported extension, use .toml or .yaml", path)
	}
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// Validate checks required fields, parses durations and expands "~" in the
// ROM directory.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr is required")
	}
	if strings.TrimSpace(c.Dir) == "" {
		return fmt.Errorf("dir is required")
	}
	dir, err := homedir.Expand(strings.TrimSpace(c.Dir))
	if err != nil {
		return fmt.Errorf("dir: %w", err)
	}
	c.Dir = dir

	if c.readTimeout, err = parsePositiveDuration(c.ReadTimeout); err != nil {
		return fmt.Errorf("read_timeout: %w", err)
	}
	if c.writeTimeout, err = parsePositiveDuration(c.WriteTimeout); err != nil {
		return fmt.Errorf("write_timeout: %w", err)
	}
	return nil
}

// ReadTimeoutDuration is the parsed read_timeout. Valid after Validate.
func (c ServerConfig) ReadTimeoutDuration() time.Duration { return c.readTimeout }

// WriteTimeoutDuration is the parsed write_timeout. Valid after Validate.
func (c ServerConfig) WriteTimeoutDuration() time.Duration { return c.writeTimeout }

func parsePositiveDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", raw)
	}
	return d, nil
}

// Package config loads dotlog settings from a YAML file.
//
// Every field has a default. A missing file is not an error; the defaults
// are used. Unknown keys are rejected so a typo never silently falls back
// to a default path.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable that selects the config file.
const EnvConfig = "DOTLOG_CONFIG"

// Config holds every dotlog setting.
type Config struct {
	// DataDir holds the database, key and host id unless overridden.
	DataDir string `yaml:"data_dir"`

	RecordStorePath string `yaml:"record_store_path"`
	KeyPath         string `yaml:"key_path"`
	HostIDPath      string `yaml:"host_id_path"`

	// MaxRecordSize is the largest plaintext a push accepts, in bytes.
	MaxRecordSize int `yaml:"max_record_size"`

	// PushRetries is how many append attempts a push makes under contention.
	PushRetries int `yaml:"push_retries"`

	// MaxClockSkew is how far ahead of the local clock an imported record's
	// timestamp may be.
	MaxClockSkew time.Duration `yaml:"max_clock_skew"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// DefaultPath returns the config file location used when neither
// --config nor DOTLOG_CONFIG is given.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "dotlog", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".dotlog", "config.yaml")
	}
	return filepath.Join(home, ".config", "dotlog", "config.yaml")
}

// ResolvePath picks the config file: flag first, then DOTLOG_CONFIG, then
// DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	return DefaultPath()
}

// Load reads the file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes YAML from r, applies defaults and validates.
func Parse(r io.Reader) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.RecordStorePath == "" {
		c.RecordStorePath = filepath.Join(c.DataDir, "records.db")
	}
	if c.KeyPath == "" {
		c.KeyPath = filepath.Join(c.DataDir, "key")
	}
	if c.HostIDPath == "" {
		c.HostIDPath = filepath.Join(c.DataDir, "host_id")
	}
	if c.MaxRecordSize == 0 {
		c.MaxRecordSize = 1 << 20
	}
	if c.PushRetries == 0 {
		c.PushRetries = 16
	}
	if c.MaxClockSkew == 0 {
		c.MaxClockSkew = 24 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "dotlog")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dotlog"
	}
	return filepath.Join(home, ".local", "share", "dotlog")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MaxRecordSize < 0 {
		return errors.New("max_record_size must be positive")
	}
	if c.PushRetries < 0 {
		return errors.New("push_retries must be positive")
	}
	if c.MaxClockSkew < 0 {
		return errors.New("max_clock_skew must be positive")
	}
	if !isValidLevel(c.Logging.Level) {
		return errors.New("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return errors.New("logging.format must be one of: text, json")
	}
	return nil
}

func isValidLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// Package config loads translation options from YAML.
//
//	dialect: mssql
//	model: ./model            # CUE package directory
//	database: library.db      # DSN for the run command
//	array_parameters: false
//	log_level: debug
//	capabilities:             # overrides of the dialect's capability set
//	  constant_order_fallback: false
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orq/internal/querysql"
	"github.com/roach88/orq/internal/translate"
)

// Config holds translation and execution options.
type Config struct {
	// Dialect names the SQL dialect. Default: sqlite.
	Dialect string `yaml:"dialect"`

	// Model is the directory of the CUE entity model.
	Model string `yaml:"model,omitempty"`

	// Database is the data source name used to execute commands.
	Database string `yaml:"database,omitempty"`

	// ArrayParameters enables binding lists as array parameters on
	// dialects that support them. Default: true.
	ArrayParameters *bool `yaml:"array_parameters,omitempty"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level,omitempty"`

	// Capabilities overrides individual capability flags of the dialect.
	Capabilities yaml.Node `yaml:"capabilities,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Dialect: "sqlite", LogLevel: "info"}
}

// Load reads a YAML configuration file. Relative model paths are resolved
// against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if cfg.Model != "" && !filepath.IsAbs(cfg.Model) {
		cfg.Model = filepath.Join(filepath.Dir(path), cfg.Model)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration with strict field validation.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := querysql.Lookup(c.Dialect); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	if _, err := c.SQLDialect(); err != nil {
		return err
	}
	return nil
}

// SQLDialect returns the configured dialect with capability overrides
// applied.
func (c *Config) SQLDialect() (querysql.Dialect, error) {
	d, err := querysql.Lookup(c.Dialect)
	if err != nil {
		return nil, err
	}
	if c.Capabilities.Kind == 0 {
		return d, nil
	}
	caps := d.Capabilities()
	if err := c.Capabilities.Decode(&caps); err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	return querysql.WithCapabilities(d, caps), nil
}

// Options returns the translator options the configuration selects.
func (c *Config) Options(logger *slog.Logger) []translate.Option {
	opts := []translate.Option{translate.WithLogger(logger)}
	if c.ArrayParameters != nil {
		opts = append(opts, translate.WithArrayParameters(*c.ArrayParameters))
	}
	return opts
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	l, err := c.level()
	if err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// Package config provides YAML configuration parsing for riverql.
//
// This package enables running riverql from a configuration file, as an
// alternative to assembling [riverql.Option] values in code. Command-line
// flags override the file.
//
// Example configuration:
//
//	listen: unix://${XDG_RUNTIME_DIR}/riverql.sock
//	bus_capacity: 1024
//	write_timeout: 5s
//	log_level: info
//
//	source:
//	  type: replay
//	  path: ./example/events.jsonc
//	  interval: 250ms
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// SourceStream reads newline-delimited JSON records.
	SourceStream = "stream"

	// SourceReplay plays back a JSONC fixture.
	SourceReplay = "replay"

	// Stdin is the stream path that selects standard input.
	Stdin = "-"

	defaultBusCapacity  = 1024
	defaultWriteTimeout = 5 * time.Second

	// maxBusCapacity keeps a typo from allocating an enormous ring.
	maxBusCapacity = 1 << 20
)

// Config is the root configuration structure for riverql.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Listen is the server listen address. See [ParseListen].
	// Defaults to [DefaultListen].
	Listen string `yaml:"listen"`

	// Endpoint is the address the subscriber connects to. See [ParseEndpoint].
	// Defaults to the endpoint matching Listen.
	Endpoint string `yaml:"endpoint"`

	// BusCapacity is the number of events retained for slow subscribers.
	// Defaults to 1024.
	BusCapacity int `yaml:"bus_capacity"`

	// WriteTimeout bounds each frame write to a subscriber. Defaults to 5s.
	WriteTimeout Duration `yaml:"write_timeout"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Source selects the upstream status source.
	Source SourceConfig `yaml:"source"`

	listen   Listen
	endpoint Endpoint
	level    slog.Level
}

// SourceConfig defines where status events come from.
type SourceConfig struct {
	// Type is "stream" or "replay". Defaults to stream.
	Type string `yaml:"type"`

	// Path is the stream or fixture file. For streams "-" means stdin,
	// which is the default.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Path string `yaml:"path"`

	// Interval paces replayed events. Only valid for replay sources.
	Interval Duration `yaml:"interval"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		// the built-in defaults always validate
		panic(err)
	}
	return cfg
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in listen, endpoint, and source.path.
// Defaults are applied for every unset field.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = DefaultListen()
	}
	if cfg.BusCapacity == 0 {
		cfg.BusCapacity = defaultBusCapacity
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Source.Type == "" {
		cfg.Source.Type = SourceStream
	}
	if cfg.Source.Path == "" && cfg.Source.Type == SourceStream {
		cfg.Source.Path = Stdin
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	c.Listen = expanded
	if c.listen, err = ParseListen(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if c.Endpoint == "" {
		c.endpoint = c.listen.Endpoint()
		c.Endpoint = c.endpoint.String()
	} else {
		expanded, err := expandEnvVars(c.Endpoint)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		c.Endpoint = expanded
		if c.endpoint, err = ParseEndpoint(c.Endpoint); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}

	if c.BusCapacity < 0 {
		return fmt.Errorf("bus_capacity cannot be negative, got %d", c.BusCapacity)
	}
	if c.BusCapacity > maxBusCapacity {
		return fmt.Errorf("bus_capacity must not exceed %d, got %d", maxBusCapacity, c.BusCapacity)
	}

	if c.WriteTimeout.Duration() < 0 {
		return fmt.Errorf("write_timeout cannot be negative, got %s", c.WriteTimeout.Duration())
	}
	if c.WriteTimeout.Duration() < 100*time.Millisecond {
		return fmt.Errorf("write_timeout must be at least 100ms, got %s", c.WriteTimeout.Duration())
	}

	if c.level, err = ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	return c.Source.expandAndValidate()
}

func (s *SourceConfig) expandAndValidate() error {
	expanded, err := expandEnvVars(s.Path)
	if err != nil {
		return fmt.Errorf("source.path: %w", err)
	}
	s.Path = expanded

	switch s.Type {
	case SourceStream:
		if s.Interval != 0 {
			return fmt.Errorf("source (%s): interval is only valid for replay sources", s.Type)
		}
	case SourceReplay:
		if s.Path == "" || s.Path == Stdin {
			return fmt.Errorf("source (%s): path to a fixture file is required", s.Type)
		}
		if s.Interval.Duration() < 0 {
			return fmt.Errorf("source (%s): interval cannot be negative, got %s", s.Type, s.Interval.Duration())
		}
	default:
		return fmt.Errorf("source: unknown type %q (expected %q or %q)", s.Type, SourceStream, SourceReplay)
	}
	return nil
}

// ParsedListen returns the validated listen address.
func (c *Config) ParsedListen() Listen {
	return c.listen
}

// ParsedEndpoint returns the validated subscriber endpoint.
func (c *Config) ParsedEndpoint() Endpoint {
	return c.endpoint
}

// Level returns the validated log level.
func (c *Config) Level() slog.Level {
	return c.level
}

// SetListen overrides the listen address. When no endpoint was configured
// explicitly the endpoint follows the new address.
func (c *Config) SetListen(value string) error {
	l, err := ParseListen(value)
	if err != nil {
		return err
	}
	follow := c.Endpoint == c.listen.Endpoint().String()
	c.Listen, c.listen = value, l
	if follow {
		c.endpoint = l.Endpoint()
		c.Endpoint = c.endpoint.String()
	}
	return nil
}

// SetEndpoint overrides the subscriber endpoint.
func (c *Config) SetEndpoint(value string) error {
	ep, err := ParseEndpoint(value)
	if err != nil {
		return err
	}
	c.Endpoint, c.endpoint = value, ep
	return nil
}

// SetLogLevel overrides the log level.
func (c *Config) SetLogLevel(value string) error {
	level, err := ParseLevel(value)
	if err != nil {
		return err
	}
	c.LogLevel, c.level = value, level
	return nil
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", s)
	}
}

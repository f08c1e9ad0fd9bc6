package serializers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfigFromEnvironment loads configuration from environment variables.
//
// Every variable is optional; defaults are applied to the ones not set:
//   - SERIALIZERS_FORMAT: default output format (default: json)
//   - SERIALIZERS_INDENT: indentation of nested output (default: 2)
//   - SERIALIZERS_NATURAL_KEYS: "true" to write relations as natural keys
//   - SERIALIZERS_DEPTH: relation depth, "-1" for unbounded
//   - SERIALIZERS_LOG_LEVEL: debug, info, warn or error (default: info)
//   - SERIALIZERS_LOG_FORMAT: json, text or console (default: text)
//   - SERIALIZERS_DATABASE: SQLite file (default: serializers.db)
//   - SERIALIZERS_COMPRESS: "true" to zstd-compress file output
//
// Example usage:
//
//	// export SERIALIZERS_FORMAT=yaml
//	// export SERIALIZERS_NATURAL_KEYS=true
//	cfg, err := serializers.LoadConfigFromEnvironment()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnvironment() (Config, error) {
	var cfg Config
	if err := cfg.applyEnvironment(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file. Environment variables that
// are set override the file.
//
// Example file:
//
//	format: yaml
//	indent: 4
//	natural_keys: true
//	log_level: debug
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: parse config %s: %v", ErrConfiguration, path, err)
	}
	if err := cfg.applyEnvironment(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironment() error {
	if v := os.Getenv(EnvFormat); v != "" {
		c.Format = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database = v
	}

	if v := os.Getenv(EnvIndent); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return NewConfigurationError("%s must be an integer, got %q", EnvIndent, v)
		}
		c.Indent = &n
	}
	if v := os.Getenv(EnvDepth); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return NewConfigurationError("%s must be an integer, got %q", EnvDepth, v)
		}
		c.Depth = &n
	}
	if v := os.Getenv(EnvNaturalKeys); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigurationError("%s must be true or false, got %q", EnvNaturalKeys, v)
		}
		c.NaturalKeys = b
	}
	if v := os.Getenv(EnvCompress); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigurationError("%s must be true or false, got %q", EnvCompress, v)
		}
		c.Compress = b
	}
	return nil
}

package serializers

import (
	"io"
	"log/slog"
)

// Config holds process-level settings for commands built on the package.
//
// This struct contains only data. It can be filled from the environment with
// LoadConfigFromEnvironment, from a YAML file with LoadConfigFile, or in
// code, and must be validated before use.
//
// Example usage:
//
//	cfg := serializers.Config{Format: "yaml", NaturalKeys: true}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	out, err := s.Serialize(ctx, objs, cfg.OutputFormat(), cfg.CallOptions()...)
type Config struct {
	// Format is the default output format. Default: json.
	Format string `yaml:"format"`

	// Indent is the number of spaces nested output is indented with, between
	// 0 and MaxIndent. Default: 2.
	Indent *int `yaml:"indent"`

	// NaturalKeys writes relations as natural keys where the related model
	// supports them.
	NaturalKeys bool `yaml:"natural_keys"`

	// Depth limits nested relation traversal. -1 means unbounded; nil keeps
	// each serializer's own default.
	Depth *int `yaml:"depth"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat is json, text or console. Default: text.
	LogFormat string `yaml:"log_format"`

	// Database is the SQLite file dumpdata and loaddata work on.
	// Default: serializers.db
	Database string `yaml:"database"`

	// Compress writes file output through zstd.
	Compress bool `yaml:"compress"`
}

// Validate checks the configuration and applies defaults to empty fields.
//
// Example:
//
//	cfg := serializers.Config{}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	// cfg.Format is now "json"
//	// *cfg.Indent is now 2
func (c *Config) Validate() error {
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.Indent == nil {
		indent := DefaultIndent
		c.Indent = &indent
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}

	var errs []error
	for _, check := range []func() error{
		func() error { return validateFormat(c.Format) },
		func() error { return validateIndent(*c.Indent) },
		func() error { return validateDepth(c.Depth) },
		func() error { return validateLogLevel(c.LogLevel) },
		func() error { return validateLogFormat(c.LogFormat) },
	} {
		if err := check(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinConfigErrors(errs)
}

// OutputFormat returns Format as a Format.
func (c *Config) OutputFormat() Format {
	f, err := parseFormat(c.Format)
	if err != nil {
		return FormatJSON
	}
	return f
}

// CallOptions returns the call options the configuration stands for.
func (c *Config) CallOptions() []CallOption {
	var opts []CallOption
	if c.Indent != nil {
		opts = append(opts, Indent(*c.Indent))
	}
	if c.NaturalKeys {
		opts = append(opts, NaturalKeys(true))
	}
	if c.Depth != nil {
		if *c.Depth < 0 {
			opts = append(opts, UnboundedDepth())
		} else {
			opts = append(opts, Depth(*c.Depth))
		}
	}
	return opts
}

// Logger returns a structured logger writing to w at the configured level
// and format.
func (c *Config) Logger(w io.Writer, component string) *slog.Logger {
	return newConfiguredLogger(w, component, c.LogLevel, c.LogFormat)
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hengadev/serializers"
	"github.com/hengadev/serializers/internal/sink"
)

type environment struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// settings are the flags shared by every command. Flags that are set
// override the configuration.
type settings struct {
	configPath  string
	format      string
	indent      int
	naturalKeys bool
	depth       int
	database    string
	compress    bool
	logLevel    string
	output      string
}

func (s *settings) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.configPath, "config", "", "YAML configuration file")
	fs.StringVarP(&s.format, "format", "f", "", "output format (json, yaml, xml, fixture-xml, csv, html, cbor, debug)")
	fs.IntVar(&s.indent, "indent", serializers.DefaultIndent, "indentation of nested output")
	fs.BoolVar(&s.naturalKeys, "natural-keys", false, "write relations as natural keys where possible")
	fs.IntVar(&s.depth, "depth", -1, "relation depth, -1 for unbounded")
	fs.StringVar(&s.database, "database", "", "SQLite database (default: "+serializers.DefaultDatabase+")")
	fs.BoolVar(&s.compress, "compress", false, "zstd-compress file output")
	fs.StringVar(&s.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVarP(&s.output, "output", "o", "-", "output file, s3://bucket/key, or - for stdout")
}

// config loads the configuration file or the environment and applies the
// flags that were set on fs.
func (s *settings) config(fs *pflag.FlagSet) (serializers.Config, error) {
	var cfg serializers.Config
	var err error
	if s.configPath != "" {
		cfg, err = serializers.LoadConfigFile(s.configPath)
	} else {
		cfg, err = serializers.LoadConfigFromEnvironment()
	}
	if err != nil {
		return serializers.Config{}, err
	}

	if fs.Changed("format") {
		cfg.Format = s.format
	}
	if fs.Changed("indent") {
		cfg.Indent = &s.indent
	}
	if fs.Changed("natural-keys") {
		cfg.NaturalKeys = s.naturalKeys
	}
	if fs.Changed("depth") {
		cfg.Depth = &s.depth
	}
	if fs.Changed("database") {
		cfg.Database = s.database
	}
	if fs.Changed("compress") {
		cfg.Compress = s.compress
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = s.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return serializers.Config{}, err
	}
	return cfg, nil
}

// outputFormat prefers an explicit --format, then the output file
// extension, then the configured default.
func (s *settings) outputFormat(fs *pflag.FlagSet, cfg serializers.Config) (serializers.Format, error) {
	if fs.Changed("format") {
		return serializers.ParseFormat(s.format)
	}
	if s.output != "-" && s.output != "" {
		if f, err := serializers.FormatFromPath(s.output); err == nil {
			return f, nil
		}
	}
	return cfg.OutputFormat(), nil
}

// destination resolves --output to a sink and the name to create in it.
func (s *settings) destination(ctx context.Context, env *environment, cfg serializers.Config) (sink.Sink, string, error) {
	switch {
	case s.output == "" || s.output == "-":
		return sink.Writer(env.stdout), "", nil
	case strings.HasPrefix(s.output, "s3://"):
		u, err := url.Parse(s.output)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", sink.ErrInvalidDestination, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		prefix, name := path.Split(key)
		s3, err := sink.NewS3(ctx, u.Host, strings.TrimSuffix(prefix, "/"))
		if err != nil {
			return nil, "", err
		}
		return s3, name, nil
	}
	return sink.File{Compress: cfg.Compress}, s.output, nil
}

// write renders through fn into the destination named by --output.
func (s *settings) write(ctx context.Context, env *environment, cfg serializers.Config, fn func(io.Writer) error) error {
	dst, name, err := s.destination(ctx, env, cfg)
	if err != nil {
		return err
	}
	w, err := dst.Create(ctx, name)
	if err != nil {
		return err
	}
	if err := fn(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// openInput opens a named file, decompressing .zst files, or stdin for "-".
func openInput(env *environment, name string) (io.ReadCloser, error) {
	if name == "" || name == "-" {
		return io.NopCloser(env.stdin), nil
	}
	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("input %s: %w", name, err)
	}
	return sink.Open(name)
}

func (e *environment) logger(cfg serializers.Config, command string) *slog.Logger {
	return cfg.Logger(e.stderr, command)
}

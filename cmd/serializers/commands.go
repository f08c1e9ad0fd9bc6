package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hengadev/serializers"
	"github.com/hengadev/serializers/orm"
	"github.com/hengadev/serializers/orm/sqlstore"
)

func newFlagSet(env *environment, name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(env.stderr)
	fs.Usage = func() {
		fmt.Fprintf(env.stderr, "Usage: serializers %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func transcodeCommand(ctx context.Context, env *environment, args []string) error {
	var s settings
	var from string
	fs := newFlagSet(env, "transcode", "transcode [options] [input]")
	s.addFlags(fs)
	fs.StringVar(&from, "from", "", "input format (default: guessed from the input file name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("%w: transcode takes at most one input", errUsage)
	}

	cfg, err := s.config(fs)
	if err != nil {
		return err
	}
	input := fs.Arg(0)
	in, err := inputFormat(from, input, cfg)
	if err != nil {
		return err
	}
	out, err := s.outputFormat(fs, cfg)
	if err != nil {
		return err
	}

	r, err := openInput(env, input)
	if err != nil {
		return err
	}
	defer r.Close()

	logger := env.logger(cfg, "transcode")
	logger.Debug("transcoding", "from", in, "to", out, "input", input, "output", s.output)
	return s.write(ctx, env, cfg, func(w io.Writer) error {
		return serializers.Transcode(ctx, r, w, in, out, cfg.CallOptions()...)
	})
}

func dumpdataCommand(ctx context.Context, env *environment, args []string) error {
	var s settings
	var apps []string
	fs := newFlagSet(env, "dumpdata", "dumpdata [options] [app.model ...]")
	s.addFlags(fs)
	fs.StringSliceVar(&apps, "app", nil, "apps to read from the database (default: the apps of the given models)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	labels := fs.Args()
	if len(apps) == 0 {
		apps = appsOf(labels)
	}
	if len(apps) == 0 {
		return fmt.Errorf("%w: dumpdata needs --app or at least one app.model label", errUsage)
	}

	cfg, err := s.config(fs)
	if err != nil {
		return err
	}
	format, err := s.outputFormat(fs, cfg)
	if err != nil {
		return err
	}
	store, closeDB, err := openStore(ctx, cfg.Database, apps)
	if err != nil {
		return err
	}
	defer closeDB()

	objs, err := store.Objects(ctx, labels...)
	if err != nil {
		return err
	}
	logger := env.logger(cfg, "dumpdata")
	logger.Info("dumping objects", "database", cfg.Database, "count", len(objs), "format", format, "output", s.output)
	return s.write(ctx, env, cfg, func(w io.Writer) error {
		return serializers.DumpData(ctx, w, store.Registry(), objs, format, cfg.CallOptions()...)
	})
}

func loaddataCommand(ctx context.Context, env *environment, args []string) error {
	var s settings
	var apps []string
	var from string
	fs := newFlagSet(env, "loaddata", "loaddata [options] fixture ...")
	s.addFlags(fs)
	fs.StringSliceVar(&apps, "app", nil, "apps to read from the database")
	fs.StringVar(&from, "from", "", "fixture format (default: guessed from each file name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: loaddata needs at least one fixture", errUsage)
	}
	if len(apps) == 0 {
		return fmt.Errorf("%w: loaddata needs --app", errUsage)
	}

	cfg, err := s.config(fs)
	if err != nil {
		return err
	}
	store, closeDB, err := openStore(ctx, cfg.Database, apps)
	if err != nil {
		return err
	}
	defer closeDB()

	logger := env.logger(cfg, "loaddata")
	total := 0
	for _, name := range fs.Args() {
		n, err := loadFixture(ctx, env, store, name, from, cfg)
		if err != nil {
			return fmt.Errorf("fixture %s: %w", name, err)
		}
		logger.Debug("loaded fixture", "fixture", name, "count", n)
		total += n
	}
	fmt.Fprintf(env.stdout, "Installed %d object(s) from %d fixture(s)\n", total, fs.NArg())
	return nil
}

func loadFixture(ctx context.Context, env *environment, store *sqlstore.Store, name, from string, cfg serializers.Config) (int, error) {
	format, err := inputFormat(from, name, cfg)
	if err != nil {
		return 0, err
	}
	r, err := openInput(env, name)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	objs, err := serializers.LoadData(ctx, r, store.Registry(), format, store, cfg.CallOptions()...)
	if err != nil {
		return 0, err
	}
	return len(objs), nil
}

func versionCommand(env *environment) error {
	fmt.Fprintln(env.stdout, serializers.VersionInfo())
	fmt.Fprintln(env.stdout, "Declarative object serialization: dump, load and transcode fixtures")
	fmt.Fprintln(env.stdout, "")
	fmt.Fprintf(env.stdout, "Supported formats: %v\n", serializers.AllFormats())
	return nil
}

// inputFormat prefers --from, then the file extension, then the configured
// default.
func inputFormat(from, name string, cfg serializers.Config) (serializers.Format, error) {
	if from != "" {
		return serializers.ParseFormat(from)
	}
	if name != "" && name != "-" {
		if f, err := serializers.FormatFromPath(name); err == nil {
			return f, nil
		}
	}
	return cfg.OutputFormat(), nil
}

func openStore(ctx context.Context, database string, apps []string) (*sqlstore.Store, func(), error) {
	db, err := sqlstore.Open(ctx, database)
	if err != nil {
		return nil, nil, err
	}
	store := sqlstore.New(db, orm.NewRegistry())
	for _, app := range apps {
		models, err := store.Introspect(ctx, app)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if len(models) == 0 {
			db.Close()
			return nil, nil, fmt.Errorf("%w: no tables for app %q in %s", orm.ErrUnknownModel, app, database)
		}
	}
	return store, func() { db.Close() }, nil
}

func appsOf(labels []string) []string {
	seen := make(map[string]bool)
	var apps []string
	for _, label := range labels {
		app, _, ok := strings.Cut(label, ".")
		if !ok || seen[app] {
			continue
		}
		seen[app] = true
		apps = append(apps, app)
	}
	return apps
}

// serializers dumps SQLite databases to fixtures, loads fixtures back, and
// converts documents between the supported formats.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: load .env: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return errUsage
	}

	env := &environment{stdin: stdin, stdout: stdout, stderr: stderr}
	command := args[0]
	switch command {
	case "transcode":
		return transcodeCommand(ctx, env, args[1:])
	case "dumpdata":
		return dumpdataCommand(ctx, env, args[1:])
	case "loaddata":
		return loaddataCommand(ctx, env, args[1:])
	case "version", "--version":
		return versionCommand(env)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

var errUsage = errors.New("usage")

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: serializers <command> [options]\n")
	fmt.Fprintf(w, "\nCommands:\n")
	fmt.Fprintf(w, "  transcode  Convert a document from one format to another\n")
	fmt.Fprintf(w, "  dumpdata   Write the contents of a database as a fixture\n")
	fmt.Fprintf(w, "  loaddata   Install fixtures into a database\n")
	fmt.Fprintf(w, "  version    Show version information\n")
	fmt.Fprintf(w, "\nRun 'serializers <command> -h' for help on a specific command.\n")
	fmt.Fprintf(w, "Settings are read from SERIALIZERS_* variables and a .env file.\n")
}

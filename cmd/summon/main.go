package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/wilhg/summon/pkg/config"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// command runs one subcommand with its own flag set.
type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *cmdEnv, cfg *config.Config, fs *pflag.FlagSet) error
	// extra registers command specific flags before parsing.
	extra func(fs *pflag.FlagSet)
}

// cmdEnv carries the process streams so commands stay testable.
type cmdEnv struct {
	stdout io.Writer
	stderr io.Writer
	lookup func(string) (string, bool)
}

var commands = []command{
	{name: "serve", usage: "run the MCP server (default)", run: runServe},
	{name: "catalog", usage: "list the tools of the configured catalog with token estimates", run: runCatalog, extra: catalogFlags},
	{name: "token", usage: "mint a bearer token from the configured secret", run: runToken, extra: tokenFlags},
	{name: "probe", usage: "connect to a running server, list its tools and optionally call one", run: runProbe, extra: probeFlags},
	{name: "audit", usage: "list or replay durable audit records", run: runAudit, extra: auditFlags},
	{name: "eval", usage: "check the catalog against fixture expectations", run: runEval, extra: evalFlags},
	{name: "version", usage: "print version and exit", run: runVersion},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	env := &cmdEnv{stdout: os.Stdout, stderr: os.Stderr, lookup: os.LookupEnv}
	if err := run(ctx, env, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "summon: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, env *cmdEnv, args []string) error {
	name := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	for _, c := range commands {
		if c.name != name {
			continue
		}
		fs := pflag.NewFlagSet("summon "+c.name, pflag.ContinueOnError)
		fs.SetOutput(env.stderr)
		if c.extra != nil {
			c.extra(fs)
		}
		cfg, err := config.Load(fs, args, config.Options{Lookup: env.lookup})
		if err != nil {
			return err
		}
		return c.run(ctx, env, cfg, fs)
	}
	var b strings.Builder
	for _, c := range commands {
		fmt.Fprintf(&b, "\n  %-8s %s", c.name, c.usage)
	}
	return fmt.Errorf("unknown command %q; commands:%s", name, b.String())
}

func runVersion(_ context.Context, env *cmdEnv, _ *config.Config, _ *pflag.FlagSet) error {
	_, err := fmt.Fprintf(env.stdout, "summon %s (commit=%s, date=%s)\n", version, commit, date)
	return err
}

// newLogger builds the process logger on w.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

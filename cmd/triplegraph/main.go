// Command triplegraph imports RDF dumps into a property graph and
// inspects the result.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bbiangul/triplegraph"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "triplegraph",
		Short: "Import RDF dumps into a property graph",
		Long: `triplegraph reads a subject-sorted RDF dump (N-Triples, Turtle or
RDF/XML, optionally gzipped) and builds a property graph from it:

- one vertex per topic subject, with its name, types and image
- direct edges between topics that name each other
- mediated edges between topics that share a mediator entity

Edges carry hierarchical counters for the predicates that produced them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(importCmd(opts), statsCmd(opts), similarCmd(opts), neighborsCmd(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "triplegraph version %s\n", version)
		},
	})
	return cmd
}

func setupLogging(w io.Writer, level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		slog.SetDefault(slog.New(slog.NewTextHandler(w, hopts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, hopts)))
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// loadConfig layers the config file and TRIPLEGRAPH_* variables over
// the defaults. Command flags are applied on top by each command.
func loadConfig(opts *globalOptions) (triplegraph.Config, error) {
	cfg := triplegraph.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = triplegraph.LoadConfig(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

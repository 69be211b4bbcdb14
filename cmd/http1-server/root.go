package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/searchktools/http1-server/config"
)

// runFunc starts the server with the final configuration.
type runFunc func(ctx context.Context, cfg *config.Config) error

type rootFlags struct {
	configFile string
	root       string
	queue      int
	logLevel   string
	logFormat  string
	logFile    string
}

func newRootCommand(run runFunc) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "http1-server [port] [host] [workers]",
		Short: "Multi-threaded HTTP/1.1 file and upload server",
		Long: `Serves files from a document root and accepts JSON uploads over
HTTP/1.1 with keep-alive, a bounded worker pool, rate and size limits
and Host validation.

Settings are read from the defaults, then the --config YAML file, then
HTTP1_* environment variables, then flags and positional arguments.`,
		Args:          cobra.MaximumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configFile)
			if err != nil {
				return err
			}
			if err := applyArgs(cfg, args); err != nil {
				return err
			}
			applyFlags(cfg, cmd.Flags(), &f)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringVarP(&f.configFile, "config", "c", "", "YAML configuration file")
	flags.StringVar(&f.root, "root", "", "document root directory")
	flags.IntVar(&f.queue, "queue", 0, "worker pool queue capacity")
	flags.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&f.logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&f.logFile, "log-file", "", "also append logs to this file")
	return cmd
}

// applyArgs reads the optional port, host and worker count positionals.
func applyArgs(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		cfg.Port = port
	}
	if len(args) > 1 {
		cfg.Host = args[1]
	}
	if len(args) > 2 {
		workers, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid worker count %q", args[2])
		}
		cfg.Workers = workers
	}
	return nil
}

// applyFlags copies the flags set on the command line over cfg.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet, f *rootFlags) {
	if flags.Changed("root") {
		cfg.DocumentRoot = f.root
	}
	if flags.Changed("queue") {
		cfg.QueueSize = f.queue
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = f.logFile
	}
}

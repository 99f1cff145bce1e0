// Package cli implements the rawsql command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"rawsql/internal/app"
	"rawsql/internal/config"
	"rawsql/internal/history"
)

var (
	version = "dev"
	commit  = "none"
)

// errReported marks a failure whose message was already printed.
var errReported = errors.New("error already reported")

// appFactory builds the application for a command run.
type appFactory func(cfg *config.Config, logger *slog.Logger) (*app.App, error)

func defaultAppFactory(cfg *config.Config, logger *slog.Logger) (*app.App, error) {
	store, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	a, err := app.New(app.Deps{Cfg: cfg, Logger: logger, History: store})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// state is resolved once per run in PersistentPreRunE and shared by commands.
type state struct {
	newApp  appFactory
	cfg     *config.Config
	logger  *slog.Logger
	owner   string
	output  string
	cfgFile string
	envFile string
	level   string
}

// Execute runs the CLI.
func Execute() int {
	return execute(newRootCmd(defaultAppFactory), os.Stderr)
}

func execute(rootCmd *cobra.Command, stderr io.Writer) int {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(factory appFactory) *cobra.Command {
	st := &state{newApp: factory}

	rootCmd := &cobra.Command{
		Use:   "rawsql",
		Short: "Query files in cloud storage with plain SQL",
		Long: `rawsql rewrites SQL whose FROM clause names files, e.g.

  SELECT * FROM 'data/sales.csv' WHERE amount > 10
  SELECT * FROM CSV('s3:bucket/d.csv', sep=';') AS d

into plain SQL against tables the materialization service built from them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if st.output != "table" && st.output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", st.output)
			}
			cfg, err := config.Load(st.cfgFile, st.envFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cmd.Flags().Changed("log-level") || os.Getenv("LOG_LEVEL") == "" {
				cfg.LogLevel = st.level
			}
			if !cmd.Flags().Changed("owner") {
				st.owner = cfg.OwnerID
			}
			st.cfg = cfg
			st.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			for _, w := range cfg.Warnings {
				st.logger.Warn("config warning", "warning", w)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&st.cfgFile, "config", "", "YAML config file (environment variables take precedence)")
	flags.StringVar(&st.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&st.owner, "owner", "", "owner ID (default $RAW_OWNER_ID)")
	flags.StringVarP(&st.output, "output", "o", "table", "Output format (table, json)")
	flags.StringVar(&st.level, "log-level", "warn", "log level: debug, info, warn, error")

	rootCmd.AddCommand(newRewriteCmd(st))
	rootCmd.AddCommand(newQueryCmd(st))
	rootCmd.AddCommand(newHistoryCmd(st))
	rootCmd.AddCommand(newServeCmd(st))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// openApp builds the application for commands acting on behalf of an owner.
func (st *state) openApp() (*app.App, error) {
	if st.owner == "" {
		return nil, errors.New("owner ID required: set RAW_OWNER_ID or pass --owner")
	}
	return st.newApp(st.cfg, st.logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rawsql %s (commit %s)\n", version, commit)
		},
	}
}

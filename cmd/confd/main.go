// Command confd is the CLI entry point wrapping the backup/restore
// engine's operations surface as cobra subcommands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okt-galaktionov/confd/internal/config"
	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/logging"
	"github.com/okt-galaktionov/confd/internal/metrics"
	"github.com/okt-galaktionov/confd/internal/schema"
)

var (
	dbPath     string
	dbDriver   string
	actor      string
	jsonOutput bool
	enableOtel bool

	rootCtx context.Context

	cfg      *config.Config
	logger   *slog.Logger
	rec      *metrics.Recorder
	teardown func()
)

var rootCmd = &cobra.Command{
	Use:   "confd",
	Short: "confd - hierarchical configuration backup/restore engine",
	Long: `confd reconciles a live, in-memory configuration database against an
XML backup document: it deletes live instances no longer desired, adds or
updates desired instances in dependency order with bounded retries, and can
emit the live state back out as a backup document.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		_ = cancel // released on process exit; no long-running command outlives the CLI invocation
		rootCtx = ctx

		loaded, err := config.Load(".")
		if err != nil {
			return err
		}
		cfg = loaded

		if dbPath == "" {
			dbPath = cfg.DBPath()
		}
		if dbDriver == "" {
			dbDriver = cfg.DBDriver()
		}
		if actor == "" {
			actor = cfg.Actor()
		}

		format := logging.FormatText
		if jsonOutput {
			format = logging.FormatJSON
		}
		lg, err := logging.New(logging.Options{Format: format, Level: cfg.LoggingLevel(), Writer: os.Stderr})
		if err != nil {
			return err
		}
		logger = lg

		rec, teardown, err = setupMetrics(ctx, logger, enableOtel)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if teardown != nil {
			teardown()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "instance store path (driver-dependent; default from confd.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", "", "instance store driver: memory or sqlite (default from confd.yaml)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "identity recorded for this invocation's changes")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of text")
	rootCmd.PersistentFlags().BoolVar(&enableOtel, "metrics", false, "export OpenTelemetry metrics to stdout")

	rootCmd.AddCommand(verifyCmd, restoreCmd, createCmd, reconcileCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "confd:", err)
		os.Exit(1)
	}
}

// newRegistry returns an empty schema registry. Real deployments populate
// it out-of-band via REGISTER messages from the database layer; the CLI
// instead bootstraps it straight from the backup file's own <object>
// entries (backupop.RegisterObjects), since it has no message bus
// transport to receive REGISTER from.
func newRegistry() *schema.Registry {
	return schema.New()
}

func openStoreOrExit(ctx context.Context, reg *schema.Registry) instance.Store {
	st, err := openStore(ctx, dbDriver, dbPath, reg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "confd:", err)
		os.Exit(1)
	}
	return st
}

/*
main.go - hourbank entry point

COMMANDS:
  hourbank serve                        HTTP API, metrics and sweep scheduler
  hourbank reconcile [--collaborator N] One reconciliation sweep, then exit
  hourbank balance N [--start --end]    Print one collaborator's balance

CONFIGURATION:
  Defaults, then configs/<name>.env or ./<name>.env, then the environment.
  --config picks <name> (default "hourbank"); --db overrides DB_PATH.

EXAMPLES:
  # Serve with an in-memory database
  DB_PATH=":memory:" hourbank serve

  # Nightly repair from cron
  hourbank reconcile --db=/var/lib/hourbank/hourbank.db
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/multimax/hourbank/config"
	"github.com/multimax/hourbank/ledger"
	"github.com/multimax/hourbank/logger"
	"github.com/multimax/hourbank/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:           "hourbank",
	Short:         "Hour bank and time-off ledger",
	Long:          `Records overtime hours, converts every 8 hours into a day off and keeps the automatic credits in step with the hours behind them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "hourbank", "Config file name (without .env)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path, overrides DB_PATH")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *sqlite.Store
	service *ledger.Service
}

func openApp(cmd *cobra.Command) (*app, error) {
	name, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(name)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Database.Path = db
	}

	log, err := logger.New(cfg.Application.IsProduction(), cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Sync()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  log,
		store:   store,
		service: ledger.NewService(store, ledger.WithLogger(log)),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
)

var (
	flagBackend string
	flagDBPath  string
	flagJSON    bool
	flagVerbose bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "fintrackctl",
	Short:         "Personal finance forecasting CLI",
	Long:          "Forecast monthly expenses, import the ledger spreadsheet and manage the SQLite schema.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cli.LoadEnvFile()
		cfg = config.Load()
		if flagBackend != "" {
			cfg.DataBackend = flagBackend
		}
		if flagDBPath != "" {
			cfg.SQLiteDBPath = flagDBPath
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		// Logs go to stderr so stdout stays parseable.
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagBackend, "backend", "b", "", "Data backend: "+strings.Join(backend.GetBackendTypeStrings(), ", ")+" (default from DATA_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "SQLite database path (default from SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print JSON instead of a table")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stderr")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

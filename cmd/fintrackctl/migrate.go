package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fintrack/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQLite schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Revert migrations (default: 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid steps %q: %w", args[0], err)
			}
			steps = n
		}
		if err := storage.RollbackMigrations(cfg.SQLiteDBPath, steps); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printVersion(cmd)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func printVersion(cmd *cobra.Command) error {
	version, dirty, err := storage.MigrationVersion(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, map[string]any{"version": version, "dirty": dirty})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d", version)
	if dirty {
		fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

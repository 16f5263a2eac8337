package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/storage"
)

var (
	flagRunsUser  string
	flagRunsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded forecast runs",
	RunE:  runListRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one forecast run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

func init() {
	runsCmd.Flags().StringVarP(&flagRunsUser, "user", "u", "", "User whose runs are listed")
	runsCmd.Flags().IntVarP(&flagRunsLimit, "limit", "l", 20, "Maximum number of runs")
	_ = runsCmd.MarkFlagRequired("user")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runListRuns(cmd *cobra.Command, _ []string) error {
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	runs, err := repo.ListForecastRuns(cmd.Context(), flagRunsUser, flagRunsLimit)
	if err != nil {
		return err
	}
	if flagJSON {
		if runs == nil {
			runs = []*storage.ForecastRun{}
		}
		return printJSON(cmd, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No forecast runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tHORIZON\tSTATUS\tERROR METRIC\tCREATED")
	for _, run := range runs {
		metric := "-"
		if run.ErrorMetric != nil {
			metric = strconv.FormatFloat(*run.ErrorMetric, 'f', 4, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			run.ID, run.Model, run.Horizon, run.Status, metric, run.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runShowRun(cmd *cobra.Command, args []string) error {
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	run, err := repo.GetForecastRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, run)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(out, "user: %s  model: %s  horizon: %d\n", run.UserID, run.Model, run.Horizon)
	if run.Error != "" {
		fmt.Fprintf(out, "error: %s\n", run.Error)
	}
	for i, p := range run.Predictions {
		label := strconv.Itoa(i + 1)
		if i < len(run.FutureMonths) {
			label = run.FutureMonths[i].Label()
		}
		fmt.Fprintf(out, "  %s  %.2f\n", label, p)
	}
	return nil
}

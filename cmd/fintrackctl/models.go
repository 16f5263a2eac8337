package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fintrack/internal/services"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List forecasting models and their minimum history",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, _ []string) error {
	models := services.AvailableModels()
	if flagJSON {
		return printJSON(cmd, models)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tMIN MONTHS")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%d\n", m.Key, m.MinMonths)
	}
	return tw.Flush()
}

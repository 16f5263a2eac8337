package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/services"
)

var (
	flagUser         string
	flagModel        string
	flagHorizon      int
	flagMonthsAmount int
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast monthly expenses for a user",
	Example: `  fintrackctl forecast --user alice --model sarimax --n-future 3
  fintrackctl forecast -u alice -m ensemble --json`,
	RunE: runForecast,
}

func init() {
	forecastCmd.Flags().StringVarP(&flagUser, "user", "u", "", "User whose ledger is forecast")
	forecastCmd.Flags().StringVarP(&flagModel, "model", "m", "linear", "Model: "+modelList())
	forecastCmd.Flags().IntVarP(&flagHorizon, "n-future", "n", 1, "Months to predict")
	forecastCmd.Flags().IntVar(&flagMonthsAmount, "months", services.DefaultMonthsAmount, "Months of history to display")
	_ = forecastCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(forecastCmd)
}

func runForecast(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	b, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		return err
	}
	defer b.Close()

	var runs services.RunStore
	if b.Repo != nil {
		runs = b.Repo
	}
	svc := services.NewForecastService(b.Source, runs, nil, services.ForecastServiceConfig{
		MaxHorizon: cfg.ForecastMaxHorizon,
		Timeout:    cfg.ForecastTimeout,
		Options:    cli.ForecastOptions(cfg, logger),
	}, logger)

	resp, err := svc.Forecast(ctx, services.Request{
		UserID:       flagUser,
		Model:        flagModel,
		Horizon:      flagHorizon,
		MonthsAmount: flagMonthsAmount,
	})
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, resp)
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tAMOUNT\tKIND")
	for i, m := range resp.Months {
		fmt.Fprintf(tw, "%s\t%.2f\tactual\n", m, resp.Actuals[i])
	}
	for i, m := range resp.FutureMonths {
		fmt.Fprintf(tw, "%s\t%.2f\tforecast\n", m, resp.Predictions[i])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nmodel: %s", resp.Model)
	if resp.ErrorMetric != nil {
		fmt.Fprintf(out, "  error: %.4f", *resp.ErrorMetric)
	}
	if resp.RunID != "" {
		fmt.Fprintf(out, "  run: %s", resp.RunID)
	}
	fmt.Fprintln(out)
	return nil
}

func modelList() string {
	infos := services.AvailableModels()
	keys := make([]string, len(infos))
	for i, m := range infos {
		keys[i] = string(m.Key)
	}
	return strings.Join(keys, ", ")
}

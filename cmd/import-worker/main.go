package main

import (
	"context"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/services"
	gsheet "fintrack/internal/sheets/google"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting import-worker")

	if err := cfg.ValidateSheets(); err != nil {
		logger.Error("Google Sheets configuration is required", "error", err)
		os.Exit(1)
	}

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleTransactionsSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	importConfig := services.DefaultImportProcessorConfig()
	importConfig.Interval = cfg.ImportInterval
	importConfig.UserID = cfg.ImportUserID
	processor := services.NewImportProcessor(sheetsClient, sqliteRepo, importConfig)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Import processor stop failed", "error", err)
		}
	})

	logger.Info("Transaction import configured",
		"interval", importConfig.Interval,
		"user_id", importConfig.UserID,
		"sqlite_db", cfg.SQLiteDBPath)

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start import processor", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

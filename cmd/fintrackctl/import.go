package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/services"
	gsheet "fintrack/internal/sheets/google"
)

var (
	flagImportUser string
	flagNoDeletes  bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy the ledger spreadsheet into the SQLite database once",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVarP(&flagImportUser, "user", "u", "", "Owner of the imported rows (default from IMPORT_USER_ID)")
	importCmd.Flags().BoolVar(&flagNoDeletes, "no-deletes", false, "Keep local rows that are no longer in the spreadsheet")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	if err := cfg.ValidateSheets(); err != nil {
		return err
	}
	ctx := cmd.Context()

	sheetsClient, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleTransactionsSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		return fmt.Errorf("initialize Google Sheets client: %w", err)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	importConfig := services.DefaultImportProcessorConfig()
	importConfig.UserID = cfg.ImportUserID
	if flagImportUser != "" {
		importConfig.UserID = flagImportUser
	}
	importConfig.MirrorDeletes = !flagNoDeletes

	res, err := services.NewImportProcessor(sheetsClient, repo, importConfig).ImportOnce(ctx)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows for %s: %d upserted, %d deleted in %s\n",
		res.Read, res.UserID, res.Upserted, res.Deleted, res.Duration.Round(time.Millisecond))
	return nil
}

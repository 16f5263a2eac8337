package main

import (
	"fmt"

	"github.com/spf13/cobra"

	gsheet "fintrack/internal/sheets/google"
)

var flagTokenFile string

var sheetsAuthCmd = &cobra.Command{
	Use:   "sheets-auth",
	Short: "Authorize read access to the ledger spreadsheet with a Google account",
	Long: `Runs the OAuth consent flow for a desktop client and stores the token.
The client comes from GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE and its
authorized redirect URIs must include http://localhost:<OAUTH_REDIRECT_PORT>/callback.
Point GOOGLE_OAUTH_TOKEN_FILE at the saved token to use it instead of a service account.`,
	Args: cobra.NoArgs,
	RunE: runSheetsAuth,
}

func init() {
	sheetsAuthCmd.Flags().StringVarP(&flagTokenFile, "out", "o", "", "Token file (default from GOOGLE_OAUTH_TOKEN_FILE, else token.json)")
	rootCmd.AddCommand(sheetsAuthCmd)
}

func runSheetsAuth(cmd *cobra.Command, _ []string) error {
	clientJSON, err := gsheet.ReadOAuthClient(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return fmt.Errorf("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE: %w", err)
	}
	oauthCfg, err := gsheet.OAuthConfigFromJSON(clientJSON)
	if err != nil {
		return err
	}

	tok, err := gsheet.Authorize(cmd.Context(), oauthCfg, cfg.OAuthRedirectPort, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	out := flagTokenFile
	if out == "" {
		out = cfg.GoogleOAuthTokenFile
	}
	if out == "" {
		out = "token.json"
	}
	if err := gsheet.SaveToken(out, tok); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", out)
	return nil
}

package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "fintrack/internal/sheets"

	"fintrack/internal/core"
)

var _ ports.TransactionSource = (*Client)(nil)

// Config selects the spreadsheet and the credentials used to read it. A
// service account wins over an OAuth user token when both are set.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string

	// OAuth user token written by "fintrackctl sheets-auth".
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenFile  string
}

// valuesReader is the slice of the Sheets API the client needs.
type valuesReader interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

type serviceValues struct {
	svc *gsheet.Service
}

func (s serviceValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Client reads a ledger sheet with columns Date, Category, Description,
// Amount and Type.
type Client struct {
	values        valuesReader
	spreadsheetID string
	sheetName     string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Transactions"
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{values: serviceValues{svc: svc}, spreadsheetID: cfg.SpreadsheetID, sheetName: sheet}, nil
}

// newSheetsService authenticates with a service account, preferring inline
// JSON over a credentials file, and falls back to a stored OAuth token.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) == "" && strings.TrimSpace(cfg.CredentialsFile) == "" &&
		strings.TrimSpace(cfg.OAuthTokenFile) != "":
		return newOAuthSheetsService(ctx, cfg)
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read service account credentials", "path", cfg.CredentialsFile, "size", len(b))
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials or oauth token")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func newOAuthSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	clientJSON, err := ReadOAuthClient(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, err
	}
	oauthCfg, err := OAuthConfigFromJSON(clientJSON)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(cfg.OAuthTokenFile)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Using stored OAuth token", "path", cfg.OAuthTokenFile)

	service, err := gsheet.NewService(ctx, goption.WithTokenSource(oauthCfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ListTransactions reads every row of the ledger sheet and attributes it to
// userID. Rows that cannot be parsed are skipped and logged.
func (c *Client) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rng := fmt.Sprintf("%s!A1:F", quoteSheet(c.sheetName))
	values, err := c.values.Get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	txs, skipped := parseTransactions(values, rowScope{spreadsheetID: c.spreadsheetID, sheet: c.sheetName, userID: userID})
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped unparseable sheet rows",
			"sheet", c.sheetName,
			"skipped", skipped,
			"parsed", len(txs))
	}
	return txs, nil
}

// quoteSheet wraps sheet names containing spaces or quotes for A1 notation.
func quoteSheet(name string) string {
	if strings.ContainsAny(name, " '!") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

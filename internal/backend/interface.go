package backend

import (
	"context"

	"fintrack/internal/amqp"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult bundles what a backend provides. Writer, Repo and Jobs are
// nil when the backend cannot serve them: the sheets backend is read-only
// and only sqlite keeps forecast run history.
type BackendResult struct {
	Source  sheets.TransactionSource
	Writer  sheets.TransactionWriter
	Repo    *storage.SQLiteRepository
	Jobs    *amqp.Client
	Cleanup CleanupFunc
}

// Close runs Cleanup if set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

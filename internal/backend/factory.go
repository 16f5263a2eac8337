package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	var jobs *amqp.Client
	if config.AMQPURL != "" {
		jobs, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, forecast jobs disabled", "error", err)
			jobs = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", jobs != nil)

	return &BackendResult{
		Source: repo,
		Writer: repo,
		Repo:   repo,
		Jobs:   jobs,
		Cleanup: func() error {
			var errs []error
			if jobs != nil {
				errs = append(errs, jobs.Close())
			}
			errs = append(errs, repo.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
		OAuthClientJSON: config.GoogleOAuthClientJSON,
		OAuthClientFile: config.GoogleOAuthClientFile,
		OAuthTokenFile:  config.GoogleOAuthTokenFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "sheet", config.GoogleSheetName)

	return &BackendResult{Source: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend",
		"data_directory", dataDir,
		"users", len(store.Users()))

	return &BackendResult{Source: store, Writer: store}, nil
}

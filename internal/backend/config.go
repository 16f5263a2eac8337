package backend

import (
	"errors"
	"fmt"
	"path/filepath"

	"fintrack/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleTransactionsSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleOAuthClientJSON:    appConfig.GoogleOAuthClientJSON,
		GoogleOAuthClientFile:    appConfig.GoogleOAuthClientFile,
		GoogleOAuthTokenFile:     appConfig.GoogleOAuthTokenFile,

		// Seed files live next to the database.
		DataDirectory: filepath.Dir(appConfig.SQLiteDBPath),
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
		// AMQP is optional; without it forecast jobs are disabled.

	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleSheetName == "" {
			return errors.New("Google Sheet name is required for sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && c.GoogleOAuthTokenFile == "" {
			return errors.New("either GoogleServiceAccountJSON, GoogleServiceAccountFile or GoogleOAuthTokenFile must be provided for sheets backend")
		}

	case MemoryBackend:
		// DataDirectory defaults to "data".
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, SheetsBackend, MemoryBackend}
}

func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}

package google

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const installedClient = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret",` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
	`"redirect_uris":["http://localhost"]}}`

func TestOAuthConfigFromJSON(t *testing.T) {
	cfg, err := OAuthConfigFromJSON([]byte(installedClient))
	require.NoError(t, err)
	assert.Equal(t, "id.apps.googleusercontent.com", cfg.ClientID)
	assert.Contains(t, cfg.Scopes, "https://www.googleapis.com/auth/spreadsheets.readonly")

	_, err = OAuthConfigFromJSON([]byte(`{}`))
	assert.Error(t, err)
}

func TestReadOAuthClient(t *testing.T) {
	b, err := ReadOAuthClient(installedClient, "/does/not/matter")
	require.NoError(t, err)
	assert.Equal(t, installedClient, string(b))

	_, err = ReadOAuthClient("", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = ReadOAuthClient("", "")
	assert.Error(t, err)
}

func TestTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, SaveToken(path, tok))

	got, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, got.Expiry.Equal(tok.Expiry))

	require.NoError(t, SaveToken(path, &oauth2.Token{}))
	_, err = LoadToken(path)
	assert.Error(t, err)
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode int
		code     string
		wantErr  bool
	}{
		{"valid", "?state=s1&code=abc", http.StatusOK, "abc", false},
		{"state mismatch", "?state=other&code=abc", http.StatusBadRequest, "", false},
		{"missing code", "?state=s1", http.StatusBadRequest, "", false},
		{"denied", "?error=access_denied", http.StatusBadRequest, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codeCh := make(chan string, 1)
			errCh := make(chan error, 1)
			rr := httptest.NewRecorder()
			callbackHandler("s1", codeCh, errCh)(rr, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))
			assert.Equal(t, tt.wantCode, rr.Code)

			select {
			case code := <-codeCh:
				assert.Equal(t, tt.code, code)
			default:
				assert.Empty(t, tt.code)
			}
			select {
			case err := <-errCh:
				assert.True(t, tt.wantErr, "unexpected error %v", err)
			default:
				assert.False(t, tt.wantErr)
			}
		})
	}
}

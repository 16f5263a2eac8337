package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"
)

// OAuthConfigFromJSON parses a desktop OAuth client for read-only sheet access.
func OAuthConfigFromJSON(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// ReadOAuthClient returns inline client JSON or the contents of file.
func ReadOAuthClient(inline, file string) ([]byte, error) {
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing oauth client credentials")
	}
}

func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("token file %s holds no token", path)
	}
	return &tok, nil
}

// SaveToken writes tok readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// Authorize runs the installed-app consent flow: it prints the consent URL to
// out, waits on a localhost callback for the code and exchanges it.
func Authorize(ctx context.Context, cfg *oauth2.Config, port string, out io.Writer) (*oauth2.Token, error) {
	if port == "" {
		port = "8085"
	}
	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	cfg.RedirectURL = "http://localhost:" + port + "/callback"

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(state, codeCh, errCh))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Fprintf(out, "Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}

// callbackHandler delivers the first code whose state matches.
func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("oauth error: %s", e):
			default:
			}
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	}
}

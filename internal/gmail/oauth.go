package gmail

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// DefaultCallbackPort is where the interactive flow listens for the redirect.
const DefaultCallbackPort = 8080

// OAuth2Config holds the OAuth client used to read a mailbox.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenFile    string // Where the token is persisted, one per account
	CallbackPort int
}

// Validate ensures the client credentials are present.
func (c OAuth2Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("%w: gmail client id and secret are required", common.ErrMissingConfig)
	}
	if c.TokenFile == "" {
		return fmt.Errorf("%w: gmail token file is required", common.ErrMissingConfig)
	}
	return nil
}

func (c OAuth2Config) oauthConfig() *oauth2.Config {
	port := c.CallbackPort
	if port == 0 {
		port = DefaultCallbackPort
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  fmt.Sprintf("http://localhost:%d/callback", port),
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}
}

// AuthenticateInteractive runs the browser consent flow and saves the resulting token.
func AuthenticateInteractive(ctx context.Context, cfg OAuth2Config) (*oauth2.Token, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	oauthConfig := cfg.oauthConfig()

	state, err := randomState()
	if err != nil {
		return nil, err
	}

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errorChan <- errors.New("oauth state mismatch")
			http.Error(w, "State mismatch. Please try again.", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errorChan <- errors.New("no authorization code received")
			http.Error(w, "No authorization code received. Please try again.", http.StatusBadRequest)
			return
		}
		codeChan <- code
		_, _ = fmt.Fprint(w, `<html><body>
			<h1>Authentication Successful!</h1>
			<p>You can close this window and return to the terminal.</p>
		</body></html>`)
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", portOf(cfg)))
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChan <- fmt.Errorf("callback server failed: %w", err)
		}
	}()
	defer func() { _ = server.Shutdown(context.WithoutCancel(ctx)) }()

	authURL := oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	slog.Info("Gmail authentication required")
	slog.Info("Please visit this URL to authenticate", "url", authURL)

	var code string
	select {
	case code = <-codeChan:
	case err := <-errorChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, errors.New("authentication timeout: no response received within 5 minutes")
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := saveToken(cfg.TokenFile, token); err != nil {
		return nil, err
	}
	slog.Info("Token saved", "file", cfg.TokenFile)
	return token, nil
}

// LoadToken loads a token from file.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	f, err := os.Open(tokenFile) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token %s: %w", tokenFile, err)
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

// savingTokenSource writes refreshed tokens back to disk so the refresh token
// rotation Google sometimes performs is not lost.
type savingTokenSource struct {
	base oauth2.TokenSource
	last *oauth2.Token
	path string
	mu   sync.Mutex
}

func newSavingTokenSource(cfg OAuth2Config, base oauth2.TokenSource, initial *oauth2.Token) oauth2.TokenSource {
	return &savingTokenSource{base: base, last: initial, path: cfg.TokenFile}
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh failed: %w", common.ErrAuth, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || token.AccessToken != s.last.AccessToken {
		if saveErr := saveToken(s.path, token); saveErr != nil {
			slog.Warn("Failed to save refreshed token", "error", saveErr)
		}
		s.last = token
	}
	return token, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func portOf(cfg OAuth2Config) int {
	if cfg.CallbackPort == 0 {
		return DefaultCallbackPort
	}
	return cfg.CallbackPort
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// GoogleRedirectPort is the loopback port for the Google consent redirect.
// The client secrets must allow http://localhost:6789.
const GoogleRedirectPort = 6789

// ErrNoGoogleToken means `projectreg calendar auth` has not been run yet.
var ErrNoGoogleToken = errors.New("no google token; run `projectreg calendar auth`")

// CalendarScopes are requested for the calendar mirror.
var CalendarScopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// GoogleConfig reads the client secrets file and points the redirect at the
// loopback callback.
func GoogleConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", credentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d/oauth2callback", GoogleRedirectPort)
	return cfg, nil
}

// AuthorizeGoogle runs the consent flow in the browser and saves the token to
// tokenFile, replacing any previous one.
func AuthorizeGoogle(ctx context.Context, cfg *oauth2.Config, tokenFile string, timeout time.Duration, out io.Writer, logger *slog.Logger) (*oauth2.Token, error) {
	state := NewState()
	srv, err := ListenCallback(GoogleRedirectPort, "/oauth2callback", state, logger)
	if err != nil {
		return nil, err
	}
	defer srv.Close()

	// Offline access with forced consent so a refresh token is always returned.
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open the following URL in your browser to authorize calendar access:\n%s\n", authURL)

	code, err := srv.Wait(ctx, timeout)
	if err != nil {
		return nil, err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	tok, err := cfg.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
	}
	if err := saveToken(tokenFile, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// GoogleClient returns an HTTP client authorized with the saved token.
// Refreshed tokens are written back to tokenFile.
func GoogleClient(ctx context.Context, cfg *oauth2.Config, tokenFile string, logger *slog.Logger) (*http.Client, error) {
	tok, err := tokenFromFile(tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoGoogleToken
	}
	if err != nil {
		return nil, err
	}
	src := &savingTokenSource{
		base:   cfg.TokenSource(ctx, tok),
		path:   tokenFile,
		last:   tok,
		logger: logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// savingTokenSource persists the token whenever the underlying source hands
// out a new one.
type savingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil && s.logger != nil {
			s.logger.Warn("could not save refreshed google token", "path", s.path, "error", err)
		}
		s.last = tok
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

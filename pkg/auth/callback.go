// Package auth runs the browser login flows: Lark for the user session and
// Google for the optional calendar mirror.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStateMismatch means the redirect did not carry the state we issued.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrTimeout means nobody completed the authorization in time.
	ErrTimeout = errors.New("authorization timed out, please try again")
)

// NewState returns a random value for the state parameter.
func NewState() string {
	return uuid.NewString()
}

// CallbackServer waits on a loopback port for a single authorization redirect.
type CallbackServer struct {
	listener net.Listener
	server   *http.Server
	path     string
	state    string
	codeCh   chan string
	errCh    chan error
	logger   *slog.Logger
}

// ListenCallback starts listening on 127.0.0.1:port for a redirect to path
// that carries state.
func ListenCallback(port int, path, state string, logger *slog.Logger) (*CallbackServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %d: %w", port, err)
	}

	s := &CallbackServer{
		listener: listener,
		path:     path,
		state:    state,
		codeCh:   make(chan string, 1),
		errCh:    make(chan error, 1),
		logger:   logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handle)
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.fail(fmt.Errorf("callback server: %w", err))
		}
	}()
	return s, nil
}

// RedirectURL is the address to register as the redirect URI.
func (s *CallbackServer) RedirectURL() string {
	return fmt.Sprintf("http://localhost:%d%s", s.listener.Addr().(*net.TCPAddr).Port, s.path)
}

func (s *CallbackServer) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != s.state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		s.fail(ErrStateMismatch)
		return
	}
	if e := q.Get("error"); e != "" {
		http.Error(w, "Authorization was denied", http.StatusBadRequest)
		s.fail(fmt.Errorf("authorization denied: %s", e))
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "Authorization code not found", http.StatusBadRequest)
		s.fail(errors.New("authorization code not found in redirect URL"))
		return
	}
	fmt.Fprintln(w, "Authentication successful! You can close this window.")
	select {
	case s.codeCh <- code:
	default:
	}
}

func (s *CallbackServer) fail(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}

// Wait blocks until a code arrives, the redirect fails, ctx ends or timeout
// passes.
func (s *CallbackServer) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	s.logger.Info("waiting for authorization", "redirect_url", s.RedirectURL(), "timeout", timeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case code := <-s.codeCh:
		return code, nil
	case err := <-s.errCh:
		return "", err
	case <-timer.C:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close shuts the server down.
func (s *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

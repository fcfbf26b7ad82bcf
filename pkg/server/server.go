// Package server is the HTTP backend for the browser registration form.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harrisonrobin/projectreg/pkg/auth"
	"github.com/harrisonrobin/projectreg/pkg/config"
	"github.com/harrisonrobin/projectreg/pkg/lark"
	"github.com/harrisonrobin/projectreg/pkg/session"
	"github.com/harrisonrobin/projectreg/pkg/store"
	"github.com/harrisonrobin/projectreg/pkg/submit"
)

// Submitter runs a submission.
type Submitter interface {
	Submit(ctx context.Context, req submit.Request) (*submit.Result, error)
}

// History lists journaled submissions.
type History interface {
	ListSubmissions(ctx context.Context, limit int) ([]store.Submission, error)
}

// SchemaReader reads table columns.
type SchemaReader interface {
	Schema(ctx context.Context, conn config.Connection) (*lark.Schema, error)
}

// Deps are the collaborators of the server.
type Deps struct {
	Auth      auth.Authenticator
	Schema    SchemaReader
	Sessions  *session.Store
	Submitter Submitter
	History   History
	// Defaults is the connection from the environment; the saved override is
	// applied on every request.
	Defaults       config.Connection
	PublicURL      string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.PublicURL = strings.TrimRight(deps.PublicURL, "/")
	return &Server{deps: deps, logger: deps.Logger}
}

// Routes returns the router with all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.login)
		r.Get("/callback", s.callback)
		r.Post("/logout", s.logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.currentSession)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/settings", s.getSettings)
			r.Put("/settings", s.putSettings)
			r.Delete("/settings", s.resetSettings)
			r.Post("/submissions", s.createSubmission)
			r.Get("/submissions", s.listSubmissions)
			r.Get("/fields", s.fields)
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// requireSession admits only browsers holding the cookie of a live login.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.deps.Sessions.CurrentFor(r.Context(), sessionID(r)); err != nil {
			WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionID is the id from the session cookie, or "" without one.
func sessionID(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) connection(ctx context.Context) (config.Connection, error) {
	return s.deps.Sessions.Connection(ctx, s.deps.Defaults)
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.deps.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.deps.RequestTimeout)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

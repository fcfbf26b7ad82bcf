package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/auth"
	"github.com/harrisonrobin/projectreg/pkg/config"
	"github.com/harrisonrobin/projectreg/pkg/google"
	"github.com/harrisonrobin/projectreg/pkg/lark"
	"github.com/harrisonrobin/projectreg/pkg/session"
	"github.com/harrisonrobin/projectreg/pkg/store"
	"github.com/harrisonrobin/projectreg/pkg/submit"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "projectreg",
	Short:        "Register training projects and their schedule days in Lark Bitable",
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default $PROJECTREG_CONFIG or ~/.config/projectreg/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(formCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(fieldsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(calendarCmd)
}

// app holds what every command needs. Close releases the store.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *store.DB
	lark     *lark.Client
	tokens   submit.TokenIssuer
	sessions *session.Store
	// defaults is the connection from the environment.
	defaults config.Connection
}

func newApp(cmd *cobra.Command) (*app, error) {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(logger)

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", "path", cfg.DatabasePath())

	client := lark.NewClient(
		lark.WithBaseURL(cfg.Lark.BaseURL),
		lark.WithAuthorizeURL(cfg.Lark.AuthorizeURL),
		lark.WithHTTPClient(&http.Client{Timeout: cfg.Lark.RequestTimeout.Std()}),
		lark.WithLogger(logger),
	)
	var tokens submit.TokenIssuer = client
	if cfg.Lark.TokenCache {
		tokens = lark.NewTokenCache(client)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		lark:     client,
		tokens:   tokens,
		sessions: session.NewStore(db),
		defaults: config.ConnectionFromEnv(),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// connection is the environment defaults with the saved override applied.
func (a *app) connection(ctx context.Context) (config.Connection, error) {
	return a.sessions.Connection(ctx, a.defaults)
}

// requireSession returns the logged-in user.
func (a *app) requireSession(ctx context.Context) (*session.Session, error) {
	sess, err := a.sessions.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w; run `projectreg login` first", err)
	}
	return sess, nil
}

// orchestrator builds the submitter. cal may be nil.
func (a *app) orchestrator(cal *google.CalendarClient) *submit.Orchestrator {
	opts := []submit.Option{
		submit.WithJournal(a.db),
		submit.WithLogger(a.logger),
		submit.WithRequestTimeout(a.cfg.Lark.RequestTimeout.Std()),
	}
	if cal != nil {
		opts = append(opts, submit.WithMirror(cal))
	}
	return submit.New(a.tokens, a.lark, opts...)
}

// calendarClient returns the Google calendar mirror, or nil when it is
// disabled or cannot be set up. Setup failures are logged only.
func (a *app) calendarClient(ctx context.Context) *google.CalendarClient {
	if !a.cfg.Calendar.Enabled {
		return nil
	}
	cal, err := a.openCalendar(ctx)
	if err != nil {
		a.logger.Warn("calendar mirror disabled", "calendar", a.cfg.Calendar.Name, "error", err)
		return nil
	}
	return cal
}

func (a *app) openCalendar(ctx context.Context) (*google.CalendarClient, error) {
	gcfg, err := auth.GoogleConfig(a.cfg.CalendarCredentialsPath(), auth.CalendarScopes...)
	if err != nil {
		return nil, err
	}
	hc, err := auth.GoogleClient(ctx, gcfg, a.cfg.CalendarTokenPath(), a.logger)
	if err != nil {
		return nil, err
	}
	cal, err := google.NewClient(ctx, a.cfg.Calendar.Name, a.db, time.Local, a.logger, option.WithHTTPClient(hc))
	if err != nil {
		return nil, err
	}
	cal.WatchPayments(a.db)
	return cal, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

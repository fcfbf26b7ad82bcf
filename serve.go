package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/config"
	"github.com/harrisonrobin/projectreg/pkg/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP backend for the browser form",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	a.logger.Info("connection defaults",
		"app_id", a.defaults.AppID,
		"app_secret", config.Mask(a.defaults.AppSecret),
		"app_token", a.defaults.AppToken,
		"project_table", a.defaults.ProjectTableID,
		"schedule_table", a.defaults.ScheduleTableID,
	)

	cal := a.calendarClient(ctx)
	handler := server.New(server.Deps{
		Auth:           a.lark,
		Schema:         a.lark,
		Sessions:       a.sessions,
		Submitter:      a.orchestrator(cal),
		History:        a.db,
		Defaults:       a.defaults,
		PublicURL:      a.cfg.Server.PublicURL,
		RequestTimeout: a.cfg.Lark.RequestTimeout.Std(),
		Logger:         a.logger,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: a.cfg.Server.WriteTimeout.Std(),
	}

	var wg sync.WaitGroup
	if cal != nil && a.cfg.Calendar.SweepInterval > 0 {
		startWorker(ctx, &wg, a.logger, "payment-sweep", func(ctx context.Context) {
			sweepLoop(ctx, a.logger, cal, a.cfg.Calendar.SweepInterval.Std())
		})
	}

	go func() {
		a.logger.Info("server starting", "address", addr, "public_url", a.cfg.Server.PublicURL)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	wg.Wait()

	a.logger.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker that stops with ctx.
func startWorker(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("worker started", "worker", name)
		fn(ctx)
		logger.Info("worker stopped", "worker", name)
	}()
}

type overdueSweeper interface {
	SweepOverduePayments(ctx context.Context, now time.Time) (int, error)
}

// sweepLoop flags overdue payments once at start and then every interval.
func sweepLoop(ctx context.Context, logger *slog.Logger, s overdueSweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := s.SweepOverduePayments(ctx, time.Now())
		if err != nil {
			logger.Warn("payment sweep failed", "error", err)
		} else if n > 0 {
			logger.Info("payment sweep", "marked", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cfhttp "github.com/Strob0t/CredForge/internal/adapter/http"
	cfotel "github.com/Strob0t/CredForge/internal/adapter/otel"
	"github.com/Strob0t/CredForge/internal/config"
	"github.com/Strob0t/CredForge/internal/domain/provider"
	"github.com/Strob0t/CredForge/internal/logger"
	"github.com/Strob0t/CredForge/internal/middleware"
	"github.com/Strob0t/CredForge/internal/service"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		err = runAdmin(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"hosted_providers", len(cfg.Hosting.Providers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	shutdownOTEL, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Error("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure + services ---
	a, err := newApp(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer a.close()

	// Drop L1 entries invalidated on other nodes.
	stopInvalidation, err := service.NewInvalidationSubscriber(a.queue, a.cache, a.nodeID).Start(ctx)
	if err != nil {
		return fmt.Errorf("invalidation subscriber: %w", err)
	}
	defer stopInvalidation()

	go reloadSecretsOnHangup(ctx, a)

	// --- HTTP ---
	handlers := &cfhttp.Handlers{
		Providers: a.providers,
		Filter:    provider.Filter{Include: cfg.Filter.Include, Exclude: cfg.Filter.Exclude},
		Limits:    &cfg.Limits,
	}

	r := chi.NewRouter()

	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	cfhttp.MountHealth(r, a.ready)
	cfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "node_id", a.nodeID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := a.queue.Drain(); err != nil {
		slog.Warn("nats drain failed", "error", err)
	}
	return nil
}

// reloadSecretsOnHangup re-reads hosted provider secrets on SIGHUP.
func reloadSecretsOnHangup(ctx context.Context, a *app) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			change, err := a.vault.Reload()
			if err != nil {
				slog.Error("secrets reload failed", "error", err)
				continue
			}
			if change.Empty() {
				slog.Info("secrets reloaded, nothing changed")
				continue
			}
			slog.Info("secrets reloaded",
				"generation", a.vault.Generation(),
				"added", change.Added,
				"removed", change.Removed,
				"updated", change.Updated,
			)
		}
	}
}

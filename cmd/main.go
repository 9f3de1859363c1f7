// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventcore/events-api/internal/config"
	"github.com/eventcore/events-api/internal/database"
	"github.com/eventcore/events-api/internal/engine"
	"github.com/eventcore/events-api/internal/handler"
	"github.com/eventcore/events-api/internal/service"
	"github.com/eventcore/events-api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx := context.Background()

	// ── 1. Connect to PostgreSQL and migrate ─────────────────────────────
	if err := database.Migrate(cfg); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}
	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		log.Error("database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("connected to postgres", "host", cfg.DBHost, "db", cfg.DBName)

	// ── 2. Wire up layers ────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	st := store.NewPG(pool, store.Tables{
		Users:         cfg.UsersTable,
		Events:        cfg.EventsTable,
		Registrations: cfg.RegistrationsTable,
	}, cfg.StoreOpTimeout)

	userSvc := service.NewUserService(st)
	eventSvc := service.NewEventService(st)
	eng := engine.New(st, log, engine.NewMetrics(registry)).
		WithBudget(cfg.EngineRetries, cfg.EngineOpTimeout)

	h := handler.New(userSvc, eventSvc, eng, log)
	router := h.Routes(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// ── 3. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

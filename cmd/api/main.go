package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragguard/internal/app"
	"ragguard/internal/config"
	"ragguard/internal/http"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API retrieves evidence for a question from web search, a vector store
// and a knowledge graph, and decides whether it is good enough to answer from.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: ragguard API
//   description: |
//     Request-scoped retrieval, fusion, reranking and gating.
//     Every request runs under a time budget and always returns a gate decision.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	for _, w := range cfg.Warnings {
		slog.Warn("Configuration value ignored", "detail", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to close backends", "error", err)
		}
	}()

	// Create router with dependencies
	deps := &http.Deps{
		Engine:    a.Engine,
		MaxBudget: 4 * cfg.Budget,
		Checks:    a.Checks,
		Gatherer:  a.Registry,
	}
	router := http.NewRouter(deps)

	// Start API server
	addr := ":" + cfg.APIPort
	srv := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", addr)
	slog.Debug("Pipeline configuration",
		"budget_ms", cfg.Budget.Milliseconds(),
		"fusion", cfg.FusionMode,
		"trusted_domains", cfg.TrustedDomains,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed to start: %v", err)
	}
	slog.Info("API server stopped")
}

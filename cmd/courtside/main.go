package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/courtside/internal/config"
	"github.com/dukerupert/courtside/internal/database"
	"github.com/dukerupert/courtside/internal/email"
	"github.com/dukerupert/courtside/internal/janitor"
	"github.com/dukerupert/courtside/internal/logging"
	"github.com/dukerupert/courtside/internal/server"
	"github.com/dukerupert/courtside/internal/sports"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.EphemeralSecret {
		logger.Warn("COURTSIDE_SESSION_SECRET not set; flags cookies will not survive a restart")
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	catalog, err := sports.Default()
	if cfg.SportsFile != "" {
		catalog, err = sports.Load(cfg.SportsFile)
	}
	if err != nil {
		slog.Error("failed to load sports catalog", "error", err)
		os.Exit(1)
	}

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.EmailFrom)
	if !emailClient.Configured() {
		logger.Info("email not configured; password reset and share links are disabled")
	}
	if !cfg.OAuth.Enabled() {
		logger.Info("federated sign-in not configured")
	}

	srv, err := server.New(db, cfg, catalog, emailClient, logger)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	// Websocket feeds are long-lived, so there is no Read/WriteTimeout.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	jan := janitor.New(clockwork.NewRealClock(), cfg.CleanupInterval, logger.With("component", "janitor"), srv.CleanupTasks()...)
	go jan.Run(cleanupCtx)

	go func() {
		slog.Info("courtside starting", "addr", ":"+cfg.Port, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

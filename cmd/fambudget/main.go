package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fambudget/internal/auth"
	"fambudget/internal/backend"
	"fambudget/internal/budget"
	"fambudget/internal/config"
	apphttp "fambudget/internal/http"
	applog "fambudget/internal/log"
	"fambudget/internal/prefs"
	"fambudget/internal/presence"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(slog.LevelInfo)
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Data backend
	be, err := backend.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer be.Cleanup()
	store := be.Store

	if be.Listen != nil {
		g.Go(func() error {
			err := be.Listen(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// Auth and persisted local state
	provider := auth.NewLocalProvider(store, cfg.JWTSecret)
	provider.SetTokenTTL(cfg.SessionTTL)

	prefsFile := prefs.NewFile(cfg.DataDir)
	initial, err := prefsFile.Load()
	if err != nil {
		logger.Warn("Could not load persisted state, starting fresh", "error", err)
	}

	budgetStore := budget.New(store, provider, prefsFile, initial, logger)
	defer budgetStore.Close()

	// Resume the previous session and budget, then start the presence
	// heartbeat for the resumed profile.
	var tracker *presence.Tracker
	if initial.SessionToken != "" {
		user, err := provider.Resume(ctx, initial.SessionToken)
		if err != nil {
			logger.Warn("Session resume failed", "error", err)
		} else if initial.BudgetID != "" {
			if err := budgetStore.SetActiveBudget(ctx, initial.BudgetID); err != nil {
				logger.Warn("Could not restore active budget", "budget_id", initial.BudgetID, "error", err)
			} else if profile := budgetStore.CurrentProfile(); profile != nil {
				tracker = presence.New(store, initial.BudgetID, profile.ID, user.UID, "desktop", cfg.PresenceInterval, logger)
				tracker.Start(ctx)
				defer tracker.Stop()
			}
		}
	}

	// HTTP server
	srv := apphttp.NewServer(":"+cfg.Port, be.Pinger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g.Go(func() error {
		logger.Info("Starting fambudget server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

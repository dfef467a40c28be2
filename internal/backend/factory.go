// Package backend builds the document store selected by configuration,
// so the entrypoint stays free of backend-specific wiring.
package backend

import (
	"context"
	"fmt"

	"fambudget/internal/amqp"
	"fambudget/internal/config"
	"fambudget/internal/docstore"
	"fambudget/internal/docstore/memory"
	applog "fambudget/internal/log"
	"fambudget/internal/storage"
)

// Type identifies a document store implementation.
type Type string

const (
	MemoryBackend Type = "memory"
	SQLiteBackend Type = "sqlite"
)

// IsValid reports whether the type names a known backend.
func (t Type) IsValid() bool {
	return t == MemoryBackend || t == SQLiteBackend
}

// Pinger is the readiness probe every backend provides.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result bundles a built backend with its optional extras. Listen is
// non-nil when broker notifications are enabled and must run in its own
// goroutine; Cleanup is always safe to call.
type Result struct {
	Store   docstore.Store
	Pinger  Pinger
	Listen  func(ctx context.Context) error
	Cleanup func()
}

// New builds the backend named by cfg.DataBackend.
func New(cfg *config.Config, logger *applog.Logger) (*Result, error) {
	t := Type(cfg.DataBackend)
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	switch t {
	case SQLiteBackend:
		return newSQLiteBackend(cfg, logger)
	default:
		return newMemoryBackend(logger)
	}
}

func newSQLiteBackend(cfg *config.Config, logger *applog.Logger) (*Result, error) {
	// AMQP client (optional)
	var (
		amqpClient *amqp.Client
		notifier   storage.Notifier
	)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
		} else {
			amqpClient = client
			notifier = client
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath, notifier, logger)
	if err != nil {
		if amqpClient != nil {
			amqpClient.Close()
		}
		return nil, fmt.Errorf("initialize SQLite store: %w", err)
	}

	logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	result := &Result{
		Store:  store,
		Pinger: store,
		Cleanup: func() {
			store.Close()
			if amqpClient != nil {
				amqpClient.Close()
			}
		},
	}
	if amqpClient != nil {
		result.Listen = func(ctx context.Context) error {
			return store.ListenChanges(ctx, amqpClient)
		}
	}
	return result, nil
}

func newMemoryBackend(logger *applog.Logger) (*Result, error) {
	store := memory.New()
	logger.Info("Initialized memory backend")
	return &Result{
		Store:   store,
		Pinger:  store,
		Cleanup: func() {},
	}, nil
}

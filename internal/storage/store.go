// Package storage is the SQLite-backed document store. Documents are rows
// keyed by (collection, id) with a JSON payload, so the schema never
// changes when the document shapes do. Local writes fan out snapshots to
// in-process subscribers and, when a notifier is attached, to other
// processes through the message broker.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fambudget/internal/amqp"
	"fambudget/internal/docstore"
	applog "fambudget/internal/log"

	_ "modernc.org/sqlite"
)

// Notifier publishes cross-process change notifications. The AMQP client
// satisfies it.
type Notifier interface {
	PublishCollectionChanged(ctx context.Context, collection string) error
}

// Consumer receives cross-process change notifications. The AMQP client
// satisfies it.
type Consumer interface {
	ConsumeCollectionChanged(ctx context.Context, handler func(msg *amqp.CollectionChangedMessage) error) error
}

type subscriber struct {
	collection string
	onSnapshot docstore.SnapshotFunc
	onError    docstore.ErrorFunc
	closed     atomic.Bool
}

// SQLiteStore implements docstore.Store on a single SQLite file.
type SQLiteStore struct {
	db       *sql.DB
	log      *applog.Logger
	notifier Notifier

	mu   sync.Mutex
	subs []*subscriber
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// runs migrations. A nil notifier disables cross-process notifications.
func NewSQLiteStore(dbPath string, notifier Notifier, logger *applog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{
		db:       db,
		log:      logger.WithComponent(applog.ComponentStorage),
		notifier: notifier,
	}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT id, data, created_at, updated_at FROM documents
		 WHERE collection = ? ORDER BY created_at, id`,
		collection)
}

func (s *SQLiteStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	data, err := marshalFields(fields)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		collection, id, data, now, now)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	s.notify(ctx, collection)
	return id, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	data, err := marshalFields(fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, data, now, now)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	s.notify(ctx, collection)
	return nil
}

// Update merges the given fields into the document at the top level.
// Nested values are replaced wholesale.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	var merged map[string]any
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		return fmt.Errorf("parse stored document: %w", err)
	}
	patch, err := marshalFields(fields)
	if err != nil {
		return err
	}
	var patchMap map[string]any
	if err := json.Unmarshal([]byte(patch), &patchMap); err != nil {
		return fmt.Errorf("parse patch: %w", err)
	}
	for k, v := range patchMap {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(data), now, collection, id); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	s.notify(ctx, collection)
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.notify(ctx, collection)
	return nil
}

func (s *SQLiteStore) QueryEqual(ctx context.Context, collection, field, value string) ([]docstore.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT id, data, created_at, updated_at FROM documents
		 WHERE collection = ? AND json_extract(data, '$.' || ?) = ?
		 ORDER BY created_at, id`,
		collection, field, value)
}

// Subscribe delivers the current snapshot synchronously, then a fresh
// snapshot after every local write to the collection and after every
// broker notification routed through NotifyCollection.
func (s *SQLiteStore) Subscribe(collection string, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) docstore.UnsubscribeFunc {
	sub := &subscriber{collection: collection, onSnapshot: onSnapshot, onError: onError}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	docs, err := s.List(context.Background(), collection)
	if err != nil {
		if onError != nil {
			onError(err)
		}
	} else {
		onSnapshot(docs)
	}

	return func() {
		sub.closed.Store(true)
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, candidate := range s.subs {
			if candidate == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// NotifyCollection re-reads a collection and fans it out to local
// subscribers. The broker listener calls it when another process writes.
func (s *SQLiteStore) NotifyCollection(ctx context.Context, collection string) {
	s.fanOut(ctx, collection)
}

// ListenChanges consumes broker notifications until the context ends.
// Intended to run in its own goroutine.
func (s *SQLiteStore) ListenChanges(ctx context.Context, consumer Consumer) error {
	return consumer.ConsumeCollectionChanged(ctx, func(msg *amqp.CollectionChangedMessage) error {
		s.NotifyCollection(ctx, msg.Collection)
		return nil
	})
}

// notify runs after a local write: local fan-out plus a best-effort
// broker publish. A broker failure never fails the write.
func (s *SQLiteStore) notify(ctx context.Context, collection string) {
	s.fanOut(ctx, collection)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishCollectionChanged(ctx, collection); err != nil {
		s.log.Warn("publish change notification", "collection", collection, "error", err)
	}
}

func (s *SQLiteStore) fanOut(ctx context.Context, collection string) {
	s.mu.Lock()
	targets := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	docs, err := s.List(ctx, collection)
	if err != nil {
		for _, sub := range targets {
			if !sub.closed.Load() && sub.onError != nil {
				sub.onError(err)
			}
		}
		return
	}
	for _, sub := range targets {
		if sub.closed.Load() {
			continue
		}
		sub.onSnapshot(docs)
	}
}

func (s *SQLiteStore) queryDocuments(ctx context.Context, query string, args ...any) ([]docstore.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]docstore.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (docstore.Document, error) {
	var (
		doc                  docstore.Document
		raw                  string
		createdAt, updatedAt string
	)
	if err := row.Scan(&doc.ID, &raw, &createdAt, &updatedAt); err != nil {
		return docstore.Document{}, err
	}
	if err := json.Unmarshal([]byte(raw), &doc.Fields); err != nil {
		return docstore.Document{}, fmt.Errorf("parse document data: %w", err)
	}
	var err error
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return docstore.Document{}, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return docstore.Document{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return doc, nil
}

func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(data), nil
}

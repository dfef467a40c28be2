package storage

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"fambudget/internal/docstore"
	applog "fambudget/internal/log"
)

type recordingNotifier struct {
	published []string
}

func (n *recordingNotifier) PublishCollectionChanged(_ context.Context, collection string) error {
	n.published = append(n.published, collection)
	return nil
}

func newTestStore(t *testing.T, notifier Notifier) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), notifier, applog.New(slog.LevelError))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddGetRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	id, err := s.Add(ctx, "budgets", map[string]any{"code": "ABCD", "currency": "PLN"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	doc, err := s.Get(ctx, "budgets", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.ID != id {
		t.Errorf("ID = %q, want %q", doc.ID, id)
	}
	if doc.Fields["code"] != "ABCD" {
		t.Errorf("code = %v", doc.Fields["code"])
	}
	if doc.CreatedAt.IsZero() || doc.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set: %+v", doc)
	}

	if _, err := s.Get(ctx, "budgets", "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("missing doc: %v", err)
	}
}

func TestListOrderedByCreation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Add(ctx, "budgets/B1/operations", map[string]any{"n": i})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		ids = append(ids, id)
	}

	docs, err := s.List(ctx, "budgets/B1/operations")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("listed %d docs, want 3", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if docs[i].CreatedAt.Before(docs[i-1].CreatedAt) {
			t.Fatalf("docs not ordered by created_at")
		}
	}

	// Sibling collections stay separate.
	other, err := s.List(ctx, "budgets/B2/operations")
	if err != nil {
		t.Fatalf("List sibling: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("sibling collection leaked %d docs", len(other))
	}
	_ = ids
}

func TestSetPreservesCreatedAt(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	id, err := s.Add(ctx, "budgets", map[string]any{"code": "OLD1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	created := mustGet(t, s, "budgets", id).CreatedAt

	if err := s.Set(ctx, "budgets", id, map[string]any{"code": "NEW1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	doc := mustGet(t, s, "budgets", id)
	if doc.Fields["code"] != "NEW1" {
		t.Errorf("code = %v after Set", doc.Fields["code"])
	}
	if !doc.CreatedAt.Equal(created) {
		t.Errorf("Set changed created_at: %v != %v", doc.CreatedAt, created)
	}

	// Set on a new id creates the document.
	if err := s.Set(ctx, "budgets", "fixed-id", map[string]any{"code": "FIX1"}); err != nil {
		t.Fatalf("Set new: %v", err)
	}
	if mustGet(t, s, "budgets", "fixed-id").Fields["code"] != "FIX1" {
		t.Errorf("Set did not create document")
	}
}

func TestUpdateMergesTopLevel(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	id, err := s.Add(ctx, "budgets", map[string]any{"code": "ABCD", "currency": "PLN"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Update(ctx, "budgets", id, map[string]any{"code": "WXYZ"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc := mustGet(t, s, "budgets", id)
	if doc.Fields["code"] != "WXYZ" {
		t.Errorf("code = %v", doc.Fields["code"])
	}
	if doc.Fields["currency"] != "PLN" {
		t.Errorf("merge dropped sibling field: %v", doc.Fields)
	}

	if err := s.Update(ctx, "budgets", "missing", map[string]any{"code": "X"}); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("update missing: %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	id, err := s.Add(ctx, "budgets", map[string]any{"code": "ABCD"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Delete(ctx, "budgets", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "budgets", id); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("doc survived delete: %v", err)
	}
	if err := s.Delete(ctx, "budgets", id); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestQueryEqual(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	want, err := s.Add(ctx, "budgets", map[string]any{"code": "FAM123"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, "budgets", map[string]any{"code": "OTHER1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	docs, err := s.QueryEqual(ctx, "budgets", "code", "FAM123")
	if err != nil {
		t.Fatalf("QueryEqual: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != want {
		t.Fatalf("QueryEqual = %+v, want single doc %s", docs, want)
	}

	none, err := s.QueryEqual(ctx, "budgets", "code", "NOSUCH")
	if err != nil {
		t.Fatalf("QueryEqual miss: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("unexpected matches: %+v", none)
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	var snapshots [][]docstore.Document
	unsub := s.Subscribe("budgets/B1/goals", func(docs []docstore.Document) {
		snapshots = append(snapshots, docs)
	}, nil)

	if len(snapshots) != 1 || len(snapshots[0]) != 0 {
		t.Fatalf("no initial empty snapshot: %+v", snapshots)
	}

	if _, err := s.Add(ctx, "budgets/B1/goals", map[string]any{"name": "Vacation"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(snapshots) != 2 || len(snapshots[1]) != 1 {
		t.Fatalf("write not delivered: %d snapshots", len(snapshots))
	}

	// Writes to other collections are not delivered.
	if _, err := s.Add(ctx, "budgets/B1/operations", map[string]any{"type": "income"}); err != nil {
		t.Fatalf("Add other: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("foreign collection delivered")
	}

	unsub()
	if _, err := s.Add(ctx, "budgets/B1/goals", map[string]any{"name": "Car"}); err != nil {
		t.Fatalf("Add after unsub: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("unsubscribed callback still delivered")
	}
}

func TestNotifyCollectionRefreshesSubscribers(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	count := 0
	s.Subscribe("budgets", func([]docstore.Document) { count++ }, nil)
	s.NotifyCollection(ctx, "budgets")
	if count != 2 {
		t.Fatalf("snapshots = %d, want initial + notified", count)
	}
}

func TestWritesPublishNotifications(t *testing.T) {
	n := &recordingNotifier{}
	s := newTestStore(t, n)
	ctx := context.Background()

	id, err := s.Add(ctx, "budgets", map[string]any{"code": "ABCD"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Update(ctx, "budgets", id, map[string]any{"code": "WXYZ"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Delete(ctx, "budgets", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(n.published) != 3 {
		t.Fatalf("published %d notifications, want 3: %v", len(n.published), n.published)
	}
	for _, collection := range n.published {
		if collection != "budgets" {
			t.Fatalf("published wrong collection %q", collection)
		}
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t, nil)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func mustGet(t *testing.T, s *SQLiteStore, collection, id string) docstore.Document {
	t.Helper()
	doc, err := s.Get(context.Background(), collection, id)
	if err != nil {
		t.Fatalf("Get %s/%s: %v", collection, id, err)
	}
	return doc
}

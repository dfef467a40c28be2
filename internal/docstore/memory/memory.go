// Package memory is the in-process document store: the default backend for
// local development and the fake the tests run against.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fambudget/internal/docstore"
)

type subscriber struct {
	collection string
	onSnapshot docstore.SnapshotFunc
	closed     atomic.Bool
}

type Store struct {
	mu   sync.Mutex
	cols map[string]map[string]docstore.Document
	subs []*subscriber
	now  func() time.Time
}

func New() *Store {
	return &Store{
		cols: make(map[string]map[string]docstore.Document),
		now:  time.Now,
	}
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.cols[collection][id]
	if !ok {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return cloneDoc(doc), nil
}

func (s *Store) List(_ context.Context, collection string) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(collection), nil
}

func (s *Store) Add(_ context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.putLocked(collection, id, fields)
	s.mu.Unlock()
	s.notify(collection)
	return id, nil
}

func (s *Store) Set(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	s.putLocked(collection, id, fields)
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *Store) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	doc, ok := s.cols[collection][id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	merged := cloneFields(doc.Fields)
	for k, v := range cloneFields(fields) {
		merged[k] = v
	}
	doc.Fields = merged
	doc.UpdatedAt = s.now()
	s.cols[collection][id] = doc
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	if col, ok := s.cols[collection]; ok {
		delete(col, id)
	}
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *Store) QueryEqual(_ context.Context, collection, field, value string) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []docstore.Document
	for _, doc := range s.snapshotLocked(collection) {
		if str, ok := doc.Fields[field].(string); ok && str == value {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Subscribe delivers the current snapshot synchronously, then a fresh
// snapshot after every mutation of the collection. The returned function
// marks the subscriber closed before removing it, so a notification racing
// the unsubscribe becomes a no-op.
func (s *Store) Subscribe(collection string, onSnapshot docstore.SnapshotFunc, _ docstore.ErrorFunc) docstore.UnsubscribeFunc {
	sub := &subscriber{collection: collection, onSnapshot: onSnapshot}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	initial := s.snapshotLocked(collection)
	s.mu.Unlock()

	onSnapshot(initial)

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

// Ping reports the store as reachable; it exists so the memory backend
// satisfies the same readiness check as the SQLite one.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) putLocked(collection, id string, fields map[string]any) {
	col, ok := s.cols[collection]
	if !ok {
		col = make(map[string]docstore.Document)
		s.cols[collection] = col
	}
	now := s.now()
	doc := docstore.Document{ID: id, CreatedAt: now, UpdatedAt: now, Fields: cloneFields(fields)}
	if prev, ok := col[id]; ok {
		doc.CreatedAt = prev.CreatedAt
	}
	col[id] = doc
}

func (s *Store) snapshotLocked(collection string) []docstore.Document {
	col := s.cols[collection]
	out := make([]docstore.Document, 0, len(col))
	for _, doc := range col {
		out = append(out, cloneDoc(doc))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) notify(collection string) {
	s.mu.Lock()
	snapshot := s.snapshotLocked(collection)
	targets := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		if sub.closed.Load() {
			continue
		}
		sub.onSnapshot(snapshot)
	}
}

func cloneDoc(d docstore.Document) docstore.Document {
	d.Fields = cloneFields(d.Fields)
	return d
}

// cloneFields deep-copies via JSON so callers never alias stored state.
func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		cp := make(map[string]any, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		return cp
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Package docstore defines the port for the remote document source: named
// collections of JSON documents with server-assigned audit timestamps,
// field-equality queries and change subscriptions. A subscription always
// delivers the full current snapshot of its collection, never deltas, and
// each collection's snapshots arrive in write order; nothing is guaranteed
// across collections.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no document exists at the path.
var ErrNotFound = errors.New("document not found")

// Document is one stored record. Fields carries the JSON object body;
// CreatedAt/UpdatedAt are assigned by the store, not the caller.
type Document struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

type (
	// SnapshotFunc receives the full collection contents after a change,
	// ordered by creation time.
	SnapshotFunc func(docs []Document)

	ErrorFunc func(err error)

	// UnsubscribeFunc tears the subscription down. After it returns the
	// callbacks will not be invoked again.
	UnsubscribeFunc func()
)

// Store is the consumed contract of the remote data source. Collection
// names are opaque slash-separated paths ("budgets/<id>/operations").
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	// Add stores a new document under a generated id and returns the id.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Set writes a document under a caller-chosen id, replacing any
	// previous contents.
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Update merges the given top-level fields into an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// QueryEqual returns documents whose field equals the given string.
	QueryEqual(ctx context.Context, collection, field, value string) ([]Document, error)
	// Subscribe registers for snapshots of one collection. The current
	// snapshot is delivered immediately, then again after every change.
	Subscribe(collection string, onSnapshot SnapshotFunc, onError ErrorFunc) UnsubscribeFunc
}

// Encode converts a domain value into a document field map via its JSON
// representation.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Decode unmarshals a document's fields into a domain value.
func Decode(d Document, v any) error {
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

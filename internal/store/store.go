// README: DocumentStore abstraction consumed by the dispatch engine: reads,
// field updates, filtered queries, live change feeds and single-store
// transactions. Two independent instances exist at runtime (passenger-side
// and driver-side); a transaction never spans both.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get (and Tx.Get) for a missing document.
var ErrNotFound = errors.New("document not found")

// Doc is a document snapshot.
type Doc struct {
	ID   string
	Data map[string]any
}

// ChangeKind classifies a change-feed event.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Change is a single change-feed event. Data is the document body at the
// time of the change (the last known body for Removed events). Delivery is
// at-least-once and carries no cross-feed ordering guarantee.
type Change struct {
	Kind ChangeKind
	ID   string
	Data map[string]any
}

// Query filters a collection on one field. The zero value matches every
// document. Only membership filters are needed by the engine.
type Query struct {
	Field string
	In    []string
}

func (q Query) matches(data map[string]any) bool {
	if q.Field == "" {
		return true
	}
	s, _ := data[q.Field].(string)
	for _, v := range q.In {
		if s == v {
			return true
		}
	}
	return false
}

// Tx is the handle passed to a transaction function. Reads are snapshot
// reads; writes are staged and applied atomically iff the function returns
// nil. A Tx is only valid for the duration of the function.
type Tx interface {
	Get(col, id string) (Doc, error)
	Update(col, id string, fields map[string]any) error
	Create(col string, data map[string]any) (string, error)
}

// Store is one document store. Implementations: Firestore (production) and
// Memory (tests, local development).
type Store interface {
	// Get returns a document snapshot, or ErrNotFound.
	Get(ctx context.Context, col, id string) (Doc, error)

	// Update merges fields into a document. Values may include the Delete
	// and ServerTimestamp sentinels.
	Update(ctx context.Context, col, id string, fields map[string]any) error

	// Query returns all documents currently matching q.
	Query(ctx context.Context, col string, q Query) ([]Doc, error)

	// Subscribe delivers the current matching documents as Added events and
	// then streams subsequent changes to fn until ctx is cancelled. fn is
	// invoked sequentially per subscription. A nil return means the context
	// ended; any other error means the feed could not be (re)established.
	Subscribe(ctx context.Context, col string, q Query, fn func(Change)) error

	// RunTransaction runs fn with snapshot-read, conditional-write atomicity
	// within this store.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// sentinel marks special field values translated by each implementation.
type sentinel int

const (
	// Delete removes the field from the document.
	Delete sentinel = iota + 1
	// ServerTimestamp stores the server-side write time.
	ServerTimestamp
)

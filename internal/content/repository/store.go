package repository

import (
	"context"
	"errors"

	"github.com/higai/site-admin/internal/content"
)

var (
	ErrNotFound = errors.New("document not found")
)

// Snapshot is one delivery of the live feed: every document currently in the
// collection, or Err when the subscription failed. A failed subscription
// delivers exactly one Err snapshot and then its channel is closed.
type Snapshot struct {
	Collection string
	Documents  []content.Document
	Err        error
}

// Store is the document store contract the admin console relies on.
// Writes are atomic per document; Update only touches the given fields.
type Store interface {
	// Subscribe delivers a full snapshot now and after every change to the
	// collection until ctx is cancelled, then closes the channel. Slow readers
	// only ever see the latest snapshot.
	Subscribe(ctx context.Context, collection string) <-chan Snapshot
	List(ctx context.Context, collection string) ([]content.Document, error)
	Get(ctx context.Context, collection, id string) (content.Document, error)
	// Create stores fields under a new id and assigns submittedAt.
	Create(ctx context.Context, collection string, fields map[string]any) (content.Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// offer replaces whatever snapshot is still buffered in ch with s.
// ch must have capacity 1 and a single sender at a time.
func offer(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

package store

import (
	"context"

	"github.com/shelfline/shelfline/internal/catalog"
)

// Store is the durable local table of product records. It exclusively owns
// the canonical copy of every record; all mutations persist synchronously
// before returning success.
type Store interface {
	// FetchAll returns every stored record in insertion order.
	FetchAll(ctx context.Context) ([]catalog.ProductRecord, error)

	// Search returns records whose name contains the substring,
	// case-insensitively. An empty result is a valid outcome, not an error.
	Search(ctx context.Context, substring string) ([]catalog.ProductRecord, error)

	// Get returns the record with the given id, or catalog.ErrNotFound.
	Get(ctx context.Context, id string) (*catalog.ProductRecord, error)

	// Upsert inserts or replaces a record by id. Fails with
	// catalog.ErrValidation when the trimmed name is empty.
	Upsert(ctx context.Context, rec catalog.ProductRecord) error

	// Replace atomically removes oldID and upserts rec, used to swap a
	// locally minted id for the remote-assigned one.
	Replace(ctx context.Context, oldID string, rec catalog.ProductRecord) error

	// UpdateMany applies the sync state, and optionally a favorite value, to
	// every matched record. All-or-nothing; catalog.ErrNotFound when the id
	// set matches zero records.
	UpdateMany(ctx context.Context, ids []string, state catalog.SyncState, favorite *bool) error

	// Delete physically removes a record, or fails with catalog.ErrNotFound.
	Delete(ctx context.Context, id string) error

	// PurgeSynced removes every record in the synced state. Pending local
	// mutations survive; used when a first-page fetch replaces the cache.
	PurgeSynced(ctx context.Context) error

	// Pending returns every record carrying an unconfirmed local mutation.
	Pending(ctx context.Context) ([]catalog.ProductRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	Close() error
}

// Package remote implements the product API client for the payment
// platform backing the catalog. All transport and HTTP failures are
// classified into the closed catalog error taxonomy here, at the boundary,
// so callers only ever match classified errors.
package remote

import (
	"context"

	"github.com/shelfline/shelfline/internal/catalog"
)

// Client is the remote capability consumed by the reconciler. Each operation
// is a single network round trip.
type Client interface {
	// ListProducts returns one page in remote insertion order, newest first.
	// An empty afterCursor requests the first page.
	ListProducts(ctx context.Context, afterCursor string) (*catalog.Page, error)

	// SearchProducts searches by name with remote-defined semantics. Freshly
	// created records may not appear immediately; callers must tolerate
	// eventual visibility.
	SearchProducts(ctx context.Context, name, afterCursor string) (*catalog.Page, error)

	// CreateProduct submits a record and returns the remote-assigned
	// canonical copy. Validation failures are caught locally and never
	// consume a round trip.
	CreateProduct(ctx context.Context, rec catalog.ProductRecord) (*catalog.ProductRecord, error)

	// UpdateFavorite flips the favorite flag and returns the updated record.
	UpdateFavorite(ctx context.Context, id string, favorite bool) (*catalog.ProductRecord, error)

	// DeleteProduct deletes by id and returns the deleted id. A confirmed
	// call that the remote reports as not deleted fails with
	// catalog.ErrDeleteFailed.
	DeleteProduct(ctx context.Context, id string) (string, error)

	// UploadImage uploads raw image bytes and returns a file handle. The
	// handle is only usable once LinkImage has succeeded as well.
	UploadImage(ctx context.Context, data []byte, filename string) (string, error)

	// LinkImage exchanges a file handle for a publicly reachable URL.
	LinkImage(ctx context.Context, fileHandle string) (string, error)

	// Ping checks reachability of the remote service.
	Ping(ctx context.Context) error
}

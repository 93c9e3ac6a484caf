// Package reconciler merges remote-fetched pages and locally pending
// mutations into a single consistent record set. It owns the pagination
// cursor and pushes optimistic edits to the remote service, leaving failed
// pushes tagged in the store for a later explicit flush.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shelfline/shelfline/internal/catalog"
	"github.com/shelfline/shelfline/internal/connectivity"
	"github.com/shelfline/shelfline/internal/remote"
	"github.com/shelfline/shelfline/internal/store"
)

// SyncStats summarizes one flush of pending mutations.
type SyncStats struct {
	Created  int
	Updated  int
	Deleted  int
	Failed   int
	Duration time.Duration
}

// Reconciler orchestrates pagination and optimistic pushes between the
// record store and the remote client. Only the reconciler writes to the
// store after initial hydration.
type Reconciler struct {
	store  store.Store
	remote remote.Client
	net    connectivity.Source

	// mu guards the pagination cursor.
	mu      sync.Mutex
	cursor  string
	hasMore bool

	locks *keyedLocks
}

// New creates a Reconciler. The connectivity source gates remote pushes;
// when offline, mutations stay tagged in the store.
func New(s store.Store, r remote.Client, net connectivity.Source) *Reconciler {
	return &Reconciler{
		store:  s,
		remote: r,
		net:    net,
		locks:  newKeyedLocks(),
	}
}

// HasMore reports whether further pages remain after the most recently
// applied one.
func (r *Reconciler) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMore
}

// setCursor remembers the next cursor from the most recently applied page.
// An empty page forces hasMore false no matter what the remote reported, so
// a trailing empty page can never cause an infinite load loop.
func (r *Reconciler) setCursor(page *catalog.Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(page.Records) == 0 {
		r.hasMore = false
		return
	}
	r.cursor = page.LastID()
	r.hasMore = page.HasMore
}

// LoadFirstPage fetches page one and replaces the synced portion of the
// cache with it. Records carrying pending local mutations survive and shadow
// their remote counterparts until pushed.
func (r *Reconciler) LoadFirstPage(ctx context.Context) error {
	page, err := r.remote.ListProducts(ctx, "")
	if err != nil {
		return fmt.Errorf("load first page: %w", err)
	}

	if err := r.store.PurgeSynced(ctx); err != nil {
		return err
	}
	if err := r.applyPage(ctx, page); err != nil {
		return err
	}
	r.setCursor(page)

	slog.Debug("first page applied",
		"component", "reconciler",
		"records", len(page.Records),
		"has_more", page.HasMore,
	)
	return nil
}

// LoadNextPage fetches the page after the remembered cursor and appends it.
// A no-op when no more pages remain.
func (r *Reconciler) LoadNextPage(ctx context.Context) error {
	r.mu.Lock()
	cursor, hasMore := r.cursor, r.hasMore
	r.mu.Unlock()

	if !hasMore {
		return nil
	}

	page, err := r.remote.ListProducts(ctx, cursor)
	if err != nil {
		return fmt.Errorf("load next page: %w", err)
	}

	if err := r.applyPage(ctx, page); err != nil {
		return err
	}
	r.setCursor(page)
	return nil
}

// applyPage upserts page records as synced. A record whose id is locally
// pending is skipped: the local mutation wins until it has been pushed.
func (r *Reconciler) applyPage(ctx context.Context, page *catalog.Page) error {
	for _, rec := range page.Records {
		existing, err := r.store.Get(ctx, rec.ID)
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return err
		}
		if existing != nil && existing.Pending() {
			continue
		}
		if existing != nil {
			rec.CreatedAt = existing.CreatedAt
		}
		if err := r.store.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// CreateProduct validates the draft, stores it as pending, and pushes it
// immediately when online. A failed push leaves the pending record intact
// and surfaces the error; nothing is silently lost.
func (r *Reconciler) CreateProduct(ctx context.Context, draft catalog.Draft) error {
	rec := draft.Record(time.Now().UTC())
	if err := rec.Validate(); err != nil {
		return err
	}

	unlock := r.locks.lock(rec.ID)
	defer unlock()

	if err := r.store.Upsert(ctx, rec); err != nil {
		return err
	}

	if !r.net.Online() {
		slog.Info("product stored for later sync",
			"component", "reconciler",
			"id", rec.ID,
		)
		return nil
	}

	return r.pushCreateLocked(ctx, rec)
}

// pushCreateLocked submits a pending-create record and swaps the temporary
// id for the remote-assigned one. Caller holds the id lock.
func (r *Reconciler) pushCreateLocked(ctx context.Context, rec catalog.ProductRecord) error {
	confirmed, err := r.remote.CreateProduct(ctx, rec)
	if err != nil {
		return fmt.Errorf("push create %q: %w", rec.ID, err)
	}

	// Deleted underneath while the call was in flight: discard the result.
	if _, err := r.store.Get(ctx, rec.ID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil
		}
		return err
	}

	confirmed.CreatedAt = rec.CreatedAt
	return r.store.Replace(ctx, rec.ID, *confirmed)
}

// ToggleFavorite flips the favorite flag of a record. The store is marked
// first so the edit survives a failed push.
func (r *Reconciler) ToggleFavorite(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.SyncState == catalog.StatePendingDelete {
		return fmt.Errorf("toggle favorite %q: %w", id, catalog.ErrNotFound)
	}

	return r.setFavoriteLocked(ctx, *rec, !rec.IsFavorite)
}

// SetFavorite sets the favorite flag to an explicit target value.
func (r *Reconciler) SetFavorite(ctx context.Context, id string, favorite bool) error {
	unlock := r.locks.lock(id)
	defer unlock()

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.SyncState == catalog.StatePendingDelete {
		return fmt.Errorf("set favorite %q: %w", id, catalog.ErrNotFound)
	}
	if rec.IsFavorite == favorite && rec.SyncState == catalog.StateSynced {
		return nil
	}

	return r.setFavoriteLocked(ctx, *rec, favorite)
}

// setFavoriteLocked marks the record pending-update (a still-unsynced create
// keeps its pending-create state; the flag rides along the eventual create)
// and pushes when the record has a remote id and the service is reachable.
func (r *Reconciler) setFavoriteLocked(ctx context.Context, rec catalog.ProductRecord, favorite bool) error {
	state := catalog.StatePendingUpdate
	if rec.SyncState == catalog.StatePendingCreate {
		state = catalog.StatePendingCreate
	}
	if err := r.store.UpdateMany(ctx, []string{rec.ID}, state, &favorite); err != nil {
		return err
	}

	if catalog.IsLocalID(rec.ID) || !r.net.Online() {
		return nil
	}

	return r.pushFavoriteLocked(ctx, rec.ID, favorite)
}

// pushFavoriteLocked submits the favorite flag for a record with a remote
// id. Caller holds the id lock.
func (r *Reconciler) pushFavoriteLocked(ctx context.Context, id string, favorite bool) error {
	confirmed, err := r.remote.UpdateFavorite(ctx, id, favorite)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFoundRemote) {
			// Gone remotely; drop the local copy rather than retrying a
			// write against a deleted product.
			if derr := r.store.Delete(ctx, id); derr != nil && !errors.Is(derr, catalog.ErrNotFound) {
				return derr
			}
		}
		return fmt.Errorf("push favorite %q: %w", id, err)
	}

	// Deleted underneath while the call was in flight: discard the result.
	existing, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil
		}
		return err
	}

	confirmed.CreatedAt = existing.CreatedAt
	return r.store.Upsert(ctx, *confirmed)
}

// DeleteProduct deletes a record. A never-synced record is removed locally
// with no network call; anything else is soft-marked pending-delete first so
// the intent survives being offline or a failed push.
func (r *Reconciler) DeleteProduct(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if rec.SyncState == catalog.StatePendingCreate {
		return r.store.Delete(ctx, id)
	}

	if err := r.store.UpdateMany(ctx, []string{id}, catalog.StatePendingDelete, nil); err != nil {
		return err
	}

	if !r.net.Online() {
		return nil
	}

	return r.pushDeleteLocked(ctx, id)
}

// pushDeleteLocked submits a delete and physically removes the record once
// the remote confirms, or when the remote no longer knows the id at all.
// Caller holds the id lock.
func (r *Reconciler) pushDeleteLocked(ctx context.Context, id string) error {
	if _, err := r.remote.DeleteProduct(ctx, id); err != nil {
		if !errors.Is(err, catalog.ErrNotFoundRemote) {
			return fmt.Errorf("push delete %q: %w", id, err)
		}
	}

	if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return err
	}
	return nil
}

// FlushPending resubmits every pending mutation in submission order. There is
// no automatic retry beyond this explicit flush: records that fail stay
// tagged in the store for the next one.
func (r *Reconciler) FlushPending(ctx context.Context) (SyncStats, error) {
	start := time.Now()
	stats := SyncStats{}

	pending, err := r.store.Pending(ctx)
	if err != nil {
		return stats, err
	}

	var errs []error
	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}
		state := rec.SyncState
		if err := r.flushOne(ctx, rec.ID); err != nil {
			stats.Failed++
			errs = append(errs, err)
			continue
		}
		switch state {
		case catalog.StatePendingCreate:
			stats.Created++
		case catalog.StatePendingUpdate:
			stats.Updated++
		case catalog.StatePendingDelete:
			stats.Deleted++
		}
	}

	stats.Duration = time.Since(start)
	if len(pending) > 0 {
		slog.Info("pending mutations flushed",
			"component", "reconciler",
			"created", stats.Created,
			"updated", stats.Updated,
			"deleted", stats.Deleted,
			"failed", stats.Failed,
			"duration_ms", stats.Duration.Milliseconds(),
		)
	}
	return stats, errors.Join(errs...)
}

// flushOne pushes a single pending record by id, re-reading it under the id
// lock since it may have changed since the pending snapshot was taken.
func (r *Reconciler) flushOne(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil // Deleted since the snapshot; nothing to push.
		}
		return err
	}

	switch rec.SyncState {
	case catalog.StatePendingCreate:
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("flush create %q: %w", rec.ID, err)
		}
		return r.pushCreateLocked(ctx, *rec)
	case catalog.StatePendingUpdate:
		return r.pushFavoriteLocked(ctx, rec.ID, rec.IsFavorite)
	case catalog.StatePendingDelete:
		return r.pushDeleteLocked(ctx, rec.ID)
	default:
		return nil
	}
}

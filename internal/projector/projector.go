// Package projector derives the view state consumed by the UI boundary
// from the local record store, and translates UI commands into
// reconciler operations.
package projector

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shelfline/shelfline/internal/catalog"
)

// SectionType identifies one of the two catalog sections.
type SectionType string

const (
	SectionFavorite   SectionType = "favorite"
	SectionUnfavorite SectionType = "unfavorite"
)

// ParseSectionType validates a section identifier from the outside.
func ParseSectionType(s string) (SectionType, error) {
	switch SectionType(s) {
	case SectionFavorite, SectionUnfavorite:
		return SectionType(s), nil
	default:
		return "", errors.New("unknown section: " + s)
	}
}

// Section is an ordered slice of records sharing a favorite flag.
type Section struct {
	Type    SectionType             `json:"type"`
	Records []catalog.ProductRecord `json:"records"`
}

// State is the complete view snapshot published to subscribers. An empty
// catalog with no ErrorMessage is a valid "no results" state, distinct
// from a failed load.
type State struct {
	Sections     []Section `json:"sections"`
	IsLoading    bool      `json:"isLoading"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	HasMoreData  bool      `json:"hasMoreData"`
	Query        string    `json:"query,omitempty"`
}

// Syncer is the command surface the projector drives.
// Implemented by reconciler.Reconciler.
type Syncer interface {
	LoadFirstPage(ctx context.Context) error
	LoadNextPage(ctx context.Context) error
	CreateProduct(ctx context.Context, draft catalog.Draft) error
	ToggleFavorite(ctx context.Context, id string) error
	SetFavorite(ctx context.Context, id string, favorite bool) error
	DeleteProduct(ctx context.Context, id string) error
	HasMore() bool
}

// Reader is the read-only slice of the record store the projector needs.
type Reader interface {
	FetchAll(ctx context.Context) ([]catalog.ProductRecord, error)
	Search(ctx context.Context, substring string) ([]catalog.ProductRecord, error)
}

// Projector owns the current State and republishes it after every
// command, success or failure. It never writes to the record store.
type Projector struct {
	syncer Syncer
	reader Reader

	mu    sync.Mutex
	state State
	subs  []chan State
}

func New(syncer Syncer, reader Reader) *Projector {
	return &Projector{
		syncer: syncer,
		reader: reader,
		state: State{
			Sections: emptySections(),
		},
	}
}

// Bootstrap derives the initial sections from whatever the local store
// already holds, so a restart surfaces the cached catalog before any
// command has run.
func (p *Projector) Bootstrap(ctx context.Context) State {
	return p.recompute(ctx, nil)
}

// Subscribe returns a channel receiving every published state snapshot.
// Slow subscribers miss intermediate snapshots rather than blocking
// command processing.
func (p *Projector) Subscribe() <-chan State {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan State, 8)
	p.subs = append(p.subs, ch)
	return ch
}

// State returns the current snapshot.
func (p *Projector) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LoadFirstPage refreshes the catalog from the first remote page.
func (p *Projector) LoadFirstPage(ctx context.Context) (State, error) {
	return p.run(ctx, p.syncer.LoadFirstPage)
}

// LoadNextPage appends the next remote page to the catalog.
func (p *Projector) LoadNextPage(ctx context.Context) (State, error) {
	return p.run(ctx, p.syncer.LoadNextPage)
}

// CreateProduct validates and stores a new product.
func (p *Projector) CreateProduct(ctx context.Context, draft catalog.Draft) (State, error) {
	return p.run(ctx, func(ctx context.Context) error {
		return p.syncer.CreateProduct(ctx, draft)
	})
}

// ToggleFavorite flips the favorite flag of a single record.
func (p *Projector) ToggleFavorite(ctx context.Context, id string) (State, error) {
	return p.run(ctx, func(ctx context.Context) error {
		return p.syncer.ToggleFavorite(ctx, id)
	})
}

// DeleteProduct removes a product.
func (p *Projector) DeleteProduct(ctx context.Context, id string) (State, error) {
	return p.run(ctx, func(ctx context.Context) error {
		return p.syncer.DeleteProduct(ctx, id)
	})
}

// BulkSetFavorite applies the target flag to every record that is in the
// named section right now, pending records included. The member set is
// snapshotted before the first mutation so records do not escape the
// bulk operation by switching sections mid-way.
func (p *Projector) BulkSetFavorite(ctx context.Context, section SectionType, target bool) (State, error) {
	return p.run(ctx, func(ctx context.Context) error {
		ids, err := p.sectionIDs(ctx, section)
		if err != nil {
			return err
		}

		var errs []error
		for _, id := range ids {
			if err := p.syncer.SetFavorite(ctx, id, target); err != nil {
				// A record deleted underneath the bulk operation is
				// not a failure of the operation itself.
				if errors.Is(err, catalog.ErrNotFound) {
					continue
				}
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Search narrows the visible catalog to records whose name contains the
// query. The remote catalog is untouched; this filters the local cache.
func (p *Projector) Search(ctx context.Context, query string) (State, error) {
	p.mu.Lock()
	p.state.Query = query
	p.mu.Unlock()
	return p.run(ctx, func(context.Context) error { return nil })
}

// ClearSearch restores the unfiltered catalog.
func (p *Projector) ClearSearch(ctx context.Context) (State, error) {
	return p.Search(ctx, "")
}

// run executes a command between two publishes: one entering the loading
// state, one with the recomputed sections and the command's outcome. The
// command's error is returned alongside the snapshot so callers can react
// to the failure class while subscribers already see the message.
func (p *Projector) run(ctx context.Context, cmd func(context.Context) error) (State, error) {
	p.setLoading(true)

	err := cmd(ctx)
	if err != nil {
		slog.Warn("catalog command failed",
			"component", "projector",
			"error", err,
		)
	}

	return p.recompute(ctx, err), err
}

func (p *Projector) setLoading(loading bool) {
	p.mu.Lock()
	p.state.IsLoading = loading
	p.state.ErrorMessage = ""
	snapshot := p.state
	subs := p.subs
	p.mu.Unlock()
	publish(subs, snapshot)
}

// recompute re-derives the sections from the current store snapshot and
// publishes the result. cmdErr, when non-nil, becomes the user-visible
// error message; the sections still reflect whatever state the store is
// in, so a partially applied change remains visible.
func (p *Projector) recompute(ctx context.Context, cmdErr error) State {
	p.mu.Lock()
	query := p.state.Query
	p.mu.Unlock()

	var records []catalog.ProductRecord
	var readErr error
	if query != "" {
		records, readErr = p.reader.Search(ctx, query)
	} else {
		records, readErr = p.reader.FetchAll(ctx)
	}

	if cmdErr == nil {
		cmdErr = readErr
	}

	p.mu.Lock()
	p.state.Sections = partition(records)
	p.state.IsLoading = false
	p.state.HasMoreData = p.syncer.HasMore()
	if cmdErr != nil {
		p.state.ErrorMessage = catalog.UserMessage(cmdErr)
	} else {
		p.state.ErrorMessage = ""
	}
	snapshot := p.state
	subs := p.subs
	p.mu.Unlock()

	publish(subs, snapshot)
	return snapshot
}

// sectionIDs snapshots the ids currently shown in a section.
func (p *Projector) sectionIDs(ctx context.Context, section SectionType) ([]string, error) {
	p.mu.Lock()
	query := p.state.Query
	p.mu.Unlock()

	var records []catalog.ProductRecord
	var err error
	if query != "" {
		records, err = p.reader.Search(ctx, query)
	} else {
		records, err = p.reader.FetchAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	want := section == SectionFavorite
	var ids []string
	for _, rec := range records {
		if rec.SyncState == catalog.StatePendingDelete {
			continue
		}
		if rec.IsFavorite == want {
			ids = append(ids, rec.ID)
		}
	}
	return ids, nil
}

// partition splits records into the favorite and unfavorite sections,
// preserving store order within each. Records awaiting a delete push are
// already gone from the user's point of view and are not shown.
func partition(records []catalog.ProductRecord) []Section {
	sections := emptySections()
	for _, rec := range records {
		if rec.SyncState == catalog.StatePendingDelete {
			continue
		}
		idx := 1
		if rec.IsFavorite {
			idx = 0
		}
		sections[idx].Records = append(sections[idx].Records, rec)
	}
	return sections
}

func emptySections() []Section {
	return []Section{
		{Type: SectionFavorite, Records: []catalog.ProductRecord{}},
		{Type: SectionUnfavorite, Records: []catalog.ProductRecord{}},
	}
}

func publish(subs []chan State, snapshot State) {
	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

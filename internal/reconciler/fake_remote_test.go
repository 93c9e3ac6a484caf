package reconciler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shelfline/shelfline/internal/catalog"
	"github.com/shelfline/shelfline/internal/remote"
)

// fakeRemote is an in-memory product service for reconciler tests.
type fakeRemote struct {
	mu       sync.Mutex
	records  []catalog.ProductRecord
	pageSize int
	seq      int
	err      error // forced failure for every operation when set

	// lieHasMore makes the service report has_more=true even on an empty
	// trailing page, mimicking a stale remote index.
	lieHasMore bool

	calls    map[string]int
	onDelete func() // invoked inside DeleteProduct while the call is in flight
}

var _ remote.Client = (*fakeRemote)(nil)

func newFakeRemote(pageSize int) *fakeRemote {
	return &fakeRemote{pageSize: pageSize, calls: make(map[string]int)}
}

func (f *fakeRemote) seed(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		f.seq++
		brand := "Acme"
		price := "50"
		discount := "10"
		f.records = append(f.records, catalog.ProductRecord{
			ID:        fmt.Sprintf("prod_%d", f.seq),
			Name:      name,
			BrandName: &brand,
			Price:     &price,
			Discount:  &discount,
			SyncState: catalog.StateSynced,
		})
	}
}

func (f *fakeRemote) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRemote) page(records []catalog.ProductRecord, afterCursor string) *catalog.Page {
	start := 0
	if afterCursor != "" {
		for i, rec := range records {
			if rec.ID == afterCursor {
				start = i + 1
				break
			}
		}
	}

	end := start + f.pageSize
	if end > len(records) {
		end = len(records)
	}

	page := &catalog.Page{HasMore: end < len(records)}
	for _, rec := range records[start:end] {
		page.Records = append(page.Records, rec)
	}
	if f.lieHasMore {
		page.HasMore = true
	}
	return page
}

func (f *fakeRemote) ListProducts(ctx context.Context, afterCursor string) (*catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListProducts"]++
	if f.err != nil {
		return nil, f.err
	}
	return f.page(f.records, afterCursor), nil
}

func (f *fakeRemote) SearchProducts(ctx context.Context, name, afterCursor string) (*catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SearchProducts"]++
	if f.err != nil {
		return nil, f.err
	}
	var matches []catalog.ProductRecord
	for _, rec := range f.records {
		if strings.Contains(strings.ToLower(rec.Name), strings.ToLower(name)) {
			matches = append(matches, rec)
		}
	}
	return f.page(matches, afterCursor), nil
}

func (f *fakeRemote) CreateProduct(ctx context.Context, rec catalog.ProductRecord) (*catalog.ProductRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateProduct"]++
	if f.err != nil {
		return nil, f.err
	}
	f.seq++
	rec.ID = fmt.Sprintf("prod_%d", f.seq)
	rec.SyncState = catalog.StateSynced
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeRemote) UpdateFavorite(ctx context.Context, id string, favorite bool) (*catalog.ProductRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdateFavorite"]++
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].IsFavorite = favorite
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, catalog.ErrNotFoundRemote
}

func (f *fakeRemote) DeleteProduct(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	f.calls["DeleteProduct"]++
	hook := f.onDelete
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for i := range f.records {
		if f.records[i].ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return id, nil
		}
	}
	return "", catalog.ErrNotFoundRemote
}

func (f *fakeRemote) UploadImage(ctx context.Context, data []byte, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UploadImage"]++
	if f.err != nil {
		return "", f.err
	}
	return "file_1", nil
}

func (f *fakeRemote) LinkImage(ctx context.Context, fileHandle string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["LinkImage"]++
	if f.err != nil {
		return "", f.err
	}
	return "https://files.example/" + fileHandle, nil
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

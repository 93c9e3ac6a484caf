package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SyncState tags a ProductRecord with its reconciliation status against the
// remote catalog service.
type SyncState string

const (
	StateSynced        SyncState = "synced"
	StatePendingCreate SyncState = "pending_create"
	StatePendingUpdate SyncState = "pending_update"
	StatePendingDelete SyncState = "pending_delete"
)

// LocalIDPrefix marks ids generated on-device before the remote service has
// assigned a canonical one. The prefix keeps locally minted ids out of the
// remote id namespace.
const LocalIDPrefix = "tmp_"

// NewLocalID returns a collision-resistant placeholder id for a record
// created before remote confirmation.
func NewLocalID() string {
	return LocalIDPrefix + ulid.Make().String()
}

// IsLocalID reports whether id was minted on-device by NewLocalID.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// ProductRecord is the unit of storage: one catalog product plus its
// synchronization state. The store owns the canonical copy; the reconciler
// works on transient copies and the projector only ever reads.
type ProductRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	BrandName  *string   `json:"brand_name,omitempty"`
	ImageURL   *string   `json:"image_url,omitempty"`
	IsFavorite bool      `json:"is_favorite"`
	Price      *string   `json:"price,omitempty"`
	Discount   *string   `json:"discount,omitempty"`
	SyncState  SyncState `json:"sync_state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Pending reports whether the record carries a local mutation that the remote
// service has not confirmed yet.
func (r ProductRecord) Pending() bool {
	return r.SyncState != StateSynced
}

// Draft is the raw user-entered form input for a new product. Optional fields
// arrive as strings; EmptyToNone is applied once here, at the form boundary,
// rather than scattered through callers.
type Draft struct {
	Name      string `json:"name"`
	BrandName string `json:"brand_name"`
	ImageURL  string `json:"image_url"`
	Price     string `json:"price"`
	Discount  string `json:"discount"`
}

// Record builds a pending-create ProductRecord from the draft with a locally
// minted id. The result still needs Validate before it may be submitted to
// the remote create operation.
func (d Draft) Record(now time.Time) ProductRecord {
	return ProductRecord{
		ID:         NewLocalID(),
		Name:       strings.TrimSpace(d.Name),
		BrandName:  EmptyToNone(d.BrandName),
		ImageURL:   EmptyToNone(d.ImageURL),
		Price:      EmptyToNone(d.Price),
		Discount:   EmptyToNone(d.Discount),
		SyncState:  StatePendingCreate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// EmptyToNone normalizes emptiness-as-absence: a blank (after trimming)
// string becomes nil.
func EmptyToNone(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Page is one remote list response: an ordered slice of records, whether more
// pages remain, and the id of the last record, used as the next cursor. Pages
// are consumed immediately by the reconciler and never persisted.
type Page struct {
	Records []ProductRecord `json:"records"`
	HasMore bool            `json:"has_more"`
}

// LastID returns the cursor for the following page, or "" for an empty page.
func (p Page) LastID() string {
	if len(p.Records) == 0 {
		return ""
	}
	return p.Records[len(p.Records)-1].ID
}

// MarshalJSON ensures a nil Records slice marshals as [] not null.
func (p Page) MarshalJSON() ([]byte, error) {
	if p.Records == nil {
		p.Records = []ProductRecord{}
	}
	type Alias Page
	return json.Marshal(Alias(p))
}

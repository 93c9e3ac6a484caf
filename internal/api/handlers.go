// Package api exposes the catalog over a local HTTP surface for the UI
// client: view-state snapshots, projector commands, and a sync trigger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shelfline/shelfline/internal/catalog"
	"github.com/shelfline/shelfline/internal/connectivity"
	"github.com/shelfline/shelfline/internal/projector"
	"github.com/shelfline/shelfline/internal/reconciler"
)

// Counter reports the size of the local record store.
type Counter interface {
	Count(ctx context.Context) (int64, error)
	Pending(ctx context.Context) ([]catalog.ProductRecord, error)
}

// Flusher pushes pending local mutations on demand.
type Flusher interface {
	FlushPending(ctx context.Context) (reconciler.SyncStats, error)
}

// Handler implements the API handlers
type Handler struct {
	projector *projector.Projector
	flusher   Flusher
	counter   Counter
	net       connectivity.Source
	apiKey    string
	version   string
	validate  *validator.Validate
}

// NewHandler creates a new Handler.
func NewHandler(p *projector.Projector, f Flusher, c Counter, net connectivity.Source, apiKey, version string) *Handler {
	return &Handler{
		projector: p,
		flusher:   f,
		counter:   c,
		net:       net,
		apiKey:    apiKey,
		version:   version,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthResponse is the GET /api/v1/health body.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Online       bool   `json:"online"`
	ProductCount int64  `json:"product_count"`
	PendingCount int    `json:"pending_count"`
}

// CreateProductRequest is the POST /api/v1/products body. Range checks on
// price and discount are repeated by the domain validator; the tags here
// reject malformed requests before a draft is ever built.
type CreateProductRequest struct {
	Name      string `json:"name" validate:"required"`
	BrandName string `json:"brand_name" validate:"required"`
	ImageURL  string `json:"image_url" validate:"omitempty,url"`
	Price     string `json:"price" validate:"required,number"`
	Discount  string `json:"discount" validate:"omitempty,number"`
}

// SyncResponse is the POST /api/v1/sync body.
type SyncResponse struct {
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Deleted    int    `json:"deleted"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Health returns the health status. Unauthenticated.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.counter.Count(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	pending, err := h.counter.Pending(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		Online:       h.net.Online(),
		ProductCount: count,
		PendingCount: len(pending),
	}

	writeJSON(w, resp)
}

// Catalog handles GET /api/v1/catalog
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.projector.State())
}

// Refresh handles POST /api/v1/catalog/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	state, _ := h.projector.LoadFirstPage(r.Context())
	writeJSON(w, state)
}

// LoadMore handles POST /api/v1/catalog/load-more
func (h *Handler) LoadMore(w http.ResponseWriter, r *http.Request) {
	state, _ := h.projector.LoadNextPage(r.Context())
	writeJSON(w, state)
}

// CreateProduct handles POST /api/v1/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", fieldErrors(err))
		return
	}

	state, err := h.projector.CreateProduct(r.Context(), catalog.Draft{
		Name:      req.Name,
		BrandName: req.BrandName,
		ImageURL:  req.ImageURL,
		Price:     req.Price,
		Discount:  req.Discount,
	})
	// Domain validation failures never stored anything; report them as
	// request errors. A failed remote push still returns the state: the
	// local change is persisted and tagged for a later sync.
	if err != nil && errors.Is(err, catalog.ErrValidation) {
		MapCatalogError(w, r, err)
		return
	}

	writeJSON(w, state)
}

// ToggleFavorite handles POST /api/v1/products/{id}/favorite
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := h.projector.ToggleFavorite(r.Context(), id)
	if err != nil && errors.Is(err, catalog.ErrNotFound) {
		MapCatalogError(w, r, err)
		return
	}

	writeJSON(w, state)
}

// DeleteProduct handles DELETE /api/v1/products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := h.projector.DeleteProduct(r.Context(), id)
	if err != nil && errors.Is(err, catalog.ErrNotFound) {
		MapCatalogError(w, r, err)
		return
	}

	writeJSON(w, state)
}

// BulkFavorite handles POST /api/v1/catalog/sections/{type}/favorite
func (h *Handler) BulkFavorite(w http.ResponseWriter, r *http.Request) {
	section, err := projector.ParseSectionType(chi.URLParam(r, "type"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// The favorite section empties into unfavorite and vice versa.
	target := section == projector.SectionUnfavorite
	state, _ := h.projector.BulkSetFavorite(r.Context(), section, target)
	writeJSON(w, state)
}

// Search handles GET /api/v1/catalog/search
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	var state projector.State
	if query == "" {
		state, _ = h.projector.ClearSearch(r.Context())
	} else {
		state, _ = h.projector.Search(r.Context(), query)
	}
	writeJSON(w, state)
}

// Sync handles POST /api/v1/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	stats, err := h.flusher.FlushPending(r.Context())

	resp := SyncResponse{
		Created:    stats.Created,
		Updated:    stats.Updated,
		Deleted:    stats.Deleted,
		Failed:     stats.Failed,
		DurationMS: stats.Duration.Milliseconds(),
	}
	if err != nil {
		resp.Error = catalog.UserMessage(err)
	}

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// fieldErrors flattens validator.ValidationErrors into the wire shape.
func fieldErrors(err error) []catalog.FieldError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []catalog.FieldError{{Field: "request", Message: err.Error()}}
	}

	out := make([]catalog.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, catalog.FieldError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		})
	}
	return out
}

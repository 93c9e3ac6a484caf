package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Get("/catalog", h.Catalog)
			r.Post("/catalog/refresh", h.Refresh)
			r.Post("/catalog/load-more", h.LoadMore)
			r.Get("/catalog/search", h.Search)
			r.Post("/catalog/sections/{type}/favorite", h.BulkFavorite)

			r.Post("/products", h.CreateProduct)
			r.Post("/products/{id}/favorite", h.ToggleFavorite)
			r.Delete("/products/{id}", h.DeleteProduct)

			r.Post("/sync", h.Sync)
		})
	})

	return r
}

package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the HTML profile pages
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/profile", func(r chi.Router) {
		r.Get("/addstock/{username}", h.HandleAddStockForm)
		r.Post("/addstock/{username}", h.HandleAddStock)
		r.Get("/delete/{username}", h.HandleDeleteForm)
		r.Post("/delete/{username}", h.HandleDelete)
		r.Get("/{username}", h.HandleProfile)
	})
}

// RegisterAPIRoutes registers the JSON portfolio API. Mount under /api.
func (h *Handler) RegisterAPIRoutes(r chi.Router) {
	r.Post("/users", h.HandleCreateUser)

	r.Route("/portfolio/{username}", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)
		r.Get("/summary", h.HandleGetSummary)
	})
}

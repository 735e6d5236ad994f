package inventory

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/levels", h.ListLevels)
	r.Get("/movements", h.ListMovements)
	r.Post("/adjustments", h.Adjust)
}

package purchasing

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/bills", h.List)
	r.Post("/bills", h.Create)
	r.Get("/bills/{id}", h.Get)
	r.Post("/bills/{id}/post", h.Post)
	r.Get("/posting-accounts", h.GetPostingConfig)
	r.Put("/posting-accounts", h.SetPostingConfig)
}

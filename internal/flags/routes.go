package flags

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes attaches the flags API under the router's current prefix.
// The evaluate route is declared before /{flagID} so the literal segment
// is not captured as a flag identifier. Optional middleware (rate limiting)
// guards the evaluation hot path only.
func (h *Handler) MountRoutes(r chi.Router, evalMiddleware ...func(http.Handler) http.Handler) {
	r.Route("/flags", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(evalMiddleware...)
			r.Get("/evaluate", h.Evaluate)
		})

		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{flagID}", h.Show)
		r.Patch("/{flagID}", h.Update)
		r.Patch("/{flagID}/toggle", h.Toggle)
		r.Delete("/{flagID}", h.Delete)

		r.Put("/{flagID}/users/{userID}", h.SetOverride)
		r.Delete("/{flagID}/users/{userID}", h.DeleteOverride)
		r.Get("/{flagID}/users", h.ListOverrides)
	})
}

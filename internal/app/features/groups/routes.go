// internal/app/features/groups/routes.go
package groups

import (
	"github.com/dalemusser/studyhub/internal/app/system/auth"
	"github.com/dalemusser/studyhub/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the groups API. Reads of the group list and a single group
// are public; everything else requires a signed-in user. postLimiter, when
// non-nil, throttles message posting per client IP.
func Routes(h *Handler, sm *auth.SessionManager, postLimiter *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ServeGroupsList)
	r.Get("/{id}", h.ServeGroup)

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Post("/", h.HandleCreateGroup)
		pr.Post("/{id}/join", h.HandleJoin)
		pr.Get("/{id}/messages", h.ServeMessages)
		pr.Get("/{id}/online", h.ServeOnline)

		pr.Group(func(mr chi.Router) {
			if postLimiter != nil {
				mr.Use(postLimiter.Middleware(TooManyMessages))
			}
			mr.Post("/{id}/messages", h.HandlePostMessage)
		})
	})

	return r
}

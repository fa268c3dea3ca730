package groups

import (
	"context"
	"net/http"

	"github.com/dalemusser/studyhub/internal/app/system/auth"
	"github.com/dalemusser/studyhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
)

type onlineResponse struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Users   []string `json:"users"`
}

// ServeOnline handles GET /groups/{id}/online: the user ids with a live
// socket in the group's room. Readers only.
func (h *Handler) ServeOnline(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)
	groupID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Chat.CheckRead(ctx, groupID, user.ID); err != nil {
		h.writeServiceError(w, r, err, defaultMessages)
		return
	}

	users := []string{}
	if h.Online != nil {
		var err error
		users, err = h.Online.Online(ctx, groupID)
		if err != nil {
			h.writeServiceError(w, r, err, defaultMessages)
			return
		}
	}
	writeJSON(w, http.StatusOK, onlineResponse{Success: true, Count: len(users), Users: users})
}

package groups

import (
	"context"
	"net/http"

	"github.com/dalemusser/studyhub/internal/app/system/auth"
	"github.com/dalemusser/studyhub/internal/app/system/groupchat"
	"github.com/dalemusser/studyhub/internal/app/system/timeouts"
	"github.com/dalemusser/studyhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

type groupsResponse struct {
	Success bool                   `json:"success"`
	Count   int                    `json:"count"`
	Groups  []models.EnrichedGroup `json:"groups"`
}

type groupDetailResponse struct {
	Success bool                 `json:"success"`
	Group   models.EnrichedGroup `json:"group"`
}

type groupResponse struct {
	Success bool         `json:"success"`
	Group   models.Group `json:"group"`
}

// ServeGroupsList handles GET /groups.
func (h *Handler) ServeGroupsList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	groups, err := h.Chat.ListGroups(ctx)
	if err != nil {
		h.writeServiceError(w, r, err, defaultMessages)
		return
	}
	writeJSON(w, http.StatusOK, groupsResponse{Success: true, Count: len(groups), Groups: groups})
}

// ServeGroup handles GET /groups/{id}.
func (h *Handler) ServeGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	g, err := h.Chat.GetGroup(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, defaultMessages)
		return
	}
	writeJSON(w, http.StatusOK, groupDetailResponse{Success: true, Group: g})
}

// HandleCreateGroup handles POST /groups with {name, description, privacy}.
func (h *Handler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)

	var in groupchat.CreateGroupInput
	if err := decodeBody(w, r, &in); err != nil {
		writeFailure(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	g, err := h.Chat.CreateGroup(ctx, user.ID, in)
	if err != nil {
		m := defaultMessages
		m.validation = "Name and description are required; privacy must be public or private"
		h.writeServiceError(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusCreated, groupResponse{Success: true, Group: g})
}

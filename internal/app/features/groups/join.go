package groups

import (
	"context"
	"net/http"

	"github.com/dalemusser/studyhub/internal/app/system/auth"
	"github.com/dalemusser/studyhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HandleJoin handles POST /groups/{id}/join. On success the group's live
// room is told about the new member.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)
	groupID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	g, err := h.Chat.JoinGroup(ctx, groupID, user.ID)
	if err != nil {
		h.writeServiceError(w, r, err, defaultMessages)
		return
	}

	if h.Live != nil {
		if _, err := h.Live.BroadcastMemberJoined(g.ID.Hex(), user.ID, user.Name); err != nil {
			h.Log.Warn("memberJoined broadcast failed", zap.String("group_id", groupID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, groupResponse{Success: true, Group: g})
}

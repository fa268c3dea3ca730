package groups

import (
	"context"
	"net/http"

	"github.com/dalemusser/studyhub/internal/app/system/auth"
	"github.com/dalemusser/studyhub/internal/app/system/groupchat"
	"github.com/dalemusser/studyhub/internal/app/system/paging"
	"github.com/dalemusser/studyhub/internal/app/system/timeouts"
	"github.com/dalemusser/studyhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

type messagesResponse struct {
	Success  bool                     `json:"success"`
	Count    int                      `json:"count"`
	Messages []models.EnrichedMessage `json:"messages"`
}

type messageResponse struct {
	Success bool                   `json:"success"`
	Message models.EnrichedMessage `json:"message"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

// ServeMessages handles GET /groups/{id}/messages?limit&before&before_id.
// Results are in ascending timestamp order.
func (h *Handler) ServeMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)

	p, err := paging.Parse(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	q := groupchat.PageQuery{Limit: p.Limit, Before: p.Before, BeforeID: p.BeforeID}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	msgs, err := h.Chat.ListMessages(ctx, chi.URLParam(r, "id"), user.ID, q)
	if err != nil {
		m := defaultMessages
		m.forbidden = "You must be a member to view messages"
		h.writeServiceError(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Success: true, Count: len(msgs), Messages: msgs})
}

// HandlePostMessage handles POST /groups/{id}/messages with {content}.
// The message is persisted only; clients push it to the room themselves
// over the socket.
func (h *Handler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)

	var body postMessageRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	msg, err := h.Chat.PostMessage(ctx, chi.URLParam(r, "id"), user.ID, user.Name, body.Content)
	if err != nil {
		m := defaultMessages
		m.validation = "Message content is required"
		m.forbidden = "You must be a member to send messages"
		h.writeServiceError(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Success: true, Message: msg})
}

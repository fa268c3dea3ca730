package groups

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/studyhub/internal/app/system/groupchat"
	"github.com/dalemusser/studyhub/internal/app/system/limits"
	"go.uber.org/zap"
)

// failure is the body of every error response.
type failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, failure{Success: false, Message: msg})
}

// messages maps service errors to client-facing text for one endpoint.
type messages struct {
	notFound   string
	forbidden  string
	validation string
	conflict   string
}

var defaultMessages = messages{
	notFound:   "Group not found",
	forbidden:  "You are not allowed to access this group",
	validation: "Invalid request",
	conflict:   "Already a member",
}

// writeServiceError maps a groupchat error to its status. Unknown errors are
// logged and reported as 500 without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, m messages) {
	switch {
	case errors.Is(err, groupchat.ErrValidation):
		writeFailure(w, http.StatusBadRequest, m.validation)
	case errors.Is(err, groupchat.ErrNotFound):
		writeFailure(w, http.StatusNotFound, m.notFound)
	case errors.Is(err, groupchat.ErrForbidden):
		writeFailure(w, http.StatusForbidden, m.forbidden)
	case errors.Is(err, groupchat.ErrConflict):
		writeFailure(w, http.StatusConflict, m.conflict)
	default:
		h.Log.Error("groups request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
	}
}

// TooManyMessages is the rate-limit response for message posting.
func TooManyMessages(w http.ResponseWriter, _ *http.Request) {
	writeFailure(w, http.StatusTooManyRequests, "Message rate limit exceeded. Please try again later.")
}

// TooManyRequests is the general API rate-limit response.
func TooManyRequests(w http.ResponseWriter, _ *http.Request) {
	writeFailure(w, http.StatusTooManyRequests, "Too many requests from this IP, please try again later.")
}

// decodeBody reads a JSON request body of at most limits.MaxJSONBody into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}

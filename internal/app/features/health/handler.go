package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dalemusser/studyhub/internal/app/system/timeouts"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client *mongo.Client
	Redis  redis.Cmdable // nil when presence is not mirrored to Redis
	Log    *zap.Logger
}

// NewHandler constructs a health Handler. rdb may be nil.
func NewHandler(client *mongo.Client, rdb redis.Cmdable, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		Redis:  rdb,
		Log:    logger,
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Redis     string    `json:"redis,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Serve handles GET /health. It always answers 200 while the process is up
// and reports backend reachability informationally:
//
//	{ "status":"ok", "timestamp":"…", "database":"connected", "redis":"connected" }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Database:  "connected",
	}
	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		resp.Database = "disconnected"
	}
	if h.Redis != nil {
		resp.Redis = "connected"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			resp.Redis = "disconnected"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ServeDB handles GET /health/db.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected" }
//
// On DB failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "error":"…" }
func (h *Handler) ServeDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Database:  "connected",
	}
	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

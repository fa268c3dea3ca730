// internal/app/features/groups/handler.go
package groups

import (
	"context"

	"github.com/dalemusser/studyhub/internal/app/system/groupchat"
	"go.uber.org/zap"
)

// Broadcaster pushes membership events to live socket rooms.
type Broadcaster interface {
	BroadcastMemberJoined(groupID, userID, userName string) (int, error)
}

// OnlineSource reports which users currently have a socket in a group room.
type OnlineSource interface {
	Online(ctx context.Context, groupID string) ([]string, error)
}

// Handler is the shared dependency container for the groups API.
// Live and Online may be nil when the realtime layer is not wired.
type Handler struct {
	Chat   *groupchat.Service
	Live   Broadcaster
	Online OnlineSource
	Log    *zap.Logger
}

// NewHandler constructs a groups Handler. It is called from the bootstrap
// BuildHandler function once the stores and realtime router exist.
func NewHandler(chat *groupchat.Service, live Broadcaster, online OnlineSource, logger *zap.Logger) *Handler {
	return &Handler{
		Chat:   chat,
		Live:   live,
		Online: online,
		Log:    logger,
	}
}

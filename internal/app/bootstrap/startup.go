// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	groupmessagestore "github.com/dalemusser/studyhub/internal/app/store/groupmessages"
	groupstore "github.com/dalemusser/studyhub/internal/app/store/groups"
	userstore "github.com/dalemusser/studyhub/internal/app/store/users"
	"github.com/dalemusser/studyhub/internal/app/system/groupchat"
	"github.com/dalemusser/studyhub/internal/app/system/ratelimit"
	"github.com/dalemusser/studyhub/internal/app/system/realtime"
	"github.com/dalemusser/studyhub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It starts
// the realtime router (and the Redis presence worker, if Redis is configured)
// and the rate limiters, and builds the group chat service that both the
// HTTP API and the room gate use.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	live := deps.Live
	db := deps.MongoDatabase
	live.Chat = groupchat.New(
		groupstore.New(db),
		groupmessagestore.New(db),
		userstore.New(db),
		groupchat.NewClock(nil),
		logger.Named("groupchat"),
	)

	live.Registry = realtime.NewRegistry()

	opts := realtime.Options{
		SendBuffer: appCfg.RealtimeSendBuffer,
		Logger:     logger.Named("realtime"),
	}
	if deps.Redis != nil {
		live.Presence = realtime.NewRedisPresence(deps.Redis, appCfg.PresenceTTL, logger.Named("presence"))
		opts.Presence = live.Presence
	}
	if appCfg.RealtimeRoomGuard {
		opts.Gate = realtime.GateFunc(live.Chat.CheckRead)
	}
	live.Router = realtime.NewRouter(live.Registry, opts)

	if live.Presence != nil {
		live.Refresh = workers.NewPresenceRefresh(live.Router, live.Presence, logger.Named("presence"), appCfg.PresenceTTL/3)
		live.Refresh.Start()
	}

	proxies, err := ratelimit.ParseProxies(appCfg.TrustedProxies)
	if err != nil {
		return err
	}
	live.MessageLimiter = ratelimit.New(appCfg.MessageRateLimit, appCfg.MessageRateWindow).TrustProxies(proxies)
	live.APILimiter = ratelimit.New(appCfg.APIRateLimit, appCfg.APIRateWindow).TrustProxies(proxies)

	logger.Info("realtime router started",
		zap.Bool("room_guard", appCfg.RealtimeRoomGuard),
		zap.Bool("redis_presence", live.Presence != nil),
		zap.Int("trusted_proxies", len(proxies)),
		zap.Int("send_buffer", appCfg.RealtimeSendBuffer))
	return nil
}

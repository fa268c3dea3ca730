// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	groupsfeature "github.com/dalemusser/studyhub/internal/app/features/groups"
	healthfeature "github.com/dalemusser/studyhub/internal/app/features/health"
	socketfeature "github.com/dalemusser/studyhub/internal/app/features/socket"
	userstore "github.com/dalemusser/studyhub/internal/app/store/users"
	"github.com/dalemusser/studyhub/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed.
//
// studyhub resolves identity on every request (bearer token or session
// cookie), then mounts:
//   - /health, /metrics: operational endpoints
//   - /api/groups: the group and message JSON API, behind the API rate limit
//   - /socket: the realtime websocket
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	if appCfg.JWTSecret != "" {
		sessionMgr.SetTokenVerifier(auth.NewTokenVerifier(appCfg.JWTSecret, appCfg.JWTIssuer))
	}

	// Fresh display names and avatars on each request.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(userstore.New(deps.MongoDatabase)))

	live := deps.Live

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators.
	// The interface must stay nil when Redis is not configured.
	var rdb redis.Cmdable
	if deps.Redis != nil {
		rdb = deps.Redis
	}
	healthHandler := healthfeature.NewHandler(deps.MongoClient, rdb, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", promhttp.Handler())

	// Presence across processes when Redis is available; this process only
	// otherwise.
	var online groupsfeature.OnlineSource = live.Router
	if live.Presence != nil {
		online = live.Presence
	}
	groupsHandler := groupsfeature.NewHandler(live.Chat, live.Router, online, logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(live.APILimiter.Middleware(groupsfeature.TooManyRequests))
		api.Mount("/groups", groupsfeature.Routes(groupsHandler, sessionMgr, live.MessageLimiter))
	})

	socketHandler := socketfeature.NewHandler(live.Router, appCfg.AllowedOrigins, appCfg.RealtimeRoomGuard, logger.Named("socket"))
	r.Mount("/socket", socketfeature.Routes(socketHandler))

	return r, nil
}

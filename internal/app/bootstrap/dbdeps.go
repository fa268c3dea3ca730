// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/studyhub/internal/app/system/groupchat"
	"github.com/dalemusser/studyhub/internal/app/system/ratelimit"
	"github.com/dalemusser/studyhub/internal/app/system/realtime"
	"github.com/dalemusser/studyhub/internal/app/system/workers"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
// Redis is nil when no redis_addr is configured. Live is allocated by
// ConnectDB and filled in by Startup.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Redis         *redis.Client

	Live *LiveDeps
}

// LiveDeps holds the long-lived services built at Startup and shared between
// BuildHandler and Shutdown.
type LiveDeps struct {
	Chat *groupchat.Service

	Registry *realtime.Registry
	Router   *realtime.Router
	Presence *realtime.RedisPresence  // nil without Redis
	Refresh  *workers.PresenceRefresh // nil without Redis

	MessageLimiter *ratelimit.Limiter
	APILimiter     *ratelimit.Limiter
}

// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/studyhub/internal/app/system/ratelimit"
	"github.com/dalemusser/studyhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

const devSessionKey = "dev-only-change-me-please-0123456789ABCDEF"

// appConfigKeys defines the configuration keys for studyhub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: STUDYHUB_MONGO_URI, STUDYHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "studyhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: devSessionKey, Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "studyhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	// Bearer tokens
	{Name: "jwt_secret", Default: "", Desc: "HMAC secret for bearer tokens (blank disables token auth)"},
	{Name: "jwt_issuer", Default: "studyhub", Desc: "Expected token issuer"},

	// Redis presence
	{Name: "redis_addr", Default: "", Desc: "Redis address for live presence (blank disables)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "presence_ttl", Default: "10m", Desc: "How long a presence entry counts as online after its last write"},

	// Realtime
	{Name: "realtime_room_guard", Default: false, Desc: "Check group read access before a socket joins a group room"},
	{Name: "realtime_send_buffer", Default: 256, Desc: "Outbound frames buffered per socket before it is dropped"},
	{Name: "allowed_origins", Default: "", Desc: "Comma-separated origins allowed to open /socket ('*' for any, blank for same-origin)"},

	// Rate limits
	{Name: "message_rate_limit", Default: 30, Desc: "Messages a client IP may post per window"},
	{Name: "message_rate_window", Default: "5m", Desc: "Message rate limit window"},
	{Name: "api_rate_limit", Default: 100, Desc: "API requests a client IP may make per window"},
	{Name: "api_rate_window", Default: "15m", Desc: "API rate limit window"},
	{Name: "trusted_proxies", Default: "", Desc: "Comma-separated proxy IPs/CIDRs whose X-Forwarded-For and X-Real-IP are trusted (blank trusts none)"},

	// Timeouts
	{Name: "timeout_ping", Default: "2s", Desc: "Timeout for health pings"},
	{Name: "timeout_short", Default: "5s", Desc: "Timeout for single-document operations"},
	{Name: "timeout_medium", Default: "10s", Desc: "Timeout for queries with enrichment"},
	{Name: "timeout_long", Default: "30s", Desc: "Timeout for list queries"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STUDYHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "STUDYHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),

		JWTSecret: appValues.String("jwt_secret"),
		JWTIssuer: appValues.String("jwt_issuer"),

		RedisAddr:     appValues.String("redis_addr"),
		RedisPassword: appValues.String("redis_password"),
		RedisDB:       appValues.Int("redis_db"),
		PresenceTTL:   appValues.Duration("presence_ttl", 10*time.Minute),

		RealtimeRoomGuard:  appValues.Bool("realtime_room_guard"),
		RealtimeSendBuffer: appValues.Int("realtime_send_buffer"),
		AllowedOrigins:     splitList(appValues.String("allowed_origins")),

		MessageRateLimit:  appValues.Int("message_rate_limit"),
		MessageRateWindow: appValues.Duration("message_rate_window", 5*time.Minute),
		APIRateLimit:      appValues.Int("api_rate_limit"),
		APIRateWindow:     appValues.Duration("api_rate_window", 15*time.Minute),
		TrustedProxies:    splitList(appValues.String("trusted_proxies")),

		TimeoutPing:   appValues.Duration("timeout_ping", timeouts.DefaultPing),
		TimeoutShort:  appValues.Duration("timeout_short", timeouts.DefaultShort),
		TimeoutMedium: appValues.Duration("timeout_medium", timeouts.DefaultMedium),
		TimeoutLong:   appValues.Duration("timeout_long", timeouts.DefaultLong),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation and applies the
// configured timeouts.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := validateAppConfig(coreCfg.Env, appCfg); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	timeouts.Configure(timeouts.Config{
		Ping:   appCfg.TimeoutPing,
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
	})

	if !appCfg.RealtimeRoomGuard {
		logger.Warn("realtime room guard disabled: any socket may join any group room")
	}
	return nil
}

func validateAppConfig(env string, appCfg AppConfig) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if strings.TrimSpace(appCfg.MongoDatabase) == "" {
		return errors.New("mongo_database is required")
	}
	if appCfg.MongoMinPoolSize > appCfg.MongoMaxPoolSize {
		return fmt.Errorf("mongo_min_pool_size (%d) exceeds mongo_max_pool_size (%d)",
			appCfg.MongoMinPoolSize, appCfg.MongoMaxPoolSize)
	}
	if env == "prod" && appCfg.SessionKey == devSessionKey {
		return errors.New("session_key must be changed in production")
	}
	if appCfg.JWTSecret != "" && len(appCfg.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if appCfg.RedisDB < 0 {
		return errors.New("redis_db must not be negative")
	}
	if appCfg.RedisAddr != "" && appCfg.PresenceTTL < 3*time.Second {
		return errors.New("presence_ttl must be at least 3s")
	}
	if appCfg.RealtimeSendBuffer <= 0 {
		return errors.New("realtime_send_buffer must be positive")
	}
	if appCfg.MessageRateLimit <= 0 || appCfg.MessageRateWindow <= 0 {
		return errors.New("message_rate_limit and message_rate_window must be positive")
	}
	if appCfg.APIRateLimit <= 0 || appCfg.APIRateWindow <= 0 {
		return errors.New("api_rate_limit and api_rate_window must be positive")
	}
	if _, err := ratelimit.ParseProxies(appCfg.TrustedProxies); err != nil {
		return err
	}
	return nil
}

// splitList parses a comma-separated config value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

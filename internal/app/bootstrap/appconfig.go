// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging, CORS, body limits); AppConfig
// carries everything specific to studyhub.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie identity (written by the identity service, read here)
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: studyhub-session)
	SessionDomain string // Cookie domain (blank means current host)

	// Bearer-token identity. Blank JWTSecret disables token auth.
	JWTSecret string
	JWTIssuer string

	// Redis presence mirror. Blank RedisAddr disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	// Realtime
	RealtimeRoomGuard  bool     // consult group access before a socket joins a room
	RealtimeSendBuffer int      // per-connection outbound frame buffer
	AllowedOrigins     []string // browser origins allowed to open /socket

	// Rate limits
	MessageRateLimit  int
	MessageRateWindow time.Duration
	APIRateLimit      int
	APIRateWindow     time.Duration
	TrustedProxies    []string // proxy IPs/CIDRs whose X-Forwarded-For is honoured

	// Database operation timeouts
	TimeoutPing   time.Duration
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
}

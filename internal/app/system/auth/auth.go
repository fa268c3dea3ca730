package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	DefaultSessionName = "studyhub-session"

	isAuthKey  = "is_authenticated"
	userIDKey  = "user_id"
	userName   = "user_name"
	userAvatar = "user_avatar"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser is the verified identity attached to a request.
// ID is the user's ObjectID hex.
type SessionUser struct {
	ID     string
	Name   string
	Avatar string
}

// UserFetcher refreshes a user's display data on each request.
// It returns nil when the user cannot be loaded.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID string) *SessionUser
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	return UserFromContext(r.Context())
}

// UserFromContext returns the user stored in ctx, if any.
func UserFromContext(ctx context.Context) (*SessionUser, bool) {
	u, ok := ctx.Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithTestUser injects u into the request context. Tests use it to bypass
// LoadSessionUser.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager resolves the identity of incoming requests. Identity comes
// from a bearer JWT (Authorization header, or ?token= on websocket upgrades)
// or from the signed session cookie shared with the identity service.
type SessionManager struct {
	store   *sessions.CookieStore
	name    string
	tokens  *TokenVerifier
	fetcher UserFetcher
	log     *zap.Logger
}

// NewSessionManager builds the cookie store. The `secure` flag controls
// whether cookies are marked Secure and which SameSite mode is used.
func NewSessionManager(sessionKey, name, domain string, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// SetTokenVerifier enables bearer-token identity.
func (sm *SessionManager) SetTokenVerifier(v *TokenVerifier) {
	sm.tokens = v
}

// SetUserFetcher makes LoadSessionUser refresh display data from the user store.
func (sm *SessionManager) SetUserFetcher(f UserFetcher) {
	sm.fetcher = f
}

// GetSession returns the raw cookie session for this request.
func (sm *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return sm.store.Get(r, sm.name)
}

// Identify resolves the request's identity without touching the context.
func (sm *SessionManager) Identify(r *http.Request) (*SessionUser, bool) {
	u, ok := sm.fromToken(r)
	if !ok {
		u, ok = sm.fromCookie(r)
	}
	if !ok {
		return nil, false
	}
	if sm.fetcher != nil {
		if fresh := sm.fetcher.FetchUser(r.Context(), u.ID); fresh != nil {
			u = fresh
		}
	}
	return u, true
}

// LoadSessionUser injects the user into context if the request carries a
// valid token or session. Requests without one pass through anonymously.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := sm.Identify(r); ok {
			r = withUser(r, u)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
// Anonymous callers get a 401 JSON failure body.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "Not authorized, no valid token or session",
		})
	})
}

func (sm *SessionManager) fromToken(r *http.Request) (*SessionUser, bool) {
	if sm.tokens == nil {
		return nil, false
	}
	raw := bearerToken(r)
	if raw == "" {
		return nil, false
	}
	claims, err := sm.tokens.Verify(raw)
	if err != nil {
		sm.log.Debug("rejected bearer token", zap.Error(err))
		return nil, false
	}
	return &SessionUser{ID: claims.UserID, Name: claims.Name}, true
}

func (sm *SessionManager) fromCookie(r *http.Request) (*SessionUser, bool) {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		var scErr securecookie.Error
		if errors.As(err, &scErr) && scErr.IsDecode() {
			sm.log.Debug("ignoring undecodable session cookie", zap.Error(err))
		} else {
			sm.log.Warn("session load failed", zap.Error(err))
		}
		return nil, false
	}
	if isAuth, _ := sess.Values[isAuthKey].(bool); !isAuth {
		return nil, false
	}
	u := &SessionUser{
		ID:     getString(sess, userIDKey),
		Name:   getString(sess, userName),
		Avatar: getString(sess, userAvatar),
	}
	if u.ID == "" {
		return nil, false
	}
	return u, true
}

// SignIn stores u in the session cookie. The identity service normally does
// this; it is exposed for tools and tests that need a signed cookie.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil && sess == nil {
		return err
	}
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID
	sess.Values[userName] = u.Name
	sess.Values[userAvatar] = u.Avatar
	return sess.Save(r, w)
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

// bearerToken reads "Authorization: Bearer <t>". Browsers cannot set headers
// on websocket upgrades, so those may pass ?token= instead.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

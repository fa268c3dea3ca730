// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter counts requests per key in fixed windows that open on a key's
// first request. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	now      func() time.Time
	proxies  Proxies
	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a limiter allowing limit requests per key every duration.
// A background sweep drops expired windows until Stop is called.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop(duration * 2)
	return l
}

// Allow records a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many requests key has left in its current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().After(w.expiresAt) {
		return l.limit
	}
	return max(l.limit-w.count, 0)
}

// retryAfter returns the time until key's window closes.
func (l *Limiter) retryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.windows[key]; ok {
		return max(w.expiresAt.Sub(l.now()), 0)
	}
	return 0
}

// TrustProxies sets the proxies whose forwarding headers the middleware
// honours. Call it before serving.
func (l *Limiter) TrustProxies(p Proxies) *Limiter {
	l.proxies = p
	return l
}

// Stop ends the background sweep.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, w := range l.windows {
				if now.After(w.expiresAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Middleware limits requests by client IP. Requests over the limit get a
// Retry-After header and are handed to deny instead of next.
func (l *Limiter) Middleware(deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r, l.proxies)
			if l.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}
			secs := int(l.retryAfter(key).Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			deny(w, r)
		})
	}
}

// Proxies is a set of trusted reverse-proxy networks.
type Proxies []*net.IPNet

// ParseProxies parses IP addresses and CIDR ranges. Blank entries are
// skipped.
func ParseProxies(list []string) (Proxies, error) {
	var out Proxies
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			ip := net.ParseIP(s)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q: not an IP address or CIDR", s)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (p Proxies) contains(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	for _, n := range p {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP extracts the client IP from an HTTP request.
// X-Forwarded-For and X-Real-IP are only read when the direct peer is a
// trusted proxy; X-Forwarded-For is walked right to left and the first
// address that is not itself a trusted proxy wins.
func ClientIP(r *http.Request, trusted Proxies) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !trusted.contains(peer) {
		return peer
	}
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" || trusted.contains(hop) {
				continue
			}
			return hop
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

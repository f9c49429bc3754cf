package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueToken mints an operator bearer token signed with the configured
// secret.
func (s *Server) IssueToken(subject string) (string, error) {
	if s.settings.JWTSecret == "" {
		return "", fmt.Errorf("api: no signing secret configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.settings.JWTExpiryMinutes) * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.settings.JWTSecret))
}

// authenticate enforces a bearer token on every route except the health
// check. With no secret configured auth is disabled, for local development.
// Websocket clients may pass the token as a query parameter since browsers
// cannot set headers on upgrade requests.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.settings.JWTSecret == "" || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" && r.URL.Path == "/ws" {
			raw = r.URL.Query().Get("token")
		}
		if raw == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
			func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(s.settings.JWTSecret), nil
			})
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a fixed-window per-client counter. The window resets as a
// whole rather than sliding; burst tolerance at the boundary is acceptable
// for an operator API.
type rateLimiter struct {
	mu          sync.Mutex
	counts      map[string]int
	limit       int
	window      time.Duration
	windowStart time.Time
	now         func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		counts: make(map[string]int),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (rl *rateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.windowStart) >= rl.window {
		rl.windowStart = now
		rl.counts = make(map[string]int)
	}
	rl.counts[client]++
	return rl.counts[client] <= rl.limit
}

// rateLimit rejects clients above the per-window request budget. The health
// check and metrics scrapes are exempt so probes never get throttled.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			client = host
		}
		if !s.limiter.allow(client) {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradeforge/engine/internal/api/respond"
)

// Limiter counts a hit against a fixed window; the Redis backend implements
// it. Limits are enforced here on the HTTP surface, never inside the pool.
type Limiter interface {
	RateAllow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Throttle scopes and their windows, matching the submission contract:
// execute 1/min/user, task 30/min/ip, health 1000/hr/ip.
type throttle struct {
	scope  string
	limit  int
	window time.Duration
	ident  func(r *http.Request) string
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// userIdent keys the submitter: the authenticated user when the gateway
// forwards one, otherwise the client address.
func userIdent(r *http.Request) string {
	if u := r.Header.Get("X-User-Id"); u != "" {
		return u
	}
	return clientIP(r)
}

// rateLimit wraps a handler with one throttle. Limiter failures fail open:
// a broken counter must not take the API down with it.
func rateLimit(l Limiter, t throttle, log zerolog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := t.scope + "_" + t.ident(r)
		allowed, err := l.RateAllow(r.Context(), key, t.limit, t.window)
		if err != nil {
			log.Warn().Err(err).Str("scope", t.scope).Msg("rate limiter unavailable, allowing request")
			allowed = true
		}
		if !allowed {
			respond.WriteTooManyRequests(w, t.scope)
			return
		}
		next(w, r)
	}
}

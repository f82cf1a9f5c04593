package auth

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/decorluxe-labs/commerce/core/pkg/api"
	"github.com/decorluxe-labs/commerce/core/pkg/identity"
)

// actorLimiter hands out one token-bucket limiter per actor. Actors are
// authenticated buyers when available, remote IPs otherwise.
type actorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newActorLimiter(rps float64, burst int) *actorLimiter {
	return &actorLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *actorLimiter) allow(actor string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[actor]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[actor] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimitMiddleware enforces per-actor rate limiting at the HTTP layer.
// On limit exceeded it returns 429 with a Retry-After header. A zero or
// negative rps disables limiting.
func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := newActorLimiter(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := clientAddr(r)
			if p, err := identity.GetPrincipal(r.Context()); err == nil {
				actor = "buyer/" + p.BuyerID
			}

			if !limiter.allow(actor) {
				api.WriteTooManyRequests(w, r, 1)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return "ip/" + host
}

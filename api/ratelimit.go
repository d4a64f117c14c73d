/*
ratelimit.go - Per-client rate limiting for mutating endpoints

PURPOSE:
  Throttles claim, redemption, and trigger traffic per client IP with a
  token-bucket limiter. Read endpoints stay unthrottled; the catalog and
  progress views are cheap and dashboard-polled.

CLIENT IDENTITY:
  Keyed on RemoteAddr host. Behind a proxy this collapses all traffic to
  one bucket; deploy with X-Forwarded-For handling in front if needed.

MEMORY BOUND:
  RemoteAddr is untrusted input, so the bucket map is capped. Once full,
  buckets idle past the TTL are swept before new clients are admitted;
  if every bucket is recent the map is reset rather than growing.

SEE ALSO:
  - server.go: Applies the middleware to mutating routes
*/
package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxTrackedClients = 10000
	limiterIdleTTL    = 3 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter returns a middleware limiting each client to rps requests
// per second with the given burst. A zero rps disables limiting.
func newRateLimiter(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*clientLimiter)
	)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		c, ok := clients[key]
		if !ok {
			if len(clients) >= maxTrackedClients {
				for k, v := range clients {
					if now.Sub(v.lastSeen) > limiterIdleTTL {
						delete(clients, k)
					}
				}
				if len(clients) >= maxTrackedClients {
					clients = make(map[string]*clientLimiter)
				}
			}
			c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[key] = c
		}
		c.lastSeen = now
		return c.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if !limiterFor(host).Allow() {
				writeError(w, http.StatusTooManyRequests, "Too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package chi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chabad-mafteach/mafteach/internal/ratelimit"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware returns a middleware that validates Bearer tokens.
// If apiKeys is empty, authentication is disabled (pass-through). A
// non-nil failures limiter counts rejected attempts per client IP and
// turns further attempts into 429s, slowing down key guessing.
func BearerAuthMiddleware(apiKeys []string, failures *ratelimit.Limiter) func(http.Handler) http.Handler {
	validKeys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			validKeys[k] = struct{}{}
		}
	}

	reject := func(w http.ResponseWriter, r *http.Request, msg string) {
		if failures != nil {
			res := failures.Check(ratelimit.ClientIP(r))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter(time.Now())))
				writeError(w, http.StatusTooManyRequests, "too many failed authentication attempts")
				return
			}
		}
		writeError(w, http.StatusUnauthorized, msg)
	}

	return func(next http.Handler) http.Handler {
		// Auth disabled — pass everything through
		if len(validKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				reject(w, r, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				reject(w, r, "authorization header must use Bearer scheme")
				return
			}

			token := auth[len(bearerPrefix):]
			if _, ok := validKeys[token]; !ok {
				reject(w, r, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

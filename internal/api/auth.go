package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"offlinesync/internal/config"
)

const apiKeyHeader = "X-API-Key"

var (
	errMissingKey = errors.New("missing api key")
	errInvalidKey = errors.New("invalid api key")
)

// HTTPAuth checks the optional shared API key and applies per-client rate
// limiting. /healthz is always open.
type HTTPAuth struct {
	cfg     config.APIConfig
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if err := a.checkAuth(r); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		if !a.limiter.allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	if a.cfg.APIKey == "" {
		return nil
	}
	key := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	if key == "" {
		return errMissingKey
	}
	if subtle.ConstantTimeCompare([]byte(a.cfg.APIKey), []byte(key)) != 1 {
		return errInvalidKey
	}
	return nil
}

func clientKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

/**
 * @description
 * This file contains custom middleware for the HTTP router. The onramp-service
 * exposes no public authentication surface; the only guarded routes are the
 * internal seed/admin endpoints, which require the shared internal API key
 * used by sibling services and operational tooling.
 *
 * @dependencies
 * - crypto/subtle, net/http, strings: Standard Go libraries.
 */

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const internalAPIKeyHeader = "X-Internal-Api-Key"

// InternalAuthMiddleware guards internal endpoints with a shared API key.
// Requests without a matching key are rejected with 401; when no key is
// configured at all the internal surface is disabled entirely.
func InternalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	expected := strings.TrimSpace(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				http.Error(w, "Internal API is not configured", http.StatusServiceUnavailable)
				return
			}
			provided := strings.TrimSpace(r.Header.Get(internalAPIKeyHeader))
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				http.Error(w, "Invalid or missing internal API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

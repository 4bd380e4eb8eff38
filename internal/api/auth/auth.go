// Package auth guards the API with static bearer keys.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/ryosuke1832/remind/internal/api/respond"
)

// ExtractAPIKey extracts API key from Authorization header
// Returns the API key or error if missing/invalid format
func ExtractAPIKey(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}

	// Expect "Bearer <api_key>" format
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("invalid Authorization header format, expected 'Bearer <api_key>'")
	}

	return parts[1], nil
}

// open paths never require a key: probes, scraping and public media.
var openPrefixes = []string{"/api/health", "/metrics", "/uploads/"}

// Middleware rejects requests without one of keys. With no keys configured
// every request passes.
func Middleware(keys []string) func(http.Handler) http.Handler {
	valid := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			valid = append(valid, []byte(k))
		}
	}
	return func(next http.Handler) http.Handler {
		if len(valid) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || isOpen(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			key, err := ExtractAPIKey(r)
			if err != nil {
				respond.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !matches(valid, []byte(key)) {
				respond.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isOpen(path string) bool {
	for _, p := range openPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func matches(valid [][]byte, key []byte) bool {
	ok := 0
	for _, v := range valid {
		ok |= subtle.ConstantTimeCompare(v, key)
	}
	return ok == 1
}

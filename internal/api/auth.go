package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// HeaderAPIKey is accepted as an alternative to a Bearer token.
const HeaderAPIKey = "X-API-Key"

var (
	errNoCredentials = errors.New("missing API key")
	errBadScheme     = errors.New("invalid Authorization header format")
)

// ValidateAPIKey reports whether provided matches the configured key in
// constant time. An empty key on either side never matches.
func ValidateAPIKey(provided, configured string) bool {
	if configured == "" || provided == "" || len(provided) != len(configured) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}

// ExtractAPIKey reads the key from "Authorization: Bearer <key>" or, failing
// that, from the X-API-Key header.
func ExtractAPIKey(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		key, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return "", errBadScheme
		}
		if key = strings.TrimSpace(key); key == "" {
			return "", errNoCredentials
		}
		return key, nil
	}
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key, nil
	}
	return "", errNoCredentials
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := ExtractAPIKey(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !ValidateAPIKey(key, s.config.APIKey) {
			s.logger.Warn("rejected API request", "path", r.URL.Path, "remote", r.RemoteAddr)
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

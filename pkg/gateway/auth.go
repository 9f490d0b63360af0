package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorized reports whether the request carries the shared secret, either
// as a bearer token or as the access_token query parameter. The parameter
// form exists for websocket clients that cannot set headers.
func (s *Server) authorized(r *http.Request) bool {
	token := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.sharedSecret)) == 1
}

// requireAuth guards a handler with shared-secret auth.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

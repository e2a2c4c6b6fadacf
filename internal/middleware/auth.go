package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"emotionserver/internal/dto"
)

// publicPaths are served without a token.
var publicPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// AuthMiddleware requires "Authorization: Bearer <token>" when token is set.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		// Browsers cannot set headers on websocket upgrades.
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(dto.ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

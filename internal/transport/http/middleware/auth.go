package middleware

import (
	"net/http"
	"strings"

	"hrassist/internal/domain/identity"
)

// TokenParser turns a bearer token into the caller it was minted for.
type TokenParser interface {
	Parse(token string) (identity.Caller, error)
}

// Auth attaches the caller when a valid bearer token is present. Requests without one pass
// through anonymously; RequirePermission rejects them later.
func Auth(sessions TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || sessions == nil {
				next.ServeHTTP(w, r)
				return
			}
			caller, err := sessions.Parse(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), caller)))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	// Browsers cannot set headers on a websocket upgrade.
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

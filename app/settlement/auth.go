package settlement

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ValidateToken checks if the Authorization header carries the admin token.
func (a *App) ValidateToken(r *http.Request) bool {
	if a.AdminToken == "" {
		return false
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		return token == a.AdminToken
	}
	return false
}

// ValidateSessionCookie checks if the session cookie is present and valid.
// Sessions are issued by the admin console, which shares JWTSecret.
func (a *App) ValidateSessionCookie(r *http.Request) bool {
	if len(a.JWTSecret) == 0 {
		return false
	}
	cookie, err := r.Cookie("st_session")
	if err != nil {
		return false
	}
	tok, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (any, error) { return a.JWTSecret, nil })
	return err == nil && tok.Valid
}

// RequireAuth middleware
func (a *App) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.ValidateToken(r) || a.ValidateSessionCookie(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	})
}

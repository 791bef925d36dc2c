package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tutordesk/common/httputil"
)

type contextKey string

const (
	UsernameKey contextKey = "username"

	cookieName = "token"
)

// Middleware requires a valid token from the Authorization header or the token cookie.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				logger.Warn("no auth token found", "path", r.URL.Path)
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := service.ValidateToken(token)
			if err != nil {
				logger.Warn("invalid token", "path", r.URL.Path, "error", err)
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), UsernameKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// GetUsername extracts the authenticated admin from context.
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

// SetAuthCookie sets the token in an HttpOnly cookie. Secure is off for local environments.
func SetAuthCookie(w http.ResponseWriter, token string, expiresAt time.Time, env string) {
	sameSite := http.SameSiteStrictMode
	if env == "local" || env == "development" {
		sameSite = http.SameSiteLaxMode
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   env != "local" && env != "development" && env != "test",
		SameSite: sameSite,
		Path:     "/",
		Expires:  expiresAt,
	})
}

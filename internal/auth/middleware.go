package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey  contextKey = "user_id"
	SessionKey contextKey = "session"

	CookieName = "fm_session"
)

// SessionGetter resolves access tokens.
type SessionGetter interface {
	GetSession(ctx context.Context, token string) (*Session, error)
}

// TokenFromRequest reads a Bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware requires a live session and stores it in the echo context.
func Middleware(sessions SessionGetter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := TokenFromRequest(c.Request())
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
			}

			session, err := sessions.GetSession(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrSessionRevoked) {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
				}
				c.Logger().Errorf("session lookup failed: %v", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "Server auth configuration error")
			}

			c.Set(string(UserIDKey), session.User.ID)
			c.Set(string(SessionKey), session)
			return next(c)
		}
	}
}

// RequireAdmin lets through admin sessions set by Middleware, or requests
// carrying the admin secret in X-Admin-Secret.
func RequireAdmin(sessions SessionGetter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			secret, err := adminSecret()
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
			}
			if secretMatches(c.Request().Header.Get("X-Admin-Secret"), secret) {
				return next(c)
			}

			session, ok := SessionFromContext(c)
			if !ok {
				token := TokenFromRequest(c.Request())
				if token != "" {
					if s, err := sessions.GetSession(c.Request().Context(), token); err == nil {
						session, ok = s, true
						c.Set(string(UserIDKey), s.User.ID)
						c.Set(string(SessionKey), s)
					}
				}
			}
			if ok && session.User.IsAdmin() {
				return next(c)
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
		}
	}
}

// GetUserIDFromContext helper to retrieve the user ID
func GetUserIDFromContext(c echo.Context) (uuid.UUID, error) {
	val := c.Get(string(UserIDKey))
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("user ID not found in context")
	}
	return id, nil
}

func SessionFromContext(c echo.Context) (*Session, bool) {
	s, ok := c.Get(string(SessionKey)).(*Session)
	return s, ok && s != nil
}

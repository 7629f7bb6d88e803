package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/david/funding-monitor/internal/auth"
)

func isFormPost(c echo.Context) bool {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm)
}

func (s *Server) setSessionCookie(c echo.Context, session *auth.Session) {
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	state, err := s.auth.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidCreds) {
			status = http.StatusUnauthorized
		} else {
			c.Logger().Errorf("sign in failed: %v", err)
		}
		if isFormPost(c) {
			return c.Render(status, "login", loginPage{Email: req.Email, Error: *state.Error})
		}
		return c.JSON(status, state)
	}

	s.setSessionCookie(c, state.Session)
	if isFormPost(c) {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) handleLogout(c echo.Context) error {
	session, _ := auth.SessionFromContext(c)
	prev := auth.StateOf(session, nil)

	state := s.auth.SignOut(c.Request().Context(), auth.TokenFromRequest(c.Request()), prev)
	if state.Error != nil {
		if isFormPost(c) {
			return c.Redirect(http.StatusSeeOther, "/?error=logout")
		}
		return c.JSON(http.StatusInternalServerError, state)
	}

	s.clearSessionCookie(c)
	if isFormPost(c) {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return c.JSON(http.StatusOK, state)
}

// handleSession reports the visitor's AuthState; no session is a signed-out
// state, not an error.
func (s *Server) handleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, s.auth.State(c.Request().Context(), auth.TokenFromRequest(c.Request())))
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/david/funding-monitor/internal/dashboard"
	"github.com/david/funding-monitor/internal/db"
	"github.com/david/funding-monitor/internal/models"
	"github.com/david/funding-monitor/internal/nav"
	"github.com/david/funding-monitor/internal/settings"
)

func (s *Server) loadedSettings(c echo.Context) (*dashboard.Session, error) {
	ds, err := s.dashboardSession(c)
	if err != nil {
		return nil, err
	}
	if err := ds.EnsureSettings(c.Request().Context()); err != nil {
		c.Logger().Errorf("loading settings: %v", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, db.ErrorMessage(err))
	}
	return ds, nil
}

func (s *Server) handleListSettings(c echo.Context) error {
	ds, err := s.loadedSettings(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ds.Settings.Snapshot())
}

func (s *Server) handleGetSettings(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ds, err := s.loadedSettings(c)
	if err != nil {
		return err
	}
	current, _ := ds.Settings.Get(id)
	return c.JSON(http.StatusOK, current)
}

func settingsError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, settings.ErrNoUser):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, settings.ErrInvalidPriority):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	c.Logger().Errorf("updating settings: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": db.ErrorMessage(err)})
}

// handleUpdateSettings merges the body into the stored settings of one call.
func (s *Server) handleUpdateSettings(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ds, err := s.loadedSettings(c)
	if err != nil {
		return err
	}

	var patch models.FundingCallSettings
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	merged, err := ds.Settings.Update(c.Request().Context(), id, patch)
	if err != nil {
		return settingsError(c, err)
	}
	return c.JSON(http.StatusOK, merged)
}

func (s *Server) handleToggleFavorite(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ds, err := s.loadedSettings(c)
	if err != nil {
		return err
	}

	merged, err := ds.Settings.ToggleFavorite(c.Request().Context(), id)
	if err != nil {
		return settingsError(c, err)
	}
	return c.JSON(http.StatusOK, merged)
}

type navigationResponse struct {
	Current nav.Page   `json:"current"`
	Path    string     `json:"path"`
	Pages   []nav.Page `json:"pages"`
}

func navigationOf(ds *dashboard.Session) navigationResponse {
	current := ds.Nav.Current()
	return navigationResponse{Current: current, Path: nav.PathFor(current), Pages: nav.Pages}
}

func (s *Server) handleGetNavigation(c echo.Context) error {
	ds, err := s.dashboardSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, navigationOf(ds))
}

type navigateRequest struct {
	Page string `json:"page"`
	Path string `json:"path"`
}

// handleNavigate accepts either a page id or a browser path.
func (s *Server) handleNavigate(c echo.Context) error {
	ds, err := s.dashboardSession(c)
	if err != nil {
		return err
	}

	var req navigateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	var page nav.Page
	switch {
	case strings.TrimSpace(req.Page) != "":
		page, err = nav.ParsePage(strings.TrimSpace(req.Page))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
	case strings.TrimSpace(req.Path) != "":
		page = nav.PageFromPath(req.Path)
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "page or path is required"})
	}

	ds.Nav.Navigate(page)
	return c.JSON(http.StatusOK, navigationOf(ds))
}

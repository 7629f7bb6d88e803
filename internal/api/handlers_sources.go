package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/david/funding-monitor/internal/db"
	"github.com/david/funding-monitor/internal/models"
	"github.com/david/funding-monitor/internal/sources"
)

// sourceError maps a manager error to a status. prior, when set, is sent
// back so the client can revert the edited row.
func sourceError(c echo.Context, err error, prior *models.Source) error {
	status := http.StatusInternalServerError
	msg := db.ErrorMessage(err)
	switch {
	case errors.Is(err, sources.ErrInvalidSource):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, sources.ErrNotFound), errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
		msg = sources.ErrNotFound.Error()
	default:
		c.Logger().Errorf("sources: %v", err)
	}

	body := map[string]interface{}{"error": msg}
	if prior != nil {
		body["source"] = prior
	}
	return c.JSON(status, body)
}

func (s *Server) priorSource(id int64) *models.Source {
	if src, ok := s.sources.Get(id); ok {
		return &src
	}
	return nil
}

func (s *Server) handleListSources(c echo.Context) error {
	// A failed load is reported in the snapshot's error field.
	_ = s.sources.EnsureLoaded(c.Request().Context())
	return c.JSON(http.StatusOK, s.sources.Snapshot())
}

func (s *Server) handleRefetchSources(c echo.Context) error {
	if err := s.sources.Refetch(c.Request().Context()); err != nil {
		return sourceError(c, err, nil)
	}
	return c.JSON(http.StatusOK, s.sources.Snapshot())
}

func (s *Server) handleCreateSource(c echo.Context) error {
	var in models.SourceInsert
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	created, err := s.sources.Create(c.Request().Context(), in)
	if err != nil {
		return sourceError(c, err, nil)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) handleUpdateSource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var u models.SourceUpdate
	if err := c.Bind(&u); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if u.IsEmpty() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No fields to update"})
	}

	updated, err := s.sources.Update(c.Request().Context(), id, u)
	if err != nil {
		return sourceError(c, err, s.priorSource(id))
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteSource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := s.sources.Delete(c.Request().Context(), id); err != nil {
		return sourceError(c, err, s.priorSource(id))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleToggleSource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	updated, err := s.sources.ToggleActive(c.Request().Context(), id)
	if err != nil {
		return sourceError(c, err, s.priorSource(id))
	}
	return c.JSON(http.StatusOK, updated)
}

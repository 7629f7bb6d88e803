package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/david/funding-monitor/internal/dashboard"
	"github.com/david/funding-monitor/internal/db"
	"github.com/david/funding-monitor/internal/fundingcalls"
	"github.com/david/funding-monitor/internal/rss"
)

type fundingCallsResponse struct {
	fundingcalls.View
	Loading       bool    `json:"loading"`
	Error         *string `json:"error"`
	UsingMockData bool    `json:"using_mock_data"`
}

// callsView applies an only_relevant query parameter to the session and
// builds the filtered list.
func (s *Server) callsView(c echo.Context, ds *dashboard.Session) (fundingCallsResponse, error) {
	if raw := c.QueryParam("only_relevant"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fundingCallsResponse{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid only_relevant")
		}
		ds.SetOnlyRelevant(v)
	}

	state := s.calls.EnsureLoaded(c.Request().Context())
	return fundingCallsResponse{
		View:          fundingcalls.BuildView(state.FundingCalls, ds.Overrides, ds.OnlyRelevant()),
		Loading:       state.Loading,
		Error:         state.Error,
		UsingMockData: state.UsingMockData,
	}, nil
}

func (s *Server) handleListFundingCalls(c echo.Context) error {
	ds, err := s.dashboardSession(c)
	if err != nil {
		return err
	}
	resp, err := s.callsView(c, ds)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRefetchFundingCalls(c echo.Context) error {
	ds, err := s.dashboardSession(c)
	if err != nil {
		return err
	}
	state := s.calls.Refetch(c.Request().Context())
	if state.Error != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": *state.Error})
	}
	return c.JSON(http.StatusOK, fundingCallsResponse{
		View:          fundingcalls.BuildView(state.FundingCalls, ds.Overrides, ds.OnlyRelevant()),
		UsingMockData: state.UsingMockData,
	})
}

func (s *Server) findCall(id int64) (fundingcalls.NormalizedFundingCall, bool) {
	for _, call := range s.calls.Snapshot().FundingCalls {
		if call.ID == id {
			return call, true
		}
	}
	return fundingcalls.NormalizedFundingCall{}, false
}

type overrideRequest struct {
	IsRelevant *bool `json:"is_relevant"`
}

// handleSetOverride marks a call relevant or not for this session only.
func (s *Server) handleSetOverride(c echo.Context) error {
	ds, err := s.dashboardSession(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req overrideRequest
	if err := c.Bind(&req); err != nil || req.IsRelevant == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "is_relevant is required"})
	}

	call, ok := s.findCall(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "funding call not found"})
	}

	ds.Overrides.Set(id, *req.IsRelevant)
	return c.JSON(http.StatusOK, fundingcalls.ViewRow{
		NormalizedFundingCall: call,
		EffectiveRelevant:     ds.Overrides.Effective(call),
		Overridden:            true,
	})
}

func (s *Server) handleClearOverride(c echo.Context) error {
	ds, err := s.dashboardSession(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}

	ds.Overrides.Clear(id)
	call, ok := s.findCall(id)
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, fundingcalls.ViewRow{
		NormalizedFundingCall: call,
		EffectiveRelevant:     call.RelevanceInfo.IsRelevant,
	})
}

func siteURL(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host
}

// handleFundingCallsRSS exports the most recently updated calls as RSS 2.0.
func (s *Server) handleFundingCallsRSS(c echo.Context) error {
	if s.feed == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "RSS export needs the database"})
	}
	ctx := c.Request().Context()

	calls, err := s.feed.RecentFundingCalls(ctx, s.rssLimit)
	if err != nil {
		c.Logger().Errorf("rss: loading funding calls: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": db.ErrorMessage(err)})
	}

	names := make(map[int64]string)
	if list, err := s.feed.ListSources(ctx); err != nil {
		c.Logger().Errorf("rss: loading sources: %v", err)
	} else {
		for _, src := range list {
			names[src.ID] = src.Name
		}
	}

	feed := rss.BuildFundingCallsFeed(calls, names, rss.FeedOptions{SiteURL: siteURL(c)}, time.Now())
	data, err := rss.Marshal(feed)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to render feed"})
	}
	return c.Blob(http.StatusOK, "application/rss+xml; charset=utf-8", data)
}

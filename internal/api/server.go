package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/funding-monitor/internal/auth"
	"github.com/david/funding-monitor/internal/config"
	"github.com/david/funding-monitor/internal/crawl"
	"github.com/david/funding-monitor/internal/dashboard"
	"github.com/david/funding-monitor/internal/fundingcalls"
	"github.com/david/funding-monitor/internal/models"
	"github.com/david/funding-monitor/internal/sources"
)

// FeedStore is what the RSS export reads.
type FeedStore interface {
	RecentFundingCalls(ctx context.Context, limit int) ([]models.FundingCall, error)
	ListSources(ctx context.Context) ([]models.Source, error)
}

// Crawler runs source crawls for the admin endpoints.
type Crawler interface {
	CrawlSource(ctx context.Context, id int64) (crawl.Stats, error)
	CrawlActive(ctx context.Context) ([]crawl.Stats, error)
}

// Deps are the services the server is built from. Feed and Crawler may be
// nil; their routes then answer 503.
type Deps struct {
	Auth       auth.Provider
	Calls      *fundingcalls.Loader
	Sources    *sources.Manager
	Dashboards *dashboard.Registry
	Feed       FeedStore
	Crawler    Crawler
}

type Server struct {
	Echo *echo.Echo

	auth       *auth.Client
	calls      *fundingcalls.Loader
	sources    *sources.Manager
	dashboards *dashboard.Registry
	feed       FeedStore
	crawler    Crawler

	rssLimit     int
	cookieSecure bool
	jobTimeout   time.Duration

	// Background crawl tracking
	jobMu      sync.Mutex
	runningJob *crawlJob
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = jsonErrorHandler
	e.Renderer = newRenderer()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
		AllowCredentials: true,
	}))

	rssLimit := cfg.RSSLimit
	if rssLimit <= 0 {
		rssLimit = 50
	}

	s := &Server{
		Echo:         e,
		auth:         auth.NewClient(deps.Auth),
		calls:        deps.Calls,
		sources:      deps.Sources,
		dashboards:   deps.Dashboards,
		feed:         deps.Feed,
		crawler:      deps.Crawler,
		rssLimit:     rssLimit,
		cookieSecure: cfg.CookieSecure,
		jobTimeout:   30 * time.Minute,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	user := auth.Middleware(s.auth)
	admin := auth.RequireAdmin(s.auth)

	s.Echo.GET("/health", s.handleHealth)

	s.Echo.GET("/", s.handlePage)
	s.Echo.GET("/settings", s.handlePage)
	s.Echo.GET("/sources", s.handlePage)

	api := s.Echo.Group("/api/v1")

	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/logout", s.handleLogout, user)
	api.GET("/auth/session", s.handleSession)

	api.GET("/funding-calls", s.handleListFundingCalls, user)
	api.GET("/funding-calls/rss", s.handleFundingCallsRSS)
	api.POST("/funding-calls/refetch", s.handleRefetchFundingCalls, user)
	api.PUT("/funding-calls/:id/override", s.handleSetOverride, user)
	api.DELETE("/funding-calls/:id/override", s.handleClearOverride, user)

	api.GET("/settings/funding-calls", s.handleListSettings, user)
	api.GET("/settings/funding-calls/:id", s.handleGetSettings, user)
	api.PUT("/settings/funding-calls/:id", s.handleUpdateSettings, user)
	api.POST("/settings/funding-calls/:id/favorite", s.handleToggleFavorite, user)

	api.GET("/navigation", s.handleGetNavigation, user)
	api.POST("/navigation", s.handleNavigate, user)

	api.GET("/sources", s.handleListSources, user)
	api.POST("/sources", s.handleCreateSource, admin)
	api.POST("/sources/refetch", s.handleRefetchSources, admin)
	api.PATCH("/sources/:id", s.handleUpdateSource, admin)
	api.DELETE("/sources/:id", s.handleDeleteSource, admin)
	api.POST("/sources/:id/toggle", s.handleToggleSource, admin)
	api.POST("/sources/:id/crawl", s.handleCrawlSource, admin)
	api.POST("/crawl", s.handleCrawlAll, admin)
	api.GET("/crawl/jobs/:id", s.handleCrawlJob, admin)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Cancel != nil {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// dashboardSession returns the dashboard state of the signed-in user. It is
// only valid behind auth.Middleware.
func (s *Server) dashboardSession(c echo.Context) (*dashboard.Session, error) {
	session, ok := auth.SessionFromContext(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return s.dashboards.Open(session), nil
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid id")
	}
	return id, nil
}

// jsonErrorHandler renders every error as {"error": "..."}.
func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		default:
			msg = http.StatusText(code)
		}
	} else {
		c.Logger().Errorf("unhandled error: %v", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"error": msg})
	}
	if err != nil {
		c.Logger().Error(err)
	}
}

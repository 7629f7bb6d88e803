package api

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/david/funding-monitor/internal/auth"
	"github.com/david/funding-monitor/internal/db"
	"github.com/david/funding-monitor/internal/fundingcalls"
	"github.com/david/funding-monitor/internal/models"
	"github.com/david/funding-monitor/internal/nav"
	"github.com/david/funding-monitor/internal/sources"
)

//go:embed templates/*.html
var templatesFS embed.FS

type renderer struct {
	templates *template.Template
}

func newRenderer() *renderer {
	funcs := template.FuncMap{
		"deadline": func(raw *string) fundingcalls.DeadlineDisplay {
			return fundingcalls.FormatDeadline(raw, time.Now())
		},
		"orDash":  func(s *string) string { return deref(s, "-") },
		"orNone":  func(s *string) string { return deref(s, "Keine Angabe") },
		"orEmpty": func(s *string) string { return deref(s, "") },
		"isTrue":  func(b *bool) bool { return b != nil && *b },
		"percent": percent,
		"when":    when,
	}
	return &renderer{
		templates: template.Must(template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")),
	}
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

func deref(s *string, placeholder string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return placeholder
	}
	return *s
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f %%", *v*100)
}

func when(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "Nie"
	}
	return t.Local().Format("02.01.2006 15:04")
}

type loginPage struct {
	Email string
	Error string
}

type navLink struct {
	Label  string
	Path   string
	Active bool
}

var pageLabels = map[nav.Page]string{
	nav.PageFundingCalls: "Förderaufrufe",
	nav.PageSettings:     "Einstellungen",
	nav.PageSources:      "Quellen",
}

func navLinks(current nav.Page) []navLink {
	links := make([]navLink, 0, len(nav.Pages))
	for _, p := range nav.Pages {
		links = append(links, navLink{Label: pageLabels[p], Path: nav.PathFor(p), Active: p == current})
	}
	return links
}

type settingsRow struct {
	Call     fundingcalls.NormalizedFundingCall
	Settings models.FundingCallSettings
}

type pageData struct {
	Title   string
	Page    nav.Page
	Nav     []navLink
	User    auth.User
	IsAdmin bool
	Error   string

	Calls     fundingCallsResponse
	Favorites map[int64]bool

	Settings []settingsRow

	Sources     sources.State
	SourceTypes []string
}

// handlePage serves the dashboard pages. Visitors without a valid session
// get the login form instead.
func (s *Server) handlePage(c echo.Context) error {
	ctx := c.Request().Context()
	session, err := s.auth.GetSession(ctx, auth.TokenFromRequest(c.Request()))
	if err != nil {
		return c.Render(http.StatusOK, "login", loginPage{})
	}

	ds := s.dashboards.Open(session)
	page := ds.Nav.Sync(c.Request().URL.Path)

	data := pageData{
		Title:   pageLabels[page],
		Page:    page,
		Nav:     navLinks(page),
		User:    session.User,
		IsAdmin: session.User.IsAdmin(),
	}
	if c.QueryParam("error") == "logout" {
		data.Error = "Logout fehlgeschlagen"
	}
	settingsErr := ds.EnsureSettings(ctx)
	if settingsErr != nil && data.Error == "" {
		data.Error = db.ErrorMessage(settingsErr)
	}
	stored := ds.Settings.Snapshot().Settings

	switch page {
	case nav.PageSettings:
		for _, call := range s.calls.EnsureLoaded(ctx).FundingCalls {
			if st, ok := stored[call.ID]; ok {
				data.Settings = append(data.Settings, settingsRow{Call: call, Settings: st})
			}
		}
	case nav.PageSources:
		_ = s.sources.EnsureLoaded(ctx)
		data.Sources = s.sources.Snapshot()
		data.SourceTypes = sources.Types
	default:
		resp, err := s.callsView(c, ds)
		if err != nil {
			return err
		}
		data.Calls = resp
		data.Favorites = make(map[int64]bool)
		for id, st := range stored {
			if st.Favorite != nil && *st.Favorite {
				data.Favorites[id] = true
			}
		}
	}

	return c.Render(http.StatusOK, string(page), data)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/david/funding-monitor/internal/auth"
	"github.com/david/funding-monitor/internal/config"
	"github.com/david/funding-monitor/internal/crawl"
	"github.com/david/funding-monitor/internal/dashboard"
	"github.com/david/funding-monitor/internal/db"
	"github.com/david/funding-monitor/internal/fundingcalls"
	"github.com/david/funding-monitor/internal/models"
	"github.com/david/funding-monitor/internal/sources"
)

type fakeAuth struct {
	mu       sync.Mutex
	hub      *auth.Hub
	sessions map[string]*auth.Session
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{hub: auth.NewHub(), sessions: map[string]*auth.Session{}}
}

func (f *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	if password != "secret" {
		return nil, auth.ErrInvalidCreds
	}
	role := auth.RoleUser
	if strings.HasPrefix(email, "admin") {
		role = auth.RoleAdmin
	}
	s := &auth.Session{
		ID:          uuid.New(),
		AccessToken: uuid.NewString(),
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        auth.User{ID: uuid.New(), Email: email, Role: role},
	}
	f.mu.Lock()
	f.sessions[s.AccessToken] = s
	f.mu.Unlock()
	f.hub.Publish(auth.EventSignedIn, s)
	return s, nil
}

func (f *fakeAuth) SignOut(ctx context.Context, token string) error {
	f.mu.Lock()
	s, ok := f.sessions[token]
	delete(f.sessions, token)
	f.mu.Unlock()
	if ok {
		f.hub.Publish(auth.EventSignedOut, s)
	}
	return nil
}

func (f *fakeAuth) GetSession(ctx context.Context, token string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return s, nil
}

func (f *fakeAuth) OnAuthStateChange(fn auth.Handler) *auth.Subscription {
	return f.hub.Subscribe(fn)
}

type fakeStore struct {
	mu       sync.Mutex
	calls    []models.FundingCall
	sources  []models.Source
	updates  []models.SourceUpdate
	settings map[int64]models.FundingCallSettings
}

func (f *fakeStore) ListFundingCalls(ctx context.Context) ([]models.FundingCall, error) {
	return f.calls, nil
}

func (f *fakeStore) RecentFundingCalls(ctx context.Context, limit int) ([]models.FundingCall, error) {
	return f.calls, nil
}

func (f *fakeStore) ListSources(ctx context.Context) ([]models.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Source(nil), f.sources...), nil
}

func (f *fakeStore) InsertSource(ctx context.Context, in models.SourceInsert) (*models.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := models.Source{ID: int64(len(f.sources) + 10), Name: in.Name, URL: in.URL, SourceType: in.SourceType, IsActive: true}
	f.sources = append(f.sources, src)
	return &src, nil
}

func (f *fakeStore) UpdateSource(ctx context.Context, id int64, u models.SourceUpdate) (*models.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	for i := range f.sources {
		if f.sources[i].ID == id {
			if u.IsActive != nil {
				f.sources[i].IsActive = *u.IsActive
			}
			if u.Name != nil {
				f.sources[i].Name = *u.Name
			}
			src := f.sources[i]
			return &src, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) DeleteSource(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sources {
		if f.sources[i].ID == id {
			f.sources = append(f.sources[:i], f.sources[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (f *fakeStore) ListUserFundingCalls(ctx context.Context, userID uuid.UUID) ([]models.UserFundingCall, error) {
	return nil, nil
}

func (f *fakeStore) UpsertUserFundingCall(ctx context.Context, userID uuid.UUID, callID int64, s models.FundingCallSettings) (*models.UserFundingCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[callID] = s
	return &models.UserFundingCall{UserID: userID, FundingCallID: callID, Settings: s}, nil
}

type fakeCrawler struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCrawler) CrawlSource(ctx context.Context, id int64) (crawl.Stats, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return crawl.Stats{SourceID: id, Found: 2, Saved: 2}, nil
}

func (f *fakeCrawler) CrawlActive(ctx context.Context) ([]crawl.Stats, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return []crawl.Stats{{SourceID: 1, Found: 1, Saved: 1}}, nil
}

type testEnv struct {
	srv      *Server
	auth     *fakeAuth
	store    *fakeStore
	registry *dashboard.Registry
	crawler  *fakeCrawler
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	updated := time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		calls: []models.FundingCall{
			{ID: 1, Title: "KI-Förderung für KMU", RelevanceScore: floatPtr(0.9), SourceURL: strPtr("https://example.org/ki"), UpdatedAt: &updated, SourceID: func() *int64 { v := int64(1); return &v }()},
			{ID: 2, Title: "Kulturprojekte im ländlichen Raum", RelevanceScore: floatPtr(0.1), UpdatedAt: &updated},
		},
		sources: []models.Source{
			{ID: 1, Name: "Förderinfo", URL: "https://example.org/feed", SourceType: strPtr("rss"), IsActive: true},
		},
		settings: map[int64]models.FundingCallSettings{},
	}

	fa := newFakeAuth()
	registry := dashboard.NewRegistry(store)
	registry.Attach(fa)
	t.Cleanup(registry.Close)

	crawler := &fakeCrawler{}
	cfg := &config.Config{CORSOrigins: []string{"http://localhost:5173"}, RSSLimit: 50}
	srv := NewServer(cfg, Deps{
		Auth:       fa,
		Calls:      fundingcalls.NewLoader(store, nil),
		Sources:    sources.NewManager(store),
		Dashboards: registry,
		Feed:       store,
		Crawler:    crawler,
	})
	return &testEnv{srv: srv, auth: fa, store: store, registry: registry, crawler: crawler}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"`+email+`","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var state auth.AuthState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return state.Session.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"user@example.org","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", cookie)
	}
	if env.registry.Len() != 1 {
		t.Errorf("expected a dashboard session after sign in, got %d", env.registry.Len())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"user@example.org","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var state auth.AuthState
	decode(t, rec, &state)
	if state.Error == nil || *state.Error != auth.ErrInvalidCreds.Error() {
		t.Errorf("unexpected error %v", state.Error)
	}
	if state.User != nil {
		t.Errorf("failed login must leave the user signed out")
	}
}

func TestLogin_FormRedirects(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"email": {"user@example.org"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.srv.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("status = %d location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestSessionAndLogout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/auth/session", "", "")
	var state auth.AuthState
	decode(t, rec, &state)
	if rec.Code != http.StatusOK || state.User != nil {
		t.Fatalf("anonymous session: status %d user %v", rec.Code, state.User)
	}

	token := env.login(t, "user@example.org")
	rec = env.do(t, http.MethodGet, "/api/v1/auth/session", token, "")
	decode(t, rec, &state)
	if state.User == nil || state.User.Email != "user@example.org" {
		t.Fatalf("unexpected session state %+v", state)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/logout", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d: %s", rec.Code, rec.Body.String())
	}
	if env.registry.Len() != 0 {
		t.Errorf("sign out must end the dashboard session")
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/funding-calls", token, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("token still valid after logout: %d", rec.Code)
	}
}

func TestFundingCalls_RequireSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/funding-calls", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] == "" {
		t.Errorf("expected {\"error\": ...} body, got %s", rec.Body.String())
	}
}

func TestFundingCalls_OverrideLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "user@example.org")

	var resp fundingCallsResponse
	decode(t, env.do(t, http.MethodGet, "/api/v1/funding-calls", token, ""), &resp)
	if resp.Total != 2 || resp.Shown != 1 || resp.Rows[0].ID != 1 {
		t.Fatalf("default view should show only the relevant call, got %+v", resp.View)
	}

	rec := env.do(t, http.MethodPut, "/api/v1/funding-calls/2/override", token, `{"is_relevant": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("override status = %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/funding-calls", token, ""), &resp)
	if resp.Shown != 2 {
		t.Fatalf("override should show call 2, shown = %d", resp.Shown)
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/funding-calls/2/override", token, ""); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/funding-calls", token, ""), &resp)
	if resp.Shown != 1 {
		t.Fatalf("cleared override should hide call 2, shown = %d", resp.Shown)
	}

	decode(t, env.do(t, http.MethodGet, "/api/v1/funding-calls?only_relevant=false", token, ""), &resp)
	if resp.Shown != 2 || resp.OnlyRelevant {
		t.Fatalf("only_relevant=false should show all, got %+v", resp.View)
	}

	if rec := env.do(t, http.MethodPut, "/api/v1/funding-calls/99/override", token, `{"is_relevant": true}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown call: status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/v1/funding-calls/2/override", token, `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing is_relevant: status = %d, want 400", rec.Code)
	}
}

func TestFundingCalls_OverridesEndWithSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "user@example.org")
	env.do(t, http.MethodPut, "/api/v1/funding-calls/2/override", token, `{"is_relevant": true}`)
	env.do(t, http.MethodPost, "/api/v1/auth/logout", token, "")

	token = env.login(t, "user@example.org")
	var resp fundingCallsResponse
	decode(t, env.do(t, http.MethodGet, "/api/v1/funding-calls", token, ""), &resp)
	if resp.Shown != 1 {
		t.Fatalf("overrides must not survive sign out, shown = %d", resp.Shown)
	}
}

func TestSources_ToggleIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.login(t, "user@example.org")
	adminToken := env.login(t, "admin@example.org")

	var state sources.State
	decode(t, env.do(t, http.MethodGet, "/api/v1/sources", userToken, ""), &state)
	if len(state.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(state.Sources))
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/sources/1/toggle", userToken, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("user toggle: status = %d, want 401", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/sources/1/toggle", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin toggle: status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.store.updates) != 1 || env.store.updates[0].IsActive == nil || *env.store.updates[0].IsActive {
		t.Fatalf("expected exactly one {is_active:false} update, got %+v", env.store.updates)
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/sources", userToken, ""), &state)
	if state.Sources[0].IsActive {
		t.Errorf("local list was not flipped")
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/sources/42/toggle", adminToken, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown source: status = %d, want 404", rec.Code)
	}
}

func TestSources_CreateValidatesAndUpdateReturnsPrior(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.login(t, "admin@example.org")
	env.do(t, http.MethodGet, "/api/v1/sources", adminToken, "")

	if rec := env.do(t, http.MethodPost, "/api/v1/sources", adminToken, `{"name":"X","url":"not a url"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid create: status = %d, want 400", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/sources", adminToken, `{"name":"Portal","url":"https://example.org/foerderung","source_type":"website"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/sources/1", adminToken, `{"source_type":"ftp"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid update: status = %d, want 400", rec.Code)
	}
	var body struct {
		Error  string         `json:"error"`
		Source *models.Source `json:"source"`
	}
	decode(t, rec, &body)
	if body.Source == nil || body.Source.ID != 1 {
		t.Errorf("expected prior row in error response, got %s", rec.Body.String())
	}

	if rec := env.do(t, http.MethodPatch, "/api/v1/sources/1", adminToken, `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty update: status = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/sources/1", adminToken, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", rec.Code)
	}
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "user@example.org")

	rec := env.do(t, http.MethodPost, "/api/v1/settings/funding-calls/1/favorite", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("favorite: status = %d: %s", rec.Code, rec.Body.String())
	}
	var got map[string]interface{}
	decode(t, rec, &got)
	if got["favorite"] != true {
		t.Fatalf("expected favorite=true, got %v", got)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/settings/funding-calls/1", token, `{"notes":"Antrag vorbereiten","priority":"high"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &got)
	if got["favorite"] != true || got["notes"] != "Antrag vorbereiten" {
		t.Errorf("update must merge with stored settings, got %v", got)
	}

	if rec := env.do(t, http.MethodPut, "/api/v1/settings/funding-calls/1", token, `{"priority":"urgent"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid priority: status = %d, want 400", rec.Code)
	}

	decode(t, env.do(t, http.MethodGet, "/api/v1/settings/funding-calls/1", token, ""), &got)
	if got["priority"] != "high" {
		t.Errorf("get: unexpected settings %v", got)
	}
}

func TestNavigation(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "user@example.org")

	var nav navigationResponse
	decode(t, env.do(t, http.MethodGet, "/api/v1/navigation", token, ""), &nav)
	if nav.Current != "funding-calls" || nav.Path != "/" {
		t.Fatalf("unexpected initial navigation %+v", nav)
	}

	decode(t, env.do(t, http.MethodPost, "/api/v1/navigation", token, `{"page":"sources"}`), &nav)
	if nav.Current != "sources" || nav.Path != "/sources" {
		t.Fatalf("unexpected navigation %+v", nav)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/navigation", token, `{"page":"admin"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown page: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	env.srv.Echo.ServeHTTP(httptest.NewRecorder(), req)
	decode(t, env.do(t, http.MethodGet, "/api/v1/navigation", token, ""), &nav)
	if nav.Current != "settings" {
		t.Errorf("page load should sync navigation, got %q", nav.Current)
	}
}

func TestPages(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `action="/api/v1/auth/login"`) {
		t.Fatalf("signed-out visitors should get the login form, got %d", rec.Code)
	}

	token := env.login(t, "admin@example.org")
	for path, want := range map[string]string{
		"/":         "KI-Förderung für KMU",
		"/sources":  "Förderinfo",
		"/settings": "Noch keine Einstellungen",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
		rec := httptest.NewRecorder()
		env.srv.Echo.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d: %s", path, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("%s: body does not contain %q", path, want)
		}
	}
}

func TestFundingCallsRSS(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/funding-calls/rss", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<title>KI-Förderung für KMU</title>") {
		t.Errorf("feed does not contain the call title")
	}
	if !strings.Contains(body, "Förderinfo") {
		t.Errorf("feed does not name the source")
	}
}

func TestCrawlJob(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.login(t, "admin@example.org")

	rec := env.do(t, http.MethodPost, "/api/v1/crawl", adminToken, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var started map[string]interface{}
	decode(t, rec, &started)
	jobID, _ := started["job_id"].(string)
	if jobID == "" {
		t.Fatalf("missing job id: %v", started)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		var job map[string]interface{}
		decode(t, env.do(t, http.MethodGet, "/api/v1/crawl/jobs/"+jobID, adminToken, ""), &job)
		if job["status"] == jobCompleted {
			break
		}
		if job["status"] == jobFailed {
			t.Fatalf("crawl job failed: %v", job)
		}
		if time.Now().After(deadline) {
			t.Fatalf("crawl job did not finish: %v", job)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/crawl/jobs/nope", adminToken, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown job: status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/sources/1/crawl", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous crawl: status = %d, want 401", rec.Code)
	}
}

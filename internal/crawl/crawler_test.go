package crawl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/david/funding-monitor/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	sources  map[int64]models.Source
	upserts  []models.FundingCallInput
	crawled  map[int64]time.Time
	failSave string
}

func newFakeStore(sources ...models.Source) *fakeStore {
	s := &fakeStore{sources: map[int64]models.Source{}, crawled: map[int64]time.Time{}}
	for _, src := range sources {
		s.sources[src.ID] = src
	}
	return s
}

func (s *fakeStore) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	src, ok := s.sources[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &src, nil
}

func (s *fakeStore) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	var out []models.Source
	for id := int64(1); id <= int64(len(s.sources)); id++ {
		if src, ok := s.sources[id]; ok && src.IsActive {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertFundingCall(ctx context.Context, in models.FundingCallInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.SourceURL == s.failSave {
		return 0, errors.New("constraint violation")
	}
	s.upserts = append(s.upserts, in)
	return int64(len(s.upserts)), nil
}

func (s *fakeStore) MarkSourceCrawled(ctx context.Context, id int64, at time.Time) error {
	s.crawled[id] = at
	return nil
}

type stubStrategy struct {
	items []Item
	err   error
}

func (s stubStrategy) Fetch(ctx context.Context, src models.Source) ([]Item, error) {
	return s.items, s.err
}

type stubScorer struct{}

func (stubScorer) GenerateCompletion(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	return `{"score": 0.9, "reason": "Passt zu Digitalisierung"}`, nil
}

type stubEmbedder struct{}

func (stubEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func strPtr(s string) *string { return &s }

func TestCrawler_CrawlUpsertsAndStamps(t *testing.T) {
	src := models.Source{ID: 1, Name: "Förderinfo", URL: "https://example.org/feed", SourceType: strPtr("rss"), IsActive: true}
	store := newFakeStore(src)

	f := NewStrategyFactory()
	f.Register(TypeRSS, stubStrategy{items: []Item{
		{
			Title:       "Förderaufruf <em>Digitalisierung</em>",
			Link:        "https://example.org/calls/digital?utm_medium=rss",
			Description: `<p onclick="x()">Bis zu 100.000 €. Frist: 30.06.2030</p><script>alert(1)</script>`,
			Categories:  []string{"Digitalisierung"},
		},
		{Title: "Zweiter Aufruf", Link: "https://example.org/calls/zwei"},
	}})

	c := New(store, f, Options{Scorer: stubScorer{}, Embedder: stubEmbedder{}, Interests: "Digitalisierung"})
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	stats, err := c.CrawlSource(context.Background(), 1)
	if err != nil {
		t.Fatalf("CrawlSource: %v", err)
	}
	if stats.Found != 2 || stats.Saved != 2 || stats.Errors != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !store.crawled[1].Equal(fixed) {
		t.Errorf("source was not stamped")
	}

	in := store.upserts[0]
	if in.Title != "Förderaufruf Digitalisierung" {
		t.Errorf("title = %q", in.Title)
	}
	if in.SourceURL != "https://example.org/calls/digital" {
		t.Errorf("source url = %q", in.SourceURL)
	}
	if in.SourceID != 1 {
		t.Errorf("source id = %d", in.SourceID)
	}
	if in.Deadline != "2030-06-30" {
		t.Errorf("deadline = %q", in.Deadline)
	}
	if in.Details["max_amount"] != float64(100000) || in.Details["currency"] != "EUR" {
		t.Errorf("amount details = %v / %v", in.Details["max_amount"], in.Details["currency"])
	}
	html, _ := in.Details["description_html"].(string)
	if html == "" || strings.Contains(html, "script") || strings.Contains(html, "onclick") {
		t.Errorf("description_html not sanitized: %q", html)
	}
	if in.RelevanceScore == nil || *in.RelevanceScore != 0.9 {
		t.Errorf("relevance score = %v", in.RelevanceScore)
	}
	if in.Details["relevance_reason"] != "Passt zu Digitalisierung" {
		t.Errorf("relevance reason = %v", in.Details["relevance_reason"])
	}
	if len(in.Embedding) != 3 {
		t.Errorf("expected embedding to be attached")
	}
}

func TestCrawler_FetchErrorDoesNotStamp(t *testing.T) {
	src := models.Source{ID: 1, Name: "Portal", URL: "https://example.org", IsActive: true}
	store := newFakeStore(src)

	f := NewStrategyFactory()
	f.Register(TypeWebsite, stubStrategy{err: errors.New("connection refused")})

	stats, err := New(store, f, Options{}).Crawl(context.Background(), src)
	if err == nil {
		t.Fatalf("expected error")
	}
	if stats.Error == "" {
		t.Errorf("expected error in stats")
	}
	if _, ok := store.crawled[1]; ok {
		t.Errorf("failed crawl must not stamp last_crawled_at")
	}
}

func TestCrawler_SaveErrorsAreCounted(t *testing.T) {
	src := models.Source{ID: 1, Name: "Portal", URL: "https://example.org", IsActive: true}
	store := newFakeStore(src)
	store.failSave = "https://example.org/b"

	f := NewStrategyFactory()
	f.Register(TypeWebsite, stubStrategy{items: []Item{
		{Title: "Aufruf A", Link: "https://example.org/a"},
		{Title: "Aufruf B", Link: "https://example.org/b"},
	}})

	stats, err := New(store, f, Options{}).Crawl(context.Background(), src)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if stats.Saved != 1 || stats.Errors != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if store.upserts[0].RelevanceScore != nil || store.upserts[0].Embedding != nil {
		t.Errorf("scoring must be skipped without AI options")
	}
}

func TestCrawler_CrawlActiveContinuesPastFailures(t *testing.T) {
	rss := "rss"
	store := newFakeStore(
		models.Source{ID: 1, Name: "Kaputt", URL: "https://example.org/a", IsActive: true},
		models.Source{ID: 2, Name: "Inaktiv", URL: "https://example.org/b", IsActive: false},
		models.Source{ID: 3, Name: "Feed", URL: "https://example.org/c", SourceType: &rss, IsActive: true},
	)

	f := NewStrategyFactory()
	f.Register(TypeWebsite, stubStrategy{err: errors.New("timeout")})
	f.Register(TypeRSS, stubStrategy{items: []Item{{Title: "Aufruf", Link: "https://example.org/c/1"}}})

	results, err := New(store, f, Options{}).CrawlActive(context.Background())
	if err != nil {
		t.Fatalf("CrawlActive: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (inactive skipped), got %d", len(results))
	}
	if results[0].Error == "" || results[1].Saved != 1 {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestCrawler_UnknownType(t *testing.T) {
	ftp := "ftp"
	src := models.Source{ID: 1, URL: "ftp://example.org", SourceType: &ftp}
	if _, err := New(newFakeStore(src), NewStrategyFactory(), Options{}).Crawl(context.Background(), src); err == nil {
		t.Fatalf("expected error for unknown source type")
	}
}

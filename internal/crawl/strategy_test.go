package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/david/funding-monitor/internal/models"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Förderinfo</title>
  <link>https://example.org</link>
  <item>
    <title>Förderaufruf Digitalisierung</title>
    <link>https://example.org/calls/digital</link>
    <description>&lt;p&gt;Bis zu &lt;b&gt;100.000 €&lt;/b&gt;. Frist: 30.06.2030&lt;/p&gt;</description>
    <category>Digitalisierung</category>
    <pubDate>Mon, 06 Jan 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Ohne Link</title>
  </item>
  <item>
    <title>Klimaschutz Programm</title>
    <link>https://example.org/calls/klima</link>
  </item>
  <item>
    <title>Drittes Programm</title>
    <link>https://example.org/calls/drei</link>
  </item>
</channel>
</rss>`

func TestRSSStrategy_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	s := NewRSSStrategy(srv.Client(), 2)
	items, err := s.Fetch(context.Background(), models.Source{ID: 1, URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items (limit, link-less skipped), got %d", len(items))
	}
	first := items[0]
	if first.Link != "https://example.org/calls/digital" {
		t.Errorf("unexpected link %q", first.Link)
	}
	if first.Published == nil || first.Published.Year() != 2025 {
		t.Errorf("expected parsed pubDate, got %v", first.Published)
	}
	if len(first.Categories) != 1 || first.Categories[0] != "Digitalisierung" {
		t.Errorf("unexpected categories %v", first.Categories)
	}
	if !strings.Contains(first.Description, "<b>") {
		t.Errorf("expected raw HTML description, got %q", first.Description)
	}
	if items[1].Title != "Klimaschutz Programm" {
		t.Errorf("unexpected second item %q", items[1].Title)
	}
}

func TestRSSStrategy_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	s := NewRSSStrategy(srv.Client(), 0)
	if _, err := s.Fetch(context.Background(), models.Source{URL: srv.URL}); err == nil {
		t.Fatalf("expected error for 410")
	}
}

const testListing = `<html><body>
<nav><a href="/foerderung">Förderprogramme Übersicht</a></nav>
<ul>
  <li><a href="/calls/ki-2030?utm_source=x">Förderaufruf KI in KMU</a> Frist: 31.03.2030, bis zu 50.000 €</li>
  <li><a href="https://example.org/grant/green">Green Energy Grant 2030</a></li>
  <li><a href="/impressum">Impressum und Kontakt</a></li>
  <li><a href="/calls/ki-2030">Förderaufruf KI in KMU</a></li>
  <li><a href="mailto:info@example.org">Förderung per Mail anfragen</a></li>
</ul>
</body></html>`

func TestWebsiteStrategy_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testListing))
	}))
	defer srv.Close()

	s := NewWebsiteStrategy(http.DefaultTransport, 5*time.Second, 0)
	items, err := s.Fetch(context.Background(), models.Source{ID: 2, URL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Link != srv.URL+"/calls/ki-2030" {
		t.Errorf("unexpected link %q", items[0].Link)
	}
	if items[0].Deadline != "2030-03-31" {
		t.Errorf("unexpected deadline %q", items[0].Deadline)
	}
	if items[1].Link != "https://example.org/grant/green" || items[1].Description != "" {
		t.Errorf("unexpected second item %+v", items[1])
	}
}

func TestWebsiteStrategy_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewWebsiteStrategy(http.DefaultTransport, 5*time.Second, 0)
	if _, err := s.Fetch(context.Background(), models.Source{URL: srv.URL}); err == nil {
		t.Fatalf("expected error for 500")
	}
}

func TestNewHTTPClient_BlocksLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := NewHTTPClient(2 * time.Second).Get(srv.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatalf("expected loopback connection to be refused")
	}
	if !strings.Contains(err.Error(), "blocked private IP") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStrategyFactory(t *testing.T) {
	f := DefaultStrategies(NewHTTPClient(time.Second), 10)
	for _, typ := range []string{"rss", "RSS", "website"} {
		if _, err := f.Get(typ); err != nil {
			t.Errorf("Get(%q): %v", typ, err)
		}
	}
	if _, err := f.Get("ftp"); err == nil {
		t.Errorf("expected error for unknown type")
	}

	rss := "rss"
	if got := SourceType(models.Source{SourceType: &rss}); got != TypeRSS {
		t.Errorf("SourceType = %q", got)
	}
	if got := SourceType(models.Source{}); got != TypeWebsite {
		t.Errorf("untyped SourceType = %q, want website", got)
	}
}

package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/david/funding-monitor/internal/models"
)

const maxFeedBytes = 5 << 20

// RSSStrategy reads RSS, Atom and JSON feeds through gofeed.
type RSSStrategy struct {
	client   *http.Client
	maxItems int
}

func NewRSSStrategy(client *http.Client, maxItems int) *RSSStrategy {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &RSSStrategy{client: client, maxItems: maxItems}
}

func (s *RSSStrategy) Fetch(ctx context.Context, src models.Source) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("error parsing feed: %w", err)
	}
	if feed == nil {
		return nil, fmt.Errorf("error parsing feed: empty document")
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if s.maxItems > 0 && len(items) >= s.maxItems {
			break
		}
		item, ok := itemFromFeed(entry)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func itemFromFeed(entry *gofeed.Item) (Item, bool) {
	if entry == nil {
		return Item{}, false
	}
	link := strings.TrimSpace(entry.Link)
	if link == "" && len(entry.Links) > 0 {
		link = strings.TrimSpace(entry.Links[0])
	}
	if link == "" {
		link = strings.TrimSpace(entry.GUID)
	}
	if link == "" || strings.TrimSpace(entry.Title) == "" {
		return Item{}, false
	}

	description := entry.Description
	if strings.TrimSpace(description) == "" {
		description = entry.Content
	}

	published := entry.PublishedParsed
	if published == nil {
		published = entry.UpdatedParsed
	}

	var categories []string
	for _, c := range entry.Categories {
		categories = appendUnique(categories, c)
	}

	return Item{
		Title:       entry.Title,
		Link:        link,
		Description: description,
		Published:   published,
		Categories:  categories,
	}, true
}

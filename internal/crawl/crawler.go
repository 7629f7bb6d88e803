package crawl

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/david/funding-monitor/internal/ai"
	"github.com/david/funding-monitor/internal/models"
)

const maxDescriptionRunes = 4000

// Store is the persistence the crawler needs.
type Store interface {
	GetSource(ctx context.Context, id int64) (*models.Source, error)
	ListActiveSources(ctx context.Context) ([]models.Source, error)
	UpsertFundingCall(ctx context.Context, in models.FundingCallInput) (int64, error)
	MarkSourceCrawled(ctx context.Context, id int64, at time.Time) error
}

// Options configures optional scoring and embeddings. A nil Scorer or
// Embedder skips that step. PDFClient, when set, fetches linked PDF call
// documents to look for a deadline the listing did not carry.
type Options struct {
	Timeout   time.Duration
	Scorer    ai.Generator
	Embedder  ai.Embedder
	Interests string
	PDFClient *http.Client
}

type Crawler struct {
	store     Store
	factory   *StrategyFactory
	sanitizer *bluemonday.Policy
	opts      Options
	now       func() time.Time
}

func New(store Store, factory *StrategyFactory, opts Options) *Crawler {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Crawler{
		store:     store,
		factory:   factory,
		sanitizer: bluemonday.UGCPolicy(),
		opts:      opts,
		now:       time.Now,
	}
}

// CrawlSource crawls one source by id, active or not.
func (c *Crawler) CrawlSource(ctx context.Context, id int64) (Stats, error) {
	src, err := c.store.GetSource(ctx, id)
	if err != nil {
		return Stats{SourceID: id}, err
	}
	return c.Crawl(ctx, *src)
}

// CrawlActive crawls every active source in turn. A failing source is
// recorded in its Stats and does not stop the run.
func (c *Crawler) CrawlActive(ctx context.Context) ([]Stats, error) {
	sources, err := c.store.ListActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}

	results := make([]Stats, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		stats, err := c.Crawl(ctx, src)
		if err != nil {
			log.Printf("Crawl of source %d (%s) failed: %v", src.ID, src.Name, err)
		}
		results = append(results, stats)
	}
	return results, nil
}

// Crawl fetches one source, upserts its items by source_url and stamps
// last_crawled_at. The stamp is only written when the fetch succeeded.
func (c *Crawler) Crawl(ctx context.Context, src models.Source) (Stats, error) {
	stats := Stats{
		SourceID:   src.ID,
		SourceName: src.Name,
		SourceType: SourceType(src),
		StartedAt:  c.now(),
	}
	fail := func(err error) (Stats, error) {
		stats.Error = err.Error()
		stats.FinishedAt = c.now()
		return stats, err
	}

	strategy, err := c.factory.Get(stats.SourceType)
	if err != nil {
		return fail(err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	log.Printf("Crawling %s source %q: %s", stats.SourceType, src.Name, src.URL)
	items, err := strategy.Fetch(fetchCtx, src)
	if err != nil {
		return fail(fmt.Errorf("fetch %s: %w", src.URL, err))
	}
	stats.Found = len(items)

	for _, item := range items {
		in := c.toInput(ctx, src, item)
		if _, err := c.store.UpsertFundingCall(ctx, in); err != nil {
			log.Printf("Error saving %s: %v", in.SourceURL, err)
			stats.Errors++
			continue
		}
		stats.Saved++
	}

	if err := c.store.MarkSourceCrawled(ctx, src.ID, c.now()); err != nil {
		log.Printf("Error stamping source %d: %v", src.ID, err)
		stats.Errors++
	}

	stats.FinishedAt = c.now()
	log.Printf("Crawled %q: found=%d saved=%d errors=%d", src.Name, stats.Found, stats.Saved, stats.Errors)
	return stats, nil
}

func (c *Crawler) toInput(ctx context.Context, src models.Source, item Item) models.FundingCallInput {
	title := truncate(htmlToText(item.Title), 500)
	text := truncate(htmlToText(item.Description), maxDescriptionRunes)
	link := canonicalURL(item.Link)

	details := map[string]interface{}{
		"source_url":  link,
		"source_name": src.Name,
		"source_type": SourceType(src),
	}
	if html := strings.TrimSpace(c.sanitizer.Sanitize(item.Description)); html != "" && html != text {
		details["description_html"] = html
	}
	if len(item.Categories) > 0 {
		details["categories"] = item.Categories
	}
	if item.Published != nil {
		details["published_at"] = item.Published.UTC().Format(time.RFC3339)
	}

	deadline := item.Deadline
	if deadline == "" {
		deadline = findDeadline(text)
	}
	if deadline == "" && c.opts.PDFClient != nil && isPDFLink(link) {
		if d, err := c.documentDeadline(ctx, link); err != nil {
			log.Printf("PDF deadline lookup failed for %s: %v", link, err)
		} else if d != "" {
			deadline = d
			details["deadline_source"] = "pdf"
		}
	}
	if deadline != "" {
		details["deadline"] = deadline
	}

	if minAmount, maxAmount, ok := parseAmount(text); ok {
		details["currency"] = "EUR"
		if minAmount > 0 {
			details["min_amount"] = minAmount
		}
		if maxAmount > 0 {
			details["max_amount"] = maxAmount
		}
	}

	in := models.FundingCallInput{
		Title:       title,
		Description: text,
		Deadline:    deadline,
		SourceURL:   link,
		SourceID:    src.ID,
		Details:     details,
	}

	if c.opts.Scorer != nil {
		res, err := ai.ScoreRelevance(ctx, c.opts.Scorer, c.opts.Interests, title, text)
		if err != nil {
			log.Printf("Relevance scoring failed for %s: %v", link, err)
		} else {
			score := res.Score
			in.RelevanceScore = &score
			details["relevance_score"] = score
			if res.Reason != "" {
				details["relevance_reason"] = res.Reason
			}
		}
	}

	if c.opts.Embedder != nil {
		vec, err := c.opts.Embedder.GenerateEmbedding(ctx, title+"\n"+text)
		if err != nil {
			log.Printf("Embedding failed for %s: %v", link, err)
		} else {
			in.Embedding = vec
		}
	}

	return in
}

func (c *Crawler) documentDeadline(ctx context.Context, link string) (string, error) {
	content, err := fetchPDF(ctx, c.opts.PDFClient, link)
	if err != nil {
		return "", err
	}
	text, err := extractPDFText(content)
	if err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	return pdfDeadline(text), nil
}

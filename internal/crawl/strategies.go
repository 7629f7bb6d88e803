package crawl

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/david/funding-monitor/internal/models"
)

const (
	TypeWebsite = "website"
	TypeRSS     = "rss"
)

// Strategy fetches the raw items of one source.
type Strategy interface {
	Fetch(ctx context.Context, src models.Source) ([]Item, error)
}

// StrategyFactory maps source types to implementations.
type StrategyFactory struct {
	strategies map[string]Strategy
}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{
		strategies: make(map[string]Strategy),
	}
}

// DefaultStrategies registers the rss and website strategies on one shared
// HTTP client.
func DefaultStrategies(client *http.Client, maxItems int) *StrategyFactory {
	f := NewStrategyFactory()
	f.Register(TypeRSS, NewRSSStrategy(client, maxItems))
	f.Register(TypeWebsite, NewWebsiteStrategy(client.Transport, client.Timeout, maxItems))
	return f
}

func (f *StrategyFactory) Register(sourceType string, strategy Strategy) {
	f.strategies[strings.ToLower(sourceType)] = strategy
}

func (f *StrategyFactory) Get(sourceType string) (Strategy, error) {
	strategy, ok := f.strategies[strings.ToLower(sourceType)]
	if !ok {
		return nil, fmt.Errorf("no crawl strategy for source type %q", sourceType)
	}
	return strategy, nil
}

// SourceType returns the type the source is crawled as; untyped sources are
// websites.
func SourceType(src models.Source) string {
	if src.SourceType == nil || strings.TrimSpace(*src.SourceType) == "" {
		return TypeWebsite
	}
	return strings.ToLower(strings.TrimSpace(*src.SourceType))
}

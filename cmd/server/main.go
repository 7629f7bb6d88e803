package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/funding-monitor/internal/ai"
	"github.com/david/funding-monitor/internal/api"
	"github.com/david/funding-monitor/internal/auth"
	"github.com/david/funding-monitor/internal/config"
	"github.com/david/funding-monitor/internal/crawl"
	"github.com/david/funding-monitor/internal/dashboard"
	"github.com/david/funding-monitor/internal/db"
	"github.com/david/funding-monitor/internal/fundingcalls"
	"github.com/david/funding-monitor/internal/sources"
)

const sessionPurgeInterval = time.Hour

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	store := db.NewStore(pool)
	authService := auth.NewService(pool, cfg.SessionTTL)

	var mock fundingcalls.RowSource
	if cfg.UseMockData {
		log.Printf("Using mock funding calls from %s", cfg.MockDataURL)
		mock = fundingcalls.NewMockLoader(cfg.MockDataURL)
	}

	dashboards := dashboard.NewRegistry(store)
	dashboards.Attach(authService)
	defer dashboards.Close()

	opts := crawl.Options{Timeout: cfg.CrawlTimeout, Interests: cfg.RelevanceInterests}
	if cfg.AIEnabled() {
		ollama := ai.NewOllamaClient(cfg.OllamaHost, cfg.OllamaEmbedModel, cfg.OllamaGenModel)
		opts.Scorer = ollama
		opts.Embedder = ollama
		log.Printf("Relevance scoring enabled (model %s)", cfg.OllamaGenModel)
	}
	client := crawl.NewHTTPClient(cfg.CrawlTimeout)
	opts.PDFClient = client
	strategies := crawl.DefaultStrategies(client, cfg.CrawlMaxItems)
	crawler := crawl.New(store, strategies, opts)

	srv := api.NewServer(cfg, api.Deps{
		Auth:       authService,
		Calls:      fundingcalls.NewLoader(store, mock),
		Sources:    sources.NewManager(store),
		Dashboards: dashboards,
		Feed:       store,
		Crawler:    crawler,
	})

	go purgeSessions(ctx, authService, dashboards, cfg.SessionTTL)

	go func() {
		log.Printf("Server starting on port %s...", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown failed: %v", err)
	}
}

// purgeSessions ends dashboard sessions whose token expired and drops auth
// sessions that ended more than one TTL ago.
func purgeSessions(ctx context.Context, svc *auth.Service, dashboards *dashboard.Registry, ttl time.Duration) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := dashboards.EndExpired(now); n > 0 {
				log.Printf("Ended %d expired dashboard sessions", n)
			}
			n, err := svc.PurgeExpiredSessions(ctx, now.Add(-ttl))
			if err != nil {
				log.Printf("Session purge failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Purged %d expired sessions", n)
			}
		}
	}
}

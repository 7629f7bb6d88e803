package main

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/funding-monitor/internal/ai"
	"github.com/david/funding-monitor/internal/crawl"
)

var crawlSourceID int64

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl active sources, or one source with --source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		cfg := env.cfg
		opts := crawl.Options{Timeout: cfg.CrawlTimeout, Interests: cfg.RelevanceInterests}
		if cfg.AIEnabled() {
			ollama := ai.NewOllamaClient(cfg.OllamaHost, cfg.OllamaEmbedModel, cfg.OllamaGenModel)
			opts.Scorer = ollama
			opts.Embedder = ollama
		}
		client := crawl.NewHTTPClient(cfg.CrawlTimeout)
		opts.PDFClient = client
		strategies := crawl.DefaultStrategies(client, cfg.CrawlMaxItems)
		crawler := crawl.New(env.db, strategies, opts)

		if crawlSourceID > 0 {
			stats, err := crawler.CrawlSource(cmd.Context(), crawlSourceID)
			renderStats(cmd.OutOrStdout(), []crawl.Stats{stats})
			return err
		}

		stats, err := crawler.CrawlActive(cmd.Context())
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			log.Printf("No active sources")
			return nil
		}
		renderStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func init() {
	crawlCmd.Flags().Int64Var(&crawlSourceID, "source", 0, "Crawl only this source id")
	rootCmd.AddCommand(crawlCmd)
}

func renderStats(w io.Writer, stats []crawl.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Type", "Found", "Saved", "Errors", "Duration", "Error"})

	var found, saved int
	for _, s := range stats {
		found += s.Found
		saved += s.Saved
		duration := "-"
		if !s.FinishedAt.IsZero() && !s.StartedAt.IsZero() {
			duration = s.FinishedAt.Sub(s.StartedAt).Round(100 * time.Millisecond).String()
		}
		name := s.SourceName
		if name == "" {
			name = fmt.Sprintf("#%d", s.SourceID)
		}
		t.AppendRow(table.Row{name, s.SourceType, s.Found, s.Saved, s.Errors, duration, s.Error})
	}
	t.AppendFooter(table.Row{"Total", "", found, saved})
	t.Render()
}

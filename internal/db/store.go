package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/david/funding-monitor/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const fundingCallCols = `id, title, description, deadline, source_url, funding_amount, duration,
	relevance_score, details, source_id, created_at, updated_at`

func scanFundingCall(scan func(dest ...interface{}) error) (models.FundingCall, error) {
	var c models.FundingCall
	var details []byte

	err := scan(
		&c.ID, &c.Title, &c.Description, &c.Deadline, &c.SourceURL, &c.FundingAmount, &c.Duration,
		&c.RelevanceScore, &details, &c.SourceID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	if len(details) > 0 {
		c.Details = json.RawMessage(details)
	}
	return c, nil
}

// ListFundingCalls returns every call ordered by stored relevance score.
// Final ordering for display happens after normalization.
func (s *Store) ListFundingCalls(ctx context.Context) ([]models.FundingCall, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM funding_calls
		ORDER BY relevance_score DESC NULLS LAST, id DESC
	`, fundingCallCols)
	return s.queryFundingCalls(ctx, sql)
}

// RecentFundingCalls returns the newest calls by creation time.
func (s *Store) RecentFundingCalls(ctx context.Context, limit int) ([]models.FundingCall, error) {
	if limit <= 0 {
		limit = 50
	}
	sql := fmt.Sprintf(`
		SELECT %s
		FROM funding_calls
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, fundingCallCols)
	return s.queryFundingCalls(ctx, sql, limit)
}

func (s *Store) queryFundingCalls(ctx context.Context, sql string, args ...interface{}) ([]models.FundingCall, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query funding calls: %w", err)
	}
	defer rows.Close()

	calls := []models.FundingCall{}
	for rows.Next() {
		c, err := scanFundingCall(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan funding call: %w", err)
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// UpsertFundingCall inserts a crawled call or refreshes the existing row with
// the same source_url. The details blob is merged, not replaced.
func (s *Store) UpsertFundingCall(ctx context.Context, in models.FundingCallInput) (int64, error) {
	details := in.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return 0, fmt.Errorf("marshal details: %w", err)
	}

	var embedding interface{}
	if len(in.Embedding) > 0 {
		embedding = pgvector.NewVector(in.Embedding)
	}

	var sourceID *int64
	if in.SourceID > 0 {
		sourceID = &in.SourceID
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO funding_calls (title, description, deadline, source_url, source_id, relevance_score, details, embedding)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7::jsonb, $8)
		ON CONFLICT (source_url) DO UPDATE SET
			updated_at = NOW(),
			title = EXCLUDED.title,
			description = COALESCE(EXCLUDED.description, funding_calls.description),
			deadline = COALESCE(EXCLUDED.deadline, funding_calls.deadline),
			source_id = COALESCE(EXCLUDED.source_id, funding_calls.source_id),
			relevance_score = COALESCE(EXCLUDED.relevance_score, funding_calls.relevance_score),
			details = funding_calls.details || EXCLUDED.details,
			embedding = COALESCE(EXCLUDED.embedding, funding_calls.embedding)
		RETURNING id
	`, in.Title, in.Description, in.Deadline, in.SourceURL, sourceID, in.RelevanceScore, string(detailsJSON), embedding).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert funding call %q: %w", in.SourceURL, err)
	}
	return id, nil
}

func (s *Store) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return collectStats(ctx, s.pool)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func collectStats(ctx context.Context, q rowQuerier) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM funding_calls").Scan(&total); err != nil {
		return nil, fmt.Errorf("count funding calls: %w", err)
	}
	stats["funding_calls"] = total

	var relevant int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM funding_calls WHERE relevance_score > 0.5 OR (details->>'is_relevant')::boolean IS TRUE").Scan(&relevant); err != nil {
		return nil, fmt.Errorf("count relevant calls: %w", err)
	}
	stats["relevant"] = relevant

	var sources, active int
	if err := q.QueryRow(ctx, "SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM sources").Scan(&sources, &active); err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}
	stats["sources"] = sources
	stats["active_sources"] = active

	var lastCrawl *time.Time
	if err := q.QueryRow(ctx, "SELECT MAX(last_crawled_at) FROM sources").Scan(&lastCrawl); err != nil {
		return nil, fmt.Errorf("last crawl time: %w", err)
	}
	stats["last_crawled_at"] = lastCrawl

	return stats, nil
}

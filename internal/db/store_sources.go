package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/david/funding-monitor/internal/models"
	"github.com/jackc/pgx/v5"
)

const sourceCols = `id, name, url, description, source_type, is_active, last_crawled_at, created_at`

func scanSource(scan func(dest ...interface{}) error) (models.Source, error) {
	var src models.Source
	err := scan(&src.ID, &src.Name, &src.URL, &src.Description, &src.SourceType, &src.IsActive, &src.LastCrawledAt, &src.CreatedAt)
	return src, err
}

func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	return s.querySources(ctx, fmt.Sprintf(`SELECT %s FROM sources ORDER BY created_at DESC, id DESC`, sourceCols))
}

func (s *Store) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	return s.querySources(ctx, fmt.Sprintf(`SELECT %s FROM sources WHERE is_active = TRUE ORDER BY id`, sourceCols))
}

func (s *Store) querySources(ctx context.Context, sql string, args ...interface{}) ([]models.Source, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	out := []models.Source{}
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM sources WHERE id = $1`, sourceCols), id)
	src, err := scanSource(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *Store) InsertSource(ctx context.Context, in models.SourceInsert) (*models.Source, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	sourceType := "website"
	if in.SourceType != nil && *in.SourceType != "" {
		sourceType = *in.SourceType
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO sources (name, url, description, source_type, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s
	`, sourceCols), in.Name, in.URL, in.Description, sourceType, active)

	src, err := scanSource(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	return &src, nil
}

// buildSourceUpdate renders the UPDATE for the non-nil fields of u. The id is
// always the last argument.
func buildSourceUpdate(id int64, u models.SourceUpdate) (string, []interface{}) {
	var sets []string
	var args []interface{}
	argIdx := 1

	add := func(col string, v interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, v)
		argIdx++
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.URL != nil {
		add("url", *u.URL)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.SourceType != nil {
		add("source_type", *u.SourceType)
	}
	if u.IsActive != nil {
		add("is_active", *u.IsActive)
	}

	sql := fmt.Sprintf(`UPDATE sources SET %s WHERE id = $%d RETURNING %s`, strings.Join(sets, ", "), argIdx, sourceCols)
	args = append(args, id)
	return sql, args
}

func (s *Store) UpdateSource(ctx context.Context, id int64, u models.SourceUpdate) (*models.Source, error) {
	if u.IsEmpty() {
		return s.GetSource(ctx, id)
	}

	sql, args := buildSourceUpdate(id, u)
	src, err := scanSource(s.pool.QueryRow(ctx, sql, args...).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update source %d: %w", id, err)
	}
	return &src, nil
}

func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkSourceCrawled(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE sources SET last_crawled_at = $2 WHERE id = $1`, id, at)
	return err
}

// SeedSources inserts sources whose url is not yet known and reports how
// many rows were added.
func (s *Store) SeedSources(ctx context.Context, in []models.SourceInsert) (int, error) {
	added := 0
	for _, src := range in {
		sourceType := "website"
		if src.SourceType != nil && *src.SourceType != "" {
			sourceType = *src.SourceType
		}
		active := true
		if src.IsActive != nil {
			active = *src.IsActive
		}
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO sources (name, url, description, source_type, is_active)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (url) DO NOTHING
		`, src.Name, src.URL, src.Description, sourceType, active)
		if err != nil {
			return added, fmt.Errorf("seed source %q: %w", src.URL, err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

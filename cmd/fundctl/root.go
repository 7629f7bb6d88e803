package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/david/funding-monitor/internal/config"
	"github.com/david/funding-monitor/internal/db"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:           "fundctl",
	Short:         "Administer the funding monitor database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")
}

// environment is what every subcommand works against.
type environment struct {
	cfg  *config.Config
	pool *pgxpool.Pool
	db   *db.Store
}

func (e *environment) close() {
	e.pool.Close()
}

// openEnvironment connects, migrates and returns the store. The flag wins
// over DATABASE_URL.
func openEnvironment(ctx context.Context) (*environment, error) {
	cfg := config.Load()
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := db.ApplyMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &environment{cfg: cfg, pool: pool, db: db.NewStore(pool)}, nil
}

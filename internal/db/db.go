// Package db opens the Postgres database and applies the schema.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the tables and provisions one counter row per feed shard.
// It is safe to run repeatedly. Raising the shard count later adds rows;
// existing rows are left alone.
func Migrate(ctx context.Context, db *sql.DB, shards int) error {
	if shards <= 0 {
		shards = 1
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO feed_shards (shard, last_seq)
SELECT s, 0 FROM generate_series(0, $1 - 1) AS s
ON CONFLICT (shard) DO NOTHING`, shards); err != nil {
		return fmt.Errorf("provision feed shards: %w", err)
	}
	return tx.Commit()
}

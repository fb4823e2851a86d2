package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL of every table the repositories touch.
//
//go:embed schema.sql
var Schema string

// Seed is the stock chart of accounts and currencies. Rows that already exist
// are left alone.
//
//go:embed seed.sql
var Seed string

// ApplySchema executes Schema against the pool. Intended for tests and fresh
// development databases.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("platform/db: apply schema: %w", err)
	}
	return nil
}

// ApplySeed loads Seed.
func ApplySeed(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Seed); err != nil {
		return fmt.Errorf("platform/db: apply seed: %w", err)
	}
	return nil
}

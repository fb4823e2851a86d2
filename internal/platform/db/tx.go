package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxStarter is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn inside a ReadCommitted transaction. Rows taken with
// SELECT ... FOR UPDATE are re-read after the lock is granted, so writers on
// the same stock row queue behind each other instead of failing with a
// serialization error. The transaction is rolled back when fn returns an
// error or panics, and committed otherwise.
func WithTx(ctx context.Context, starter TxStarter, fn func(pgx.Tx) error) error {
	if starter == nil {
		return errors.New("platform/db: no connection")
	}
	tx, err := starter.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}

// Package pgstore implements store.Store on PostgreSQL through database/sql and lib/pq.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/mcdev12/tourney-auction/go/internal/sqlutil"
)

//go:embed schema.sql
var schema string

// NotifyChannel is the channel the outbox trigger notifies on every insert.
const NotifyChannel = "auction_outbox_events"

// Store runs auction transactions against Postgres.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply auction schema: %w", err)
	}
	return nil
}

// RunInTx takes a transaction-scoped advisory lock on the partition before running fn.
func (s *Store) RunInTx(ctx context.Context, key models.PartitionKey, fn func(tx store.Tx) error) error {
	return s.run(ctx, func(q *queries) error {
		if _, err := q.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
			return fmt.Errorf("failed to lock partition %s: %w", key, err)
		}
		return fn(q)
	})
}

// Run implements store.Store.
func (s *Store) Run(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.run(ctx, func(q *queries) error { return fn(q) })
}

func (s *Store) run(ctx context.Context, fn func(q *queries) error) error {
	err := sqlutil.Run(ctx, s.db, nil, func(tx *sql.Tx) *queries { return &queries{tx: tx} }, fn)
	return translate(err)
}

// translate maps retryable Postgres failures onto ErrConcurrencyConflict.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "40001", "40P01", "55P03":
		return fmt.Errorf("%s: %w", pqErr.Message, errors.Join(auctionerr.ErrConcurrencyConflict, err))
	case "23505":
		if pqErr.Constraint == "auction_rounds_one_active_idx" {
			return fmt.Errorf("%s: %w", pqErr.Message, auctionerr.ErrRoundAlreadyActive)
		}
		return fmt.Errorf("%s: %w", pqErr.Message, errors.Join(auctionerr.ErrConcurrencyConflict, err))
	}
	return err
}

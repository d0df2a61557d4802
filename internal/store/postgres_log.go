/**
 * @description
 * This file provides the PostgreSQL implementation of the `TransactionLog`
 * interface. It is selected at boot when DATABASE_URL is configured and is
 * the implementation to use when more than one orchestrator instance must
 * share a single append order.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bankingapp/transaction-service/internal/domain"
)

// PostgresLog is a concrete implementation of the TransactionLog interface
// for PostgreSQL. Insertion order is preserved by a bigserial sequence
// column rather than timestamps, which can collide.
type PostgresLog struct {
	db *pgxpool.Pool
}

// NewPostgresLog creates a new instance of PostgresLog.
func NewPostgresLog(db *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{db: db}
}

// EnsureSchema creates the transactions table when it does not exist yet.
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	_, err := l.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			seq        BIGSERIAL PRIMARY KEY,
			id         UUID NOT NULL UNIQUE,
			sender     TEXT NOT NULL,
			receiver   TEXT NOT NULL,
			amount     BIGINT NOT NULL,
			kind       TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// Append inserts the record. Records are never updated or deleted.
func (l *PostgresLog) Append(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil {
		return ErrNilTransaction
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO transactions (id, sender, receiver, amount, kind, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tx.ID, tx.Sender, tx.Receiver, tx.Amount, tx.Kind, tx.Status, tx.Timestamp)
	return err
}

// HistoryFor returns every record where identity appears as sender or
// receiver, oldest first.
func (l *PostgresLog) HistoryFor(ctx context.Context, identity string) ([]domain.Transaction, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, sender, receiver, amount, kind, status, created_at
		FROM transactions
		WHERE sender = $1 OR receiver = $1
		ORDER BY seq
	`, identity)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// All returns the full log in insertion order.
func (l *PostgresLog) All(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, sender, receiver, amount, kind, status, created_at
		FROM transactions
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// Count returns the number of appended records.
func (l *PostgresLog) Count(ctx context.Context) (int64, error) {
	var count int64
	err := l.db.QueryRow(ctx, `SELECT count(*) FROM transactions`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	out := make([]domain.Transaction, 0)
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.Sender, &tx.Receiver, &tx.Amount, &tx.Kind, &tx.Status, &tx.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

/**
 * @description
 * This file defines the `TransactionLog` interface, the contract for the
 * append-only store of transaction records. Defining an interface decouples
 * the orchestrator from the concrete store, so the default in-memory log can
 * be swapped for the Postgres-backed one (or a future shared store when
 * multiple orchestrator instances run) without touching business logic.
 */

package store

import (
	"context"
	"errors"

	"github.com/bankingapp/transaction-service/internal/domain"
)

var (
	ErrNilTransaction = errors.New("nil transaction record")
)

// TransactionLog is the append-only, queryable store of transaction records.
// Query results must never include a partially appended record, and returned
// slices are snapshots the caller may retain.
type TransactionLog interface {
	// Append stores the record in insertion order. It never rejects a
	// well-formed record.
	Append(ctx context.Context, tx *domain.Transaction) error

	// HistoryFor returns every record where identity appears as sender or
	// receiver, oldest first.
	HistoryFor(ctx context.Context, identity string) ([]domain.Transaction, error)

	// All returns the full ordered sequence of records, oldest first.
	All(ctx context.Context) ([]domain.Transaction, error)

	// Count returns the number of appended records.
	Count(ctx context.Context) (int64, error)
}

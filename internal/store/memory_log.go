/**
 * @description
 * In-memory implementation of the `TransactionLog` interface. This is the
 * default store when no database is configured, replacing the ambient global
 * array the first version of the platform kept transaction state in.
 *
 * A single RWMutex serializes appends against snapshot reads, so a query can
 * never observe a half-appended record. All query results are copies.
 */

package store

import (
	"context"
	"sync"

	"github.com/bankingapp/transaction-service/internal/domain"
)

// MemoryLog is a mutex-guarded, append-only slice of transaction records.
type MemoryLog struct {
	mu      sync.RWMutex
	records []domain.Transaction
}

// NewMemoryLog creates an empty in-memory transaction log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append stores a copy of the record in insertion order.
func (l *MemoryLog) Append(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil {
		return ErrNilTransaction
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, *tx)
	return nil
}

// HistoryFor returns every record where identity appears as sender or
// receiver, oldest first. The result is a snapshot; mutating it does not
// affect the log, and repeated calls without new appends are identical.
func (l *MemoryLog) HistoryFor(ctx context.Context, identity string) ([]domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Transaction, 0)
	for _, rec := range l.records {
		if rec.Sender == identity || rec.Receiver == identity {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns a snapshot of the full log in insertion order.
func (l *MemoryLog) All(ctx context.Context) ([]domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Transaction, len(l.records))
	copy(out, l.records)
	return out, nil
}

// Count returns the number of appended records.
func (l *MemoryLog) Count(ctx context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.records)), nil
}

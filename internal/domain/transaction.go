/**
 * @description
 * This file defines the core domain models for the transaction-service: the
 * transaction record the orchestrator appends to the log, the intent DTO
 * received over HTTP, and the event payloads published to the message broker.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data.
 * - A transaction record is immutable once appended; its status is decided
 *   before the append, so there is no pending state.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// SinkIdentity is the sentinel receiver representing funds entering or
// leaving the system boundary.
const SinkIdentity = "bank"

// Transaction kinds accepted by the orchestrator.
const (
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
	KindTransfer   = "transfer"
)

// Transaction statuses. Every remote sub-step is awaited before the record is
// written, so records are either completed or failed, never pending.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction is the append-only log record describing one movement of funds.
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	Sender    string    `json:"from"`
	Receiver  string    `json:"to"`
	Amount    int64     `json:"amount"`
	Kind      string    `json:"type"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionIntent is the DTO for incoming transaction API requests.
// Receiver is optional; an empty receiver is treated as the sink.
type TransactionIntent struct {
	Sender   string `json:"from"`
	Receiver string `json:"to,omitempty"`
	Amount   int64  `json:"amount"`
	Kind     string `json:"type"`
}

// CompletedEvent is the message payload published after a transaction record
// has been appended to the log.
type CompletedEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Sender        string    `json:"from"`
	Receiver      string    `json:"to"`
	Amount        int64     `json:"amount"`
	Kind          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReconcileRequiredEvent is published when a debit landed but a later step
// failed, leaving the ledger in a state operators must reconcile manually.
type ReconcileRequiredEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Sender        string    `json:"from"`
	Receiver      string    `json:"to"`
	Amount        int64     `json:"amount"`
	Kind          string    `json:"type"`
	FailedStep    string    `json:"failed_step"`
	Timestamp     time.Time `json:"timestamp"`
}

/**
 * @description
 * This file contains the core orchestration logic for the transaction-service.
 * The `Service` struct turns a transfer intent into either a durable completed
 * transaction record or a rejected request, delegating all balance state to
 * the external ledger (account-service).
 *
 * Key behavior:
 * - Validation failures and insufficient funds are detected before any remote
 *   state is mutated and produce no log entry.
 * - Deposits resolve the sender through a balance read first, which lazily
 *   creates accounts for directory-known identities.
 * - A failure after the debit landed has no automatic compensation: the
 *   service appends a failed record, publishes a reconcile event, and
 *   surfaces a PartialFailureError so operators can reconcile manually.
 *
 * @dependencies
 * - github.com/google/uuid: For record ID generation.
 * - internal/domain, internal/store: Domain models and the transaction log.
 * - pkg/ledgerclient, pkg/directoryclient: Sentinel errors of the consumed
 *   upstream contracts.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bankingapp/transaction-service/internal/domain"
	"github.com/bankingapp/transaction-service/internal/store"
	"github.com/bankingapp/transaction-service/pkg/ledgerclient"
)

var (
	ErrSenderRequired  = errors.New("sender is required")
	ErrKindRequired    = errors.New("transaction type is required")
	ErrInvalidAmount   = errors.New("amount must be a positive number")
	ErrUnsupportedKind = errors.New("unsupported transaction type")
)

// Steps at which a partial failure can occur after the debit landed.
const (
	StepCredit = "credit"
	StepRecord = "record"
)

// RateLimitedError is returned when a sender exceeds the configured
// submission rate.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", e.RetryAfterSeconds)
}

// PartialFailureError reports that a debit landed but a later step failed.
// The ledger is left debited without the matching credit or record; the
// transaction ID points at the failed record appended for reconciliation.
type PartialFailureError struct {
	TransactionID uuid.UUID
	Step          string
	Err           error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("transaction %s left inconsistent at step %s: %v", e.TransactionID, e.Step, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// Ledger is the contract the orchestrator consumes from the account-service.
// Adjustments must be atomic per account, and a debit that would drive the
// balance negative must fail with ledgerclient.ErrInsufficientFunds.
type Ledger interface {
	GetBalance(ctx context.Context, identity string) (int64, error)
	Credit(ctx context.Context, identity string, amount int64) (int64, error)
	Debit(ctx context.Context, identity string, amount int64) (int64, error)
}

// Directory resolves identities against the user-service.
type Directory interface {
	Exists(ctx context.Context, identity string) error
}

// Publisher publishes lifecycle events to the message broker.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// RateLimiter counts submissions per subject within a window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core transfer orchestration logic.
type Service struct {
	logStore  store.TransactionLog
	ledger    Ledger
	directory Directory
	events    Publisher
	exchange  string

	rateLimiter       RateLimiter
	submitLimitPerMin int
}

// NewService creates a new orchestrator instance.
func NewService(logStore store.TransactionLog, ledger Ledger, directory Directory, events Publisher, exchange string) *Service {
	return &Service{
		logStore:  logStore,
		ledger:    ledger,
		directory: directory,
		events:    events,
		exchange:  exchange,
	}
}

// ConfigureSubmitRateLimit sets the per-sender submissions allowed per
// minute. Zero disables the limit.
func (s *Service) ConfigureSubmitRateLimit(perMinute int) {
	s.submitLimitPerMin = perMinute
}

// SetRateLimiter installs the distributed rate limiter backend.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.rateLimiter = limiter
}

// Submit validates the intent and runs the remote call sequence for its
// kind. Validation and the balance-sufficiency check happen before any
// mutation, so rejected requests have no side effects and write no record.
func (s *Service) Submit(ctx context.Context, intent domain.TransactionIntent) (*domain.Transaction, error) {
	sender := strings.TrimSpace(intent.Sender)
	receiver := strings.TrimSpace(intent.Receiver)
	kind := strings.TrimSpace(intent.Kind)

	if sender == "" {
		return nil, ErrSenderRequired
	}
	if kind == "" {
		return nil, ErrKindRequired
	}
	if intent.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	switch kind {
	case domain.KindDeposit, domain.KindWithdrawal, domain.KindTransfer:
	default:
		return nil, ErrUnsupportedKind
	}
	if receiver == "" {
		receiver = domain.SinkIdentity
	}

	if err := s.consumeSubmitBudget(ctx, sender); err != nil {
		return nil, err
	}

	log.Printf("level=info component=orchestrator msg=\"intent accepted\" kind=%s sender=%s receiver=%s amount=%d", kind, sender, receiver, intent.Amount)

	switch kind {
	case domain.KindDeposit:
		return s.deposit(ctx, sender, receiver, intent.Amount)
	case domain.KindWithdrawal:
		// A withdrawal is the debit-only transfer path: funds leave through
		// the sink and no account is credited.
		return s.transfer(ctx, sender, domain.SinkIdentity, intent.Amount, domain.KindWithdrawal)
	default:
		return s.transfer(ctx, sender, receiver, intent.Amount, domain.KindTransfer)
	}
}

// HistoryFor returns the records where identity appears as sender or
// receiver, oldest first.
func (s *Service) HistoryFor(ctx context.Context, identity string) ([]domain.Transaction, error) {
	return s.logStore.HistoryFor(ctx, identity)
}

// AllTransactions returns the full ordered log.
func (s *Service) AllTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.logStore.All(ctx)
}

// TransactionCount returns the number of appended records.
func (s *Service) TransactionCount(ctx context.Context) (int64, error) {
	return s.logStore.Count(ctx)
}

func (s *Service) consumeSubmitBudget(ctx context.Context, sender string) error {
	if s.rateLimiter == nil || s.submitLimitPerMin <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "submit", sender, s.submitLimitPerMin, time.Minute)
	if err != nil {
		// Rate limiting is protective, not load-bearing; a limiter outage
		// must not block money movement.
		log.Printf("level=warn component=orchestrator msg=\"rate limiter unavailable; allowing request\" sender=%s err=%v", sender, err)
		return nil
	}
	if count > s.submitLimitPerMin {
		return &RateLimitedError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// deposit credits the sender's account. The preceding balance read triggers
// the ledger's lazy account creation and rejects identities unknown to the
// directory before any mutation. The record keeps the caller's receiver; an
// omitted receiver has already been defaulted to the sink.
func (s *Service) deposit(ctx context.Context, sender, receiver string, amount int64) (*domain.Transaction, error) {
	if _, err := s.ledger.GetBalance(ctx, sender); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Credit(ctx, sender, amount); err != nil {
		return nil, err
	}

	record := s.newRecord(sender, receiver, amount, domain.KindDeposit)
	if err := s.appendCompleted(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) transfer(ctx context.Context, sender, receiver string, amount int64, kind string) (*domain.Transaction, error) {
	// Resolve the receiver before touching any balance so that a typo fails
	// with NotFound instead of stranding a debit.
	if receiver != domain.SinkIdentity {
		if err := s.directory.Exists(ctx, receiver); err != nil {
			return nil, err
		}
		// The ledger creates accounts lazily on balance reads only; a credit
		// to a never-read account fails. Warm the receiver's account here so
		// the credit cannot strand the debit.
		if _, err := s.ledger.GetBalance(ctx, receiver); err != nil {
			return nil, err
		}
	}

	balance, err := s.ledger.GetBalance(ctx, sender)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, ledgerclient.ErrInsufficientFunds
	}

	// The ledger's subtract is itself conditional on sufficiency, so a
	// concurrent spend between the read above and this debit surfaces as
	// ErrInsufficientFunds here rather than an overdraft.
	if _, err := s.ledger.Debit(ctx, sender, amount); err != nil {
		return nil, err
	}

	record := s.newRecord(sender, receiver, amount, kind)

	if receiver != domain.SinkIdentity {
		if _, err := s.ledger.Credit(ctx, receiver, amount); err != nil {
			return nil, s.partialFailure(ctx, record, StepCredit, err)
		}
	}

	if err := s.appendCompleted(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) newRecord(sender, receiver string, amount int64, kind string) *domain.Transaction {
	return &domain.Transaction{
		ID:        uuid.New(),
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Kind:      kind,
		Status:    domain.StatusCompleted,
		Timestamp: time.Now().UTC(),
	}
}

// appendCompleted writes the completed record. Money has already moved by
// the time this runs, so an append failure is a partial failure, not a
// rollback.
func (s *Service) appendCompleted(ctx context.Context, record *domain.Transaction) error {
	if err := s.logStore.Append(ctx, record); err != nil {
		return s.partialFailure(ctx, record, StepRecord, err)
	}
	s.publishCompleted(ctx, record)
	return nil
}

// partialFailure marks the record failed, appends it for reconciliation, and
// publishes a reconcile event. There is no compensating ledger call: the
// adjust primitive is not idempotent, so a blind reversal could double-refund
// when the failed call actually landed.
func (s *Service) partialFailure(ctx context.Context, record *domain.Transaction, step string, cause error) error {
	record.Status = domain.StatusFailed
	log.Printf("CRITICAL: level=error component=orchestrator msg=\"partial failure; manual reconciliation required\" transaction_id=%s step=%s sender=%s receiver=%s amount=%d err=%v",
		record.ID, step, record.Sender, record.Receiver, record.Amount, cause)

	if step != StepRecord {
		if err := s.logStore.Append(ctx, record); err != nil {
			log.Printf("CRITICAL: level=error component=orchestrator msg=\"failed record could not be appended\" transaction_id=%s err=%v", record.ID, err)
		}
	}

	if s.events != nil {
		event := domain.ReconcileRequiredEvent{
			TransactionID: record.ID,
			Sender:        record.Sender,
			Receiver:      record.Receiver,
			Amount:        record.Amount,
			Kind:          record.Kind,
			FailedStep:    step,
			Timestamp:     time.Now().UTC(),
		}
		if err := s.events.Publish(ctx, s.exchange, "transaction.reconcile.required", event); err != nil {
			log.Printf("level=warn component=orchestrator msg=\"reconcile event publish failed\" transaction_id=%s err=%v", record.ID, err)
		}
	}

	return &PartialFailureError{TransactionID: record.ID, Step: step, Err: cause}
}

func (s *Service) publishCompleted(ctx context.Context, record *domain.Transaction) {
	if s.events == nil {
		return
	}
	event := domain.CompletedEvent{
		TransactionID: record.ID,
		Sender:        record.Sender,
		Receiver:      record.Receiver,
		Amount:        record.Amount,
		Kind:          record.Kind,
		Timestamp:     record.Timestamp,
	}
	if err := s.events.Publish(ctx, s.exchange, "transaction.completed", event); err != nil {
		log.Printf("level=warn component=orchestrator msg=\"completed event publish failed\" transaction_id=%s err=%v", record.ID, err)
	}
}

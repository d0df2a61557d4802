/**
 * @description
 * This file contains the HTTP handlers for the transaction-service API.
 * Handlers parse incoming requests, call the orchestrator, and map its error
 * taxonomy onto HTTP status codes: validation and insufficient funds become
 * 400, unknown identities 404, rate limiting 429, and upstream failures 500.
 * Partial failures carry a distinct body so operators can tell money moved.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/domain: Service logic and models.
 * - pkg/ledgerclient, pkg/directoryclient: Upstream sentinel errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bankingapp/transaction-service/internal/app"
	"github.com/bankingapp/transaction-service/internal/domain"
	"github.com/bankingapp/transaction-service/pkg/directoryclient"
	"github.com/bankingapp/transaction-service/pkg/ledgerclient"
)

// TransactionHandlers holds the orchestrator that handlers will use.
type TransactionHandlers struct {
	service *app.Service
}

// NewTransactionHandlers creates a new instance of TransactionHandlers.
func NewTransactionHandlers(service *app.Service) *TransactionHandlers {
	return &TransactionHandlers{service: service}
}

// CreateTransactionHandler handles POST /transactions.
func (h *TransactionHandlers) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var intent domain.TransactionIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		log.Printf("level=warn component=api endpoint=create_transaction outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.service.Submit(r.Context(), intent)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "Transaction completed",
		"transaction": tx,
	})
}

func (h *TransactionHandlers) writeSubmitError(w http.ResponseWriter, err error) {
	var rateLimited *app.RateLimitedError
	var partial *app.PartialFailureError

	switch {
	// A partial failure wraps its cause, which may itself be an upstream
	// sentinel. It must be matched before any sentinel case: money has
	// already moved, so the response may never collapse into a plain 4xx.
	case errors.As(err, &partial):
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":          "Transaction failed after funds moved; manual reconciliation required",
			"code":           "partial_failure",
			"transaction_id": partial.TransactionID.String(),
		})

	case errors.Is(err, app.ErrSenderRequired),
		errors.Is(err, app.ErrKindRequired),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrUnsupportedKind):
		log.Printf("level=warn component=api endpoint=create_transaction outcome=reject reason=validation err=%v", err)
		h.writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, ledgerclient.ErrInsufficientFunds):
		log.Printf("level=warn component=api endpoint=create_transaction outcome=reject reason=insufficient_funds")
		h.writeError(w, http.StatusBadRequest, "Insufficient funds")

	case errors.Is(err, ledgerclient.ErrAccountNotFound),
		errors.Is(err, directoryclient.ErrUserNotFound):
		log.Printf("level=warn component=api endpoint=create_transaction outcome=reject reason=identity_not_found err=%v", err)
		h.writeError(w, http.StatusNotFound, "User not found")

	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(rateLimited.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many transactions, slow down")

	default:
		log.Printf("level=error component=api endpoint=create_transaction outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Transaction failed")
	}
}

// HistoryHandler handles GET /transactions/{identity}.
func (h *TransactionHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	transactions, err := h.service.HistoryFor(r.Context(), identity)
	if err != nil {
		log.Printf("level=error component=api endpoint=history outcome=failed identity=%s err=%v", identity, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity":     identity,
		"transactions": transactions,
	})
}

// ListHandler handles GET /transactions.
func (h *TransactionHandlers) ListHandler(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.service.AllTransactions(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
	})
}

// HealthHandler reports service status along with the current log size.
func (h *TransactionHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.TransactionCount(r.Context())
	if err != nil {
		log.Printf("level=warn component=api endpoint=health msg=\"transaction count unavailable\" err=%v", err)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "Online",
		"service":            "Transaction Service",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"total_transactions": count,
	})
}

// writeJSON is a helper for writing JSON responses.
func (h *TransactionHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *TransactionHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

/**
 * @description
 * This package provides a client for the account-service, the external ledger
 * of record for account balances. It wraps the balance read and adjust
 * endpoints, maps HTTP outcomes onto sentinel errors, and guards the upstream
 * with a circuit breaker so a dead account-service fails fast instead of
 * tying up request workers.
 *
 * @dependencies
 * - github.com/sony/gobreaker: Circuit breaker around upstream calls.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrAccountNotFound means the identity has no resolvable account and the
	// ledger could not lazily create one, i.e. the identity is unknown to the
	// directory.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds means the ledger rejected a debit that would have
	// driven the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Operations accepted by the ledger's balance adjust endpoint.
const (
	opAdd      = "add"
	opSubtract = "subtract"
)

// Client is a client for the account-service balance API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new ledger client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ledger",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type balanceResponse struct {
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
}

type adjustRequest struct {
	Amount    int64  `json:"amount"`
	Operation string `json:"operation"`
}

type adjustResponse struct {
	Message    string `json:"message"`
	Username   string `json:"username"`
	NewBalance int64  `json:"new_balance"`
}

// ledgerResult carries the raw outcome of one upstream call through the
// breaker. Business rejections (400, 404) count as breaker successes so they
// never open the circuit; only transport errors and 5xx responses do.
type ledgerResult struct {
	status int
	body   []byte
}

// GetBalance returns the current balance for identity. The ledger lazily
// creates an account with the seed balance when the identity exists in the
// directory, so ErrAccountNotFound here means the identity itself is unknown.
func (c *Client) GetBalance(ctx context.Context, identity string) (int64, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/balance", c.baseURL, identity)
	res, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	if res.status == http.StatusNotFound {
		return 0, ErrAccountNotFound
	}
	if res.status >= 400 {
		return 0, fmt.Errorf("ledger returned status %d", res.status)
	}

	var parsed balanceResponse
	if err := json.Unmarshal(res.body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode balance response: %w", err)
	}
	return parsed.Balance, nil
}

// Credit adds amount to the identity's balance and returns the new balance.
func (c *Client) Credit(ctx context.Context, identity string, amount int64) (int64, error) {
	return c.adjust(ctx, identity, amount, opAdd)
}

// Debit subtracts amount from the identity's balance and returns the new
// balance. The operation is atomic per account: the ledger rejects a debit
// that would drive the balance negative with ErrInsufficientFunds.
func (c *Client) Debit(ctx context.Context, identity string, amount int64) (int64, error) {
	return c.adjust(ctx, identity, amount, opSubtract)
}

func (c *Client) adjust(ctx context.Context, identity string, amount int64, operation string) (int64, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/balance", c.baseURL, identity)
	res, err := c.do(ctx, http.MethodPut, endpoint, adjustRequest{Amount: amount, Operation: operation})
	if err != nil {
		return 0, err
	}
	switch {
	case res.status == http.StatusNotFound:
		return 0, ErrAccountNotFound
	case res.status == http.StatusBadRequest && operation == opSubtract:
		return 0, ErrInsufficientFunds
	case res.status >= 400:
		return 0, fmt.Errorf("ledger returned status %d", res.status)
	}

	var parsed adjustResponse
	if err := json.Unmarshal(res.body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode adjust response: %w", err)
	}
	return parsed.NewBalance, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}) (*ledgerResult, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			reqBody = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("ledger returned status %d", resp.StatusCode)
		}
		return &ledgerResult{status: resp.StatusCode, body: raw}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger request failed: %w", err)
	}
	return result.(*ledgerResult), nil
}

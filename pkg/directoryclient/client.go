/**
 * @description
 * This package provides a client for the user-service, the directory of
 * record for identities. The orchestrator uses it to resolve receivers
 * before any money moves.
 */
package directoryclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUserNotFound means the identity does not resolve in the directory.
var ErrUserNotFound = errors.New("user not found")

// Client is a client for the user-service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new directory client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// User is the directory record for one identity.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type userEnvelope struct {
	User User `json:"user"`
}

// GetUser fetches the directory record for identity.
func (c *Client) GetUser(ctx context.Context, identity string) (*User, error) {
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, identity)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var envelope userEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &envelope.User, nil
}

// Exists reports whether identity resolves in the directory. It returns
// ErrUserNotFound on a miss and nil when the identity exists.
func (c *Client) Exists(ctx context.Context, identity string) error {
	_, err := c.GetUser(ctx, identity)
	return err
}

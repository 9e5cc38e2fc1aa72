// Package community implements the MedCircle community platform API
// client. The matching engine hands persisted groups to this API; the
// platform owns chat channel creation and member messaging.
package community

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the community API client.
type ClientConfig struct {
	// BaseURL is the community platform API base URL
	BaseURL string

	// APIToken is the bearer token for service-to-service auth
	APIToken string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 15 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrUnauthorized is returned when the API token is rejected.
	ErrUnauthorized = errors.New("community: unauthorized")

	// ErrAPIFailure is returned on non-2xx responses.
	ErrAPIFailure = errors.New("community: api failure")
)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the community platform API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new community API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}
}

// GroupChannelRequest asks the platform to provision a chat channel for
// a freshly persisted group and notify its members.
type GroupChannelRequest struct {
	GroupID      string   `json:"group_id"`
	MemberIDs    []string `json:"member_ids"`
	AverageScore int      `json:"average_score"`
}

// GroupChannelResponse is the platform's answer.
type GroupChannelResponse struct {
	ChannelID string `json:"channel_id"`
	Notified  int    `json:"notified"`
}

// CreateGroupChannel provisions the chat channel for a group. The call
// is idempotent on the platform side, keyed by group id.
func (c *Client) CreateGroupChannel(ctx context.Context, req GroupChannelRequest) (*GroupChannelResponse, error) {
	var resp GroupChannelResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/match-groups", req, &resp); err != nil {
		return nil, fmt.Errorf("create group channel %s: %w", req.GroupID, err)
	}
	return &resp, nil
}

// doRequest executes one authenticated JSON request.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d: %s", ErrAPIFailure, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}

	return nil
}

// Package transport provides the HTTP client for the triage workflow backend.
//
// The client maps errors onto the boundary the engine expects: a Go error
// means the backend could not be reached or answered with something that is
// not a workflow response. Protocol-level failures, a rejected decision or a
// workflow finished elsewhere, arrive as a workflow response with the error
// field set and a nil Go error.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/protocol"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 1 << 20
)

// Client talks to the workflow backend over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAPIKey attaches a bearer token to every backend request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartWorkflow submits an email for triage.
func (c *Client) StartWorkflow(ctx context.Context, em email.Context) (*protocol.WorkflowResponse, error) {
	req := protocol.StartWorkflowRequest{
		Subject:   em.Subject,
		Sender:    em.Sender,
		Body:      em.Body,
		MessageID: em.MessageID,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/workflows/triage", req)
}

// SubmitDecision sends an encoded decision for a paused workflow.
func (c *Client) SubmitDecision(ctx context.Context, workflowID string, wire protocol.WireDecision) (*protocol.WorkflowResponse, error) {
	path := "/api/v1/workflows/" + url.PathEscape(workflowID) + "/decision"
	return c.do(ctx, http.MethodPost, path, wire)
}

// PollStatus fetches the current workflow state.
func (c *Client) PollStatus(ctx context.Context, workflowID string) (*protocol.WorkflowResponse, error) {
	path := "/api/v1/workflows/" + url.PathEscape(workflowID) + "/status"
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*protocol.WorkflowResponse, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var wire protocol.WorkflowResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("backend returned %s", resp.Status)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// A non-2xx answer that still carries a workflow response is a protocol
	// failure; the caller classifies it from the error field.
	if resp.StatusCode >= http.StatusMultipleChoices && wire.Error == "" {
		return nil, fmt.Errorf("backend returned %s", resp.Status)
	}

	c.logger.Debug("Backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	return &wire, nil
}

var _ port.Transport = (*Client)(nil)

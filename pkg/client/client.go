// Package client is a Go client for the semindex HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/semindex/internal/models"
)

const defaultTimeout = 60 * time.Second

// APIError is a non-success answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to one semindex server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http.Timeout = d }
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope mirrors models.Envelope with the data left undecoded.
type envelope struct {
	Message string          `json:"message"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	NoOp    bool            `json:"noop"`
}

// Insert upserts items. An empty batch returns the current count with NoOp set.
func (c *Client) Insert(ctx context.Context, items []models.InsertItem) (models.MutationResult, error) {
	if items == nil {
		items = []models.InsertItem{}
	}
	return c.mutate(ctx, "/insert", items)
}

// Delete removes ids. An empty batch returns the current count with NoOp set.
func (c *Client) Delete(ctx context.Context, ids []int64) (models.MutationResult, error) {
	if ids == nil {
		ids = []int64{}
	}
	return c.mutate(ctx, "/delete", ids)
}

func (c *Client) mutate(ctx context.Context, path string, payload any) (models.MutationResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.MutationResult{}, fmt.Errorf("marshal request: %w", err)
	}
	env, err := c.call(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return models.MutationResult{}, err
	}
	var count int
	if err := json.Unmarshal(env.Data, &count); err != nil {
		return models.MutationResult{}, fmt.Errorf("decode count: %w", err)
	}
	return models.MutationResult{Count: count, NoOp: env.NoOp}, nil
}

// Count returns the number of records in the index.
func (c *Client) Count(ctx context.Context) (int, error) {
	env, err := c.call(ctx, http.MethodGet, "/data_amount", "", nil)
	if err != nil {
		return 0, err
	}
	var count int
	if err := json.Unmarshal(env.Data, &count); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return count, nil
}

// Search returns the nearest records to q.Query.
func (c *Client) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error) {
	params := url.Values{}
	params.Set("query", q.Query)
	if q.TopK > 0 {
		params.Set("top_k", strconv.Itoa(q.TopK))
	}
	if q.UseQuery != nil {
		params.Set("use_query", strconv.FormatBool(*q.UseQuery))
	}
	env, err := c.call(ctx, http.MethodGet, "/search?"+params.Encode(), "", nil)
	if err != nil {
		return nil, err
	}
	var hits []models.SearchHit
	if err := json.Unmarshal(env.Data, &hits); err != nil {
		return nil, fmt.Errorf("decode hits: %w", err)
	}
	return hits, nil
}

// Export downloads the current snapshot.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/export", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Import replaces the server's index with the snapshot read from r and returns the new count.
func (c *Client) Import(ctx context.Context, r io.Reader) (int, error) {
	env, err := c.call(ctx, http.MethodPost, "/import", "application/octet-stream", r)
	if err != nil {
		return 0, err
	}
	var count int
	if err := json.Unmarshal(env.Data, &count); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return count, nil
}

// Clear removes every record.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodPost, "/clear", "", nil)
	return err
}

// Checkpoint asks the server to persist its index now.
func (c *Client) Checkpoint(ctx context.Context) (models.CheckpointInfo, error) {
	var info models.CheckpointInfo
	env, err := c.call(ctx, http.MethodPost, "/checkpoint", "", nil)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(env.Data, &info); err != nil {
		return info, fmt.Errorf("decode checkpoint: %w", err)
	}
	return info, nil
}

// Status returns the index status and background jobs.
func (c *Client) Status(ctx context.Context) (models.StatusReport, error) {
	var report models.StatusReport
	env, err := c.call(ctx, http.MethodGet, "/status", "", nil)
	if err != nil {
		return report, err
	}
	if err := json.Unmarshal(env.Data, &report); err != nil {
		return report, fmt.Errorf("decode status: %w", err)
	}
	return report, nil
}

// Health returns nil when the server answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path, contentType string, body io.Reader) (*envelope, error) {
	resp, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

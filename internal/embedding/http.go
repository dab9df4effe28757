package embedding

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

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/semindex/pkg/utils"
)

const (
	defaultHTTPURL        = "http://localhost:11434"
	defaultHTTPModel      = "bge-base-zh-v1.5"
	defaultHTTPTimeout    = 30 * time.Second
	defaultMaxRetries     = 3
	defaultRetryInterval  = 500 * time.Millisecond
	defaultHTTPBatchLimit = 8
)

// ErrModelNotFound is returned when the embedding server does not know the configured model.
var ErrModelNotFound = errors.New("embedding model not found")

// HTTPConfig configures an embedding server speaking the Ollama /api/embeddings protocol.
type HTTPConfig struct {
	URL           string
	Model         string
	Dimensions    int
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	// Concurrency bounds in-flight requests for a batch.
	Concurrency int
}

// HTTPEmbedder calls a remote embedding server. Transport failures and 5xx answers
// are retried with linear backoff; everything else fails immediately.
type HTTPEmbedder struct {
	config HTTPConfig
	client *http.Client
}

type httpEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type httpEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type httpErrorResponse struct {
	Error string `json:"error"`
}

// retryableError marks a failure worth another attempt.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// NewHTTPEmbedder creates an embedder for the server in cfg, filling in defaults.
func NewHTTPEmbedder(cfg HTTPConfig) *HTTPEmbedder {
	if cfg.URL == "" {
		cfg.URL = defaultHTTPURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultHTTPModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 768
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultHTTPBatchLimit
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	return &HTTPEmbedder{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Embed returns the normalized embedding of text.
func (p *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrEncoding, ctx.Err())
			case <-time.After(p.config.RetryInterval * time.Duration(attempt)):
			}
		}

		embedding, err := p.doEmbed(ctx, text)
		if err == nil {
			return embedding, nil
		}
		lastErr = err
		var retry *retryableError
		if !errors.As(err, &retry) || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrEncoding, p.config.URL, lastErr)
}

func (p *HTTPEmbedder) doEmbed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(httpEmbeddingRequest{Model: p.config.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.URL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &retryableError{fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp httpErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		if strings.Contains(msg, "model") && strings.Contains(msg, "not found") {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, p.config.Model)
		}
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err}
		}
		return nil, err
	}

	var embResp httpEmbeddingResponse
	if err := json.Unmarshal(raw, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(embResp.Embedding) != p.config.Dimensions {
		return nil, fmt.Errorf("expected %d dimensions, got %d", p.config.Dimensions, len(embResp.Embedding))
	}

	embedding := make([]float32, len(embResp.Embedding))
	for i, v := range embResp.Embedding {
		embedding[i] = float32(v)
	}
	if !utils.AllFinite(embedding) {
		return nil, fmt.Errorf("server returned non-finite values")
	}
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// EmbedBatch embeds texts concurrently, bounded by the configured concurrency.
// The first failure cancels the remaining requests.
func (p *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for i, text := range texts {
		g.Go(func() error {
			emb, err := p.Embed(gctx, text)
			if err != nil {
				return err
			}
			results[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Dimensions returns the configured embedding dimension.
func (p *HTTPEmbedder) Dimensions() int {
	return p.config.Dimensions
}

// Close releases idle connections.
func (p *HTTPEmbedder) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newEmbeddingServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEmbedder_Embed(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req httpEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "bge" {
			t.Errorf("model = %q", req.Model)
		}
		_ = json.NewEncoder(w).Encode(httpEmbeddingResponse{Embedding: []float64{3, 4, 0}})
	})

	e := NewHTTPEmbedder(HTTPConfig{URL: srv.URL + "/", Model: "bge", Dimensions: 3})
	defer e.Close()
	vec, err := e.Embed(context.Background(), "你好")
	if err != nil {
		t.Fatal(err)
	}
	if vec[0] < 0.599 || vec[0] > 0.601 || vec[1] < 0.799 || vec[1] > 0.801 {
		t.Errorf("vec = %v, want normalized [0.6 0.8 0]", vec)
	}
}

func TestHTTPEmbedder_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(httpEmbeddingResponse{Embedding: []float64{1, 0}})
	})

	e := NewHTTPEmbedder(HTTPConfig{URL: srv.URL, Dimensions: 2, MaxRetries: 3, RetryInterval: time.Millisecond})
	if _, err := e.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls=%d, want 3", calls.Load())
	}
}

func TestHTTPEmbedder_ModelNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(httpErrorResponse{Error: `model "bge" not found, try pulling it first`})
	})

	e := NewHTTPEmbedder(HTTPConfig{URL: srv.URL, Model: "bge", Dimensions: 2, RetryInterval: time.Millisecond})
	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, ErrModelNotFound) || !errors.Is(err, ErrEncoding) {
		t.Fatalf("expected ErrModelNotFound wrapped in ErrEncoding, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls=%d, want no retry", calls.Load())
	}
}

func TestHTTPEmbedder_DimensionMismatch(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpEmbeddingResponse{Embedding: []float64{1, 0, 0, 0}})
	})
	e := NewHTTPEmbedder(HTTPConfig{URL: srv.URL, Dimensions: 2})
	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, ErrEncoding) {
		t.Errorf("expected ErrEncoding, got %v", err)
	}
}

func TestHTTPEmbedder_EmbedBatchPreservesOrder(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req httpEmbeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		vec := []float64{0, 1}
		if req.Prompt == "first" {
			vec = []float64{1, 0}
		}
		_ = json.NewEncoder(w).Encode(httpEmbeddingResponse{Embedding: vec})
	})
	e := NewHTTPEmbedder(HTTPConfig{URL: srv.URL, Dimensions: 2, Concurrency: 2})
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 || vecs[0][0] != 1 || vecs[1][1] != 1 || vecs[2][1] != 1 {
		t.Errorf("vecs = %v", vecs)
	}
}

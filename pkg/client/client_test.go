package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/semindex/internal/config"
	"github.com/hyperjump/semindex/internal/embedding"
	"github.com/hyperjump/semindex/internal/models"
	"github.com/hyperjump/semindex/internal/server"
	"github.com/hyperjump/semindex/internal/service"
	"github.com/hyperjump/semindex/internal/storage"
	"github.com/hyperjump/semindex/internal/vector"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	const dim = 768
	snapshots, err := storage.NewFileStore(filepath.Join(t.TempDir(), "index.snap"))
	if err != nil {
		t.Fatal(err)
	}
	m, err := vector.NewManager(vector.VariantFlat, dim, vector.GraphOptions{})
	if err != nil {
		t.Fatal(err)
	}
	enc := embedding.NewEncoder(embedding.NewMockEmbedder(dim), embedding.DefaultQueryInstruction)
	svc, err := service.Open(context.Background(), vector.NewStore(m), enc, snapshots)
	if err != nil {
		t.Fatal(err)
	}
	srv := server.NewServer(svc, nil, &config.ServerConfig{MaxImportBytes: 1 << 20}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = svc.Close(context.Background())
	})
	return New(ts.URL + "/")
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	if err := c.Health(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := c.Insert(ctx, []models.InsertItem{
		{ID: 1022, Data: "你好呀，今天是周几？"},
		{ID: 1023, Data: "你好"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || res.NoOp {
		t.Fatalf("insert = %+v", res)
	}

	hits, err := c.Search(ctx, models.SearchQuery{Query: "你好", TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].ID != 1023 {
		t.Fatalf("hits = %+v", hits)
	}

	res, err = c.Delete(ctx, nil)
	if err != nil || !res.NoOp || res.Count != 2 {
		t.Fatalf("empty delete: res=%+v err=%v", res, err)
	}
	if res, err = c.Delete(ctx, []int64{1023}); err != nil || res.Count != 1 {
		t.Fatalf("delete: res=%+v err=%v", res, err)
	}
	if n, err := c.Count(ctx); err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}

	info, err := c.Checkpoint(ctx)
	if err != nil || info.Size == 0 {
		t.Fatalf("checkpoint: %+v %v", info, err)
	}
	snapshot, err := c.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := c.Import(ctx, bytes.NewReader(snapshot))
	if err != nil || n != 1 {
		t.Fatalf("import = %d, %v", n, err)
	}

	report, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Index.Count != 1 || report.Index.Variant != "flat" {
		t.Errorf("status = %+v", report.Index)
	}
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Search(context.Background(), models.SearchQuery{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message == "" {
		t.Errorf("apiErr = %+v", apiErr)
	}

	_, err = c.Import(context.Background(), bytes.NewReader([]byte("garbage")))
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("import garbage: %v", err)
	}
}

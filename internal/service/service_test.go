package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/semindex/internal/embedding"
	"github.com/hyperjump/semindex/internal/models"
	"github.com/hyperjump/semindex/internal/scheduler"
	"github.com/hyperjump/semindex/internal/storage"
	"github.com/hyperjump/semindex/internal/vector"
)

const testDim = 768

func newTestStore(t *testing.T, variant vector.Variant) *vector.Store {
	t.Helper()
	m, err := vector.NewManager(variant, testDim, vector.GraphOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return vector.NewStore(m)
}

func newTestEncoder() embedding.Encoder {
	return embedding.NewEncoder(embedding.NewMockEmbedder(testDim), embedding.DefaultQueryInstruction)
}

func newTestService(t *testing.T, snapshots storage.SnapshotStore, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	svc, err := Open(context.Background(), newTestStore(t, vector.VariantFlat), newTestEncoder(), snapshots, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return svc
}

func newFileStore(t *testing.T) *storage.FileStore {
	t.Helper()
	fs, err := storage.NewFileStore(filepath.Join(t.TempDir(), "data", "index.snap"))
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func ids(hits []models.SearchHit) []int64 {
	out := make([]int64, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func TestService_InsertSearchDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFileStore(t))

	res, err := svc.Insert(ctx, []models.InsertItem{
		{ID: 1022, Data: "你好呀，今天是周几？"},
		{ID: 1023, Data: "你好"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || res.NoOp {
		t.Fatalf("res = %+v", res)
	}

	hits, err := svc.Search(ctx, models.SearchQuery{Query: "你好"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].ID != 1023 {
		t.Fatalf("hits = %+v", hits)
	}

	res, err = svc.Delete(ctx, []int64{1023})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 {
		t.Errorf("count = %d, want 1", res.Count)
	}
	hits, err = svc.Search(ctx, models.SearchQuery{Query: "你好"})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range ids(hits) {
		if id == 1023 {
			t.Errorf("deleted id returned: %v", ids(hits))
		}
	}
}

func TestService_EmptyBatchesAreNoOps(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFileStore(t))
	if _, err := svc.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}}); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Insert(ctx, nil)
	if err != nil || !res.NoOp || res.Count != 1 {
		t.Errorf("insert: res=%+v err=%v", res, err)
	}
	res, err = svc.Delete(ctx, []int64{})
	if err != nil || !res.NoOp || res.Count != 1 {
		t.Errorf("delete: res=%+v err=%v", res, err)
	}
}

func TestService_SearchValidation(t *testing.T) {
	svc := newTestService(t, newFileStore(t))
	_, err := svc.Search(context.Background(), models.SearchQuery{})
	if !errors.Is(err, vector.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	hits, err := svc.Search(context.Background(), models.SearchQuery{Query: "x", TopK: 3})
	if err != nil || len(hits) != 0 {
		t.Errorf("empty index: hits=%v err=%v", hits, err)
	}
}

type failingEmbedder struct{ dim int }

func (f failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model down")
}
func (f failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model down")
}
func (f failingEmbedder) Dimensions() int { return f.dim }
func (f failingEmbedder) Close() error    { return nil }

func TestService_EncodingFailureLeavesIndexUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, err := Open(ctx, newTestStore(t, vector.VariantFlat),
		embedding.NewEncoder(failingEmbedder{dim: testDim}, ""), newFileStore(t))
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}})
	if !errors.Is(err, embedding.ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
	if res.Count != 0 || svc.Count() != 0 || svc.Dirty() {
		t.Errorf("index changed: res=%+v count=%d dirty=%v", res, svc.Count(), svc.Dirty())
	}
}

func TestOpen_DimensionMismatch(t *testing.T) {
	enc := embedding.NewEncoder(embedding.NewMockEmbedder(32), "")
	_, err := Open(context.Background(), newTestStore(t, vector.VariantFlat), enc, newFileStore(t))
	if !errors.Is(err, vector.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestService_CheckpointAndReopen(t *testing.T) {
	ctx := context.Background()
	for _, variant := range []vector.Variant{vector.VariantFlat, vector.VariantHNSW} {
		t.Run(string(variant), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index.snap")
			fs, _ := storage.NewFileStore(path)
			svc, err := Open(ctx, newTestStore(t, variant), newTestEncoder(), fs)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := svc.Insert(ctx, []models.InsertItem{
				{ID: 1022, Data: "你好呀，今天是周几？"},
				{ID: 1023, Data: "你好"},
				{ID: -7, Data: "天气不错"},
			}); err != nil {
				t.Fatal(err)
			}
			before, _ := svc.Search(ctx, models.SearchQuery{Query: "你好", TopK: 3})
			if !svc.Dirty() {
				t.Error("expected dirty after insert")
			}
			if err := svc.Close(ctx); err != nil {
				t.Fatal(err)
			}

			fs2, _ := storage.NewFileStore(path)
			reopened, err := Open(ctx, newTestStore(t, variant), newTestEncoder(), fs2)
			if err != nil {
				t.Fatal(err)
			}
			if reopened.Count() != 3 || reopened.Dirty() {
				t.Fatalf("count=%d dirty=%v", reopened.Count(), reopened.Dirty())
			}
			after, _ := reopened.Search(ctx, models.SearchQuery{Query: "你好", TopK: 3})
			if len(after) != len(before) {
				t.Fatalf("before=%v after=%v", before, after)
			}
			for i := range before {
				if before[i] != after[i] {
					t.Errorf("hit %d: before=%+v after=%+v", i, before[i], after[i])
				}
			}
		})
	}
}

func TestOpen_VariantMismatchFails(t *testing.T) {
	ctx := context.Background()
	fs := newFileStore(t)
	svc := newTestService(t, fs)
	if _, err := svc.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Checkpoint(ctx); err != nil {
		t.Fatal(err)
	}
	_, err := Open(ctx, newTestStore(t, vector.VariantHNSW), newTestEncoder(), fs)
	if !errors.Is(err, vector.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestService_ExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestService(t, newFileStore(t))
	if _, err := src.Insert(ctx, []models.InsertItem{{ID: 1, Data: "一"}, {ID: 2, Data: "二"}}); err != nil {
		t.Fatal(err)
	}
	data, err := src.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if src.Dirty() {
		t.Error("export should checkpoint")
	}

	dstStore := newFileStore(t)
	dst := newTestService(t, dstStore)
	if _, err := dst.Insert(ctx, []models.InsertItem{{ID: 9, Data: "九"}}); err != nil {
		t.Fatal(err)
	}
	res, err := dst.Import(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || dst.Dirty() {
		t.Errorf("res=%+v dirty=%v", res, dst.Dirty())
	}
	if _, _, err := dstStore.Load(ctx); err != nil {
		t.Errorf("import did not persist: %v", err)
	}

	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)/2] ^= 0xff
	if _, err := dst.Import(ctx, corrupt); !errors.Is(err, vector.ErrCorruptSnapshot) {
		t.Errorf("expected ErrCorruptSnapshot, got %v", err)
	}
	if dst.Count() != 2 {
		t.Errorf("count after corrupt import = %d, want 2", dst.Count())
	}
}

func TestService_Clear(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFileStore(t))
	if _, err := svc.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}, {ID: 2, Data: "b"}}); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Clear(ctx)
	if err != nil || res.Count != 0 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	hits, err := svc.Search(ctx, models.SearchQuery{Query: "a", TopK: 10})
	if err != nil || len(hits) != 0 {
		t.Errorf("hits=%v err=%v", hits, err)
	}
}

type failingSnapshots struct {
	storage.SnapshotStore
}

func (failingSnapshots) Save(context.Context, []byte) (storage.SnapshotInfo, error) {
	return storage.SnapshotInfo{}, errors.New("disk full")
}

func TestService_WriteThrough(t *testing.T) {
	ctx := context.Background()
	fs := newFileStore(t)
	svc := newTestService(t, fs, WithPolicy(PolicyWriteThrough, ""))
	if _, err := svc.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}}); err != nil {
		t.Fatal(err)
	}
	if svc.Dirty() {
		t.Error("write-through should leave the index clean")
	}
	if _, _, err := fs.Load(ctx); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}

	failing := newTestService(t, failingSnapshots{newFileStore(t)}, WithPolicy(PolicyWriteThrough, ""))
	res, err := failing.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}})
	if !errors.Is(err, ErrCheckpoint) {
		t.Fatalf("expected ErrCheckpoint, got %v", err)
	}
	if res.Count != 1 || failing.Count() != 1 || !failing.Dirty() {
		t.Errorf("mutation should be kept: res=%+v dirty=%v", res, failing.Dirty())
	}
}

type countingSnapshots struct {
	storage.SnapshotStore
	mu    sync.Mutex
	saves int
}

func (c *countingSnapshots) Save(ctx context.Context, data []byte) (storage.SnapshotInfo, error) {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.SnapshotStore.Save(ctx, data)
}

func TestService_DeleteAbsentIDsSkipsCheckpoint(t *testing.T) {
	ctx := context.Background()
	snaps := &countingSnapshots{SnapshotStore: newFileStore(t)}
	svc := newTestService(t, snaps, WithPolicy(PolicyWriteThrough, ""))
	if _, err := svc.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}}); err != nil {
		t.Fatal(err)
	}
	if snaps.saves != 1 {
		t.Fatalf("saves=%d after insert, want 1", snaps.saves)
	}

	res, err := svc.Delete(ctx, []int64{7, 8})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 || res.NoOp {
		t.Errorf("delete of absent ids = %+v", res)
	}
	if snaps.saves != 1 || svc.Dirty() {
		t.Errorf("absent delete wrote a snapshot: saves=%d dirty=%v", snaps.saves, svc.Dirty())
	}

	if _, err := svc.Delete(ctx, []int64{1, 8}); err != nil {
		t.Fatal(err)
	}
	if snaps.saves != 2 || svc.Count() != 0 {
		t.Errorf("saves=%d count=%d after real delete", snaps.saves, svc.Count())
	}
}

func TestService_IntervalPolicy(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, newTestStore(t, vector.VariantFlat), newTestEncoder(), newFileStore(t),
		WithPolicy(PolicyInterval, "@every 1m"))
	if err == nil {
		t.Fatal("expected error without scheduler")
	}

	sched := scheduler.New(zap.NewNop())
	fs := newFileStore(t)
	svc := newTestService(t, fs, WithPolicy(PolicyInterval, "@every 1m"), WithScheduler(sched))
	if len(sched.Status()) != 1 || sched.Status()[0].Name != checkpointJobName {
		t.Fatalf("jobs = %+v", sched.Status())
	}

	if err := svc.intervalCheckpoint(ctx); err != nil {
		t.Fatal(err)
	}
	if list, _ := fs.List(ctx); len(list) != 0 {
		t.Error("clean index should not be checkpointed")
	}
	if _, err := svc.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := svc.intervalCheckpoint(ctx); err != nil {
		t.Fatal(err)
	}
	if svc.Dirty() {
		t.Error("expected clean after interval checkpoint")
	}
}

func TestService_Status(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFileStore(t))
	if _, err := svc.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}}); err != nil {
		t.Fatal(err)
	}
	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 1 || st.Dimension != testDim || st.Variant != "flat" || !st.Dirty ||
		st.StorageBackend != storage.BackendFile || st.LastCheckpoint != nil || st.Snapshots != 0 {
		t.Errorf("status = %+v", st)
	}

	if _, err := svc.Checkpoint(ctx); err != nil {
		t.Fatal(err)
	}
	st, err = svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Dirty || st.LastCheckpoint == nil || st.Snapshots != 1 || st.DiskUsageBytes == 0 {
		t.Errorf("status after checkpoint = %+v", st)
	}
}

func TestService_StatusEmbeddingCache(t *testing.T) {
	ctx := context.Background()
	enc := embedding.NewEncoder(embedding.WithCache(embedding.NewMockEmbedder(testDim), 16), "")
	svc, err := Open(ctx, newTestStore(t, vector.VariantFlat), enc, newFileStore(t), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = svc.Close(ctx) })

	if _, err := svc.Insert(ctx, []models.InsertItem{{ID: 1, Data: "a"}, {ID: 2, Data: "b"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Search(ctx, models.SearchQuery{Query: "a", TopK: 1}); err != nil {
		t.Fatal(err)
	}
	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.EmbeddingCache == nil {
		t.Fatal("expected embedding cache stats")
	}
	if st.EmbeddingCache.Size != 2 || st.EmbeddingCache.Hits != 1 || st.EmbeddingCache.Misses != 2 {
		t.Errorf("cache = %+v", *st.EmbeddingCache)
	}

	plain := newTestService(t, newFileStore(t))
	st, err = plain.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.EmbeddingCache != nil {
		t.Errorf("uncached encoder reported cache %+v", *st.EmbeddingCache)
	}
}

func TestService_ConcurrentDisjointWriters(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFileStore(t))

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for i := int64(0); i < 50; i++ {
				if _, err := svc.Insert(ctx, []models.InsertItem{{ID: base + i, Data: "文本"}}); err != nil {
					t.Error(err)
					return
				}
			}
		}(int64(w) * 1000)
	}
	wg.Wait()
	if svc.Count() != 100 {
		t.Errorf("count = %d, want 100", svc.Count())
	}
}

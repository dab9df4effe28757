package benchmark

import (
	"context"
	"math/rand"
	"testing"

	"github.com/hyperjump/semindex/internal/embedding"
	"github.com/hyperjump/semindex/internal/vector"
	"github.com/hyperjump/semindex/pkg/utils"
)

const (
	benchDim     = 768
	benchRecords = 2000
)

func randomRecords(n, dim int) []vector.Record {
	rng := rand.New(rand.NewSource(42))
	recs := make([]vector.Record, n)
	for i := range recs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		utils.NormalizeL2(v)
		recs[i] = vector.Record{ID: int64(i), Embedding: v}
	}
	return recs
}

func populated(b *testing.B, variant vector.Variant) (*vector.Store, []float32) {
	b.Helper()
	m, err := vector.NewManager(variant, benchDim, vector.GraphOptions{})
	if err != nil {
		b.Fatal(err)
	}
	recs := randomRecords(benchRecords+1, benchDim)
	if _, err := m.Upsert(recs[:benchRecords]); err != nil {
		b.Fatal(err)
	}
	return vector.NewStore(m), recs[benchRecords].Embedding
}

func benchmarkSearch(b *testing.B, variant vector.Variant) {
	store, query := populated(b, variant)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Search(query, 10)
	}
}

func BenchmarkFlatSearch(b *testing.B) { benchmarkSearch(b, vector.VariantFlat) }

func BenchmarkHNSWSearch(b *testing.B) { benchmarkSearch(b, vector.VariantHNSW) }

func BenchmarkFlatUpsert(b *testing.B) {
	m, _ := vector.NewManager(vector.VariantFlat, benchDim, vector.GraphOptions{})
	recs := randomRecords(1000, benchDim)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := recs[i%len(recs)]
		_, _ = m.Upsert([]vector.Record{rec})
	}
}

func BenchmarkSnapshotEncode(b *testing.B) {
	store, _ := populated(b, vector.VariantFlat)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Snapshot()
	}
}

func BenchmarkSnapshotDecode(b *testing.B) {
	store, _ := populated(b, vector.VariantFlat)
	data, err := store.Snapshot()
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = vector.DecodeSnapshot(data, vector.GraphOptions{})
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(benchDim)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "为这个句子生成表示以用于检索相关文章：你好")
	}
}

// Package embedding turns text into fixed-dimension vectors for the index.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrEncoding reports that text could not be turned into embeddings.
var ErrEncoding = errors.New("encoding failed")

// DefaultQueryInstruction is the retrieval prefix expected by bge-style asymmetric models.
const DefaultQueryInstruction = "为这个句子生成表示以用于检索相关文章："

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Encoder encodes stored documents and search queries. Queries and documents may be
// encoded differently; both land in the same vector space.
type Encoder interface {
	EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// AsymmetricEncoder prefixes queries with an instruction and encodes documents verbatim.
type AsymmetricEncoder struct {
	embedder         Embedder
	queryInstruction string
}

// NewEncoder wraps an embedder. An empty instruction encodes queries verbatim.
func NewEncoder(embedder Embedder, queryInstruction string) *AsymmetricEncoder {
	return &AsymmetricEncoder{embedder: embedder, queryInstruction: queryInstruction}
}

// EncodeDocuments returns one embedding per text, in order.
func (e *AsymmetricEncoder) EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, encodingError(err)
	}
	if len(vecs) != len(texts) {
		return nil, encodingError(errCountMismatch(len(vecs), len(texts)))
	}
	for i, v := range vecs {
		if len(v) != e.embedder.Dimensions() {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, expected %d", ErrEncoding, i, len(v), e.embedder.Dimensions())
		}
	}
	return vecs, nil
}

// EncodeQuery embeds the instruction-prefixed query.
func (e *AsymmetricEncoder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.Embed(ctx, e.queryInstruction+text)
	if err != nil {
		return nil, encodingError(err)
	}
	if len(vec) != e.embedder.Dimensions() {
		return nil, fmt.Errorf("%w: query embedding has dimension %d, expected %d", ErrEncoding, len(vec), e.embedder.Dimensions())
	}
	return vec, nil
}

// CacheStats reports embedding cache usage. ok is false when the embedder is not cached.
func (e *AsymmetricEncoder) CacheStats() (stats CacheStats, ok bool) {
	c, ok := e.embedder.(*CachedEmbedder)
	if !ok {
		return CacheStats{}, false
	}
	return c.Stats(), true
}

// Dimensions returns the embedding dimension.
func (e *AsymmetricEncoder) Dimensions() int {
	return e.embedder.Dimensions()
}

// Close releases the underlying model.
func (e *AsymmetricEncoder) Close() error {
	return e.embedder.Close()
}

func encodingError(err error) error {
	if errors.Is(err, ErrEncoding) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEncoding, err)
}

func errCountMismatch(got, want int) error {
	return fmt.Errorf("got %d embeddings for %d texts", got, want)
}

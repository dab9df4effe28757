// Package vector provides the vector index manager, its index variants, the snapshot codec
// and the concurrency-safe store that owns the index for a process.
package vector

import (
	"errors"
	"io"
)

var (
	// ErrInvalidArgument reports malformed input rejected before the index is touched.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCorruptSnapshot reports a snapshot blob that cannot be decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Record is a caller-identified embedding.
type Record struct {
	ID        int64
	Embedding []float32
}

// VectorResult is a raw hit from a variant structure. Score is the unscaled inner product.
type VectorResult struct {
	ID    int64
	Score float64
}

// VectorIndex is the similarity structure behind a Manager. Implementations are not
// safe for concurrent use; Store serializes access.
type VectorIndex interface {
	// Insert adds vec under id. The caller guarantees id is not present and len(vec) matches.
	Insert(id int64, vec []float32)
	// Remove deletes id and reports whether it was present.
	Remove(id int64) bool
	// Lookup returns the stored vector for id.
	Lookup(id int64) ([]float32, bool)
	// Search returns up to k hits ordered by descending score.
	Search(query []float32, k int) []*VectorResult
	// Records returns every stored record ordered by id.
	Records() []Record
	Len() int
	Reset()
	Type() Variant
	// Compact brings derived search structures up to date after a batch of mutations.
	Compact()

	// ExportStructure writes variant-specific search metadata (empty for exact search).
	ExportStructure(w io.Writer) error
	// ImportStructure replaces the contents with records and the metadata written by ExportStructure.
	ImportStructure(r io.Reader, records []Record) error
}

package vector

import (
	"fmt"
	"io"
	"sort"
)

// FlatIndex is an exact vector index using brute-force inner product search.
// Deletes swap the last entry into the freed slot, so storage stays dense.
type FlatIndex struct {
	dimensions int
	ids        []int64
	vectors    [][]float32
	pos        map[int64]int
}

// NewFlatIndex creates an empty exact index with the given dimension.
func NewFlatIndex(dimensions int) *FlatIndex {
	return &FlatIndex{
		dimensions: dimensions,
		ids:        make([]int64, 0),
		vectors:    make([][]float32, 0),
		pos:        make(map[int64]int),
	}
}

// Type returns the variant identifier.
func (f *FlatIndex) Type() Variant {
	return VariantFlat
}

// Insert appends a copy of vec under id.
func (f *FlatIndex) Insert(id int64, vec []float32) {
	stored := make([]float32, f.dimensions)
	copy(stored, vec)
	f.pos[id] = len(f.ids)
	f.ids = append(f.ids, id)
	f.vectors = append(f.vectors, stored)
}

// Remove deletes id if present.
func (f *FlatIndex) Remove(id int64) bool {
	i, ok := f.pos[id]
	if !ok {
		return false
	}
	last := len(f.ids) - 1
	if i != last {
		f.ids[i] = f.ids[last]
		f.vectors[i] = f.vectors[last]
		f.pos[f.ids[i]] = i
	}
	f.ids = f.ids[:last]
	f.vectors[last] = nil
	f.vectors = f.vectors[:last]
	delete(f.pos, id)
	return true
}

// Lookup returns the stored vector for id.
func (f *FlatIndex) Lookup(id int64) ([]float32, bool) {
	i, ok := f.pos[id]
	if !ok {
		return nil, false
	}
	return f.vectors[i], true
}

// Search scores every stored vector against query and returns the top k.
func (f *FlatIndex) Search(query []float32, k int) []*VectorResult {
	if k <= 0 || len(f.ids) == 0 {
		return nil
	}
	scores := make([]*VectorResult, len(f.ids))
	for i, vec := range f.vectors {
		scores[i] = &VectorResult{ID: f.ids[i], Score: InnerProduct(query, vec)}
	}
	sortResults(scores)
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k]
}

// Records returns all records ordered by id.
func (f *FlatIndex) Records() []Record {
	out := make([]Record, len(f.ids))
	for i, id := range f.ids {
		out[i] = Record{ID: id, Embedding: f.vectors[i]}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of stored vectors.
func (f *FlatIndex) Len() int {
	return len(f.ids)
}

// Compact is a no-op: exact search has no derived structure.
func (f *FlatIndex) Compact() {}

// Reset drops every vector.
func (f *FlatIndex) Reset() {
	f.ids = make([]int64, 0)
	f.vectors = make([][]float32, 0)
	f.pos = make(map[int64]int)
}

// ExportStructure writes nothing: exact search needs no metadata beyond the records.
func (f *FlatIndex) ExportStructure(io.Writer) error {
	return nil
}

// ImportStructure rebuilds the index from records. The structure section must be empty.
func (f *FlatIndex) ImportStructure(r io.Reader, records []Record) error {
	var rest [1]byte
	if n, _ := r.Read(rest[:]); n != 0 {
		return fmt.Errorf("unexpected structure data for flat index")
	}
	f.Reset()
	for _, rec := range records {
		if len(rec.Embedding) != f.dimensions {
			return fmt.Errorf("record %d: dimension %d, expected %d", rec.ID, len(rec.Embedding), f.dimensions)
		}
		if _, dup := f.pos[rec.ID]; dup {
			return fmt.Errorf("duplicate record id %d", rec.ID)
		}
		f.Insert(rec.ID, rec.Embedding)
	}
	return nil
}

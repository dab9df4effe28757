package vector

import (
	"bytes"
	"testing"
)

func TestFlatIndex_InsertSearch(t *testing.T) {
	idx := NewFlatIndex(3)
	idx.Insert(1, []float32{1, 0, 0})
	idx.Insert(2, []float32{0.9, 0.1, 0})
	idx.Insert(3, []float32{0, 1, 0})
	if idx.Len() != 3 {
		t.Errorf("Len=%d", idx.Len())
	}

	results := idx.Search([]float32{1, 0, 0}, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 1 || results[1].ID != 2 {
		t.Errorf("order = %d, %d; want 1, 2", results[0].ID, results[1].ID)
	}
}

func TestFlatIndex_SearchFewerThanK(t *testing.T) {
	idx := NewFlatIndex(2)
	idx.Insert(7, []float32{1, 0})
	if got := idx.Search([]float32{1, 0}, 5); len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}
	if got := NewFlatIndex(2).Search([]float32{1, 0}, 5); len(got) != 0 {
		t.Errorf("empty index returned %d results", len(got))
	}
}

func TestFlatIndex_TiesBreakByID(t *testing.T) {
	idx := NewFlatIndex(2)
	idx.Insert(30, []float32{1, 0})
	idx.Insert(10, []float32{1, 0})
	idx.Insert(20, []float32{1, 0})
	results := idx.Search([]float32{1, 0}, 3)
	for i, want := range []int64{10, 20, 30} {
		if results[i].ID != want {
			t.Errorf("results[%d].ID=%d, want %d", i, results[i].ID, want)
		}
	}
}

func TestFlatIndex_Remove(t *testing.T) {
	idx := NewFlatIndex(2)
	idx.Insert(1, []float32{1, 0})
	idx.Insert(2, []float32{0, 1})
	idx.Insert(3, []float32{0.5, 0.5})
	if !idx.Remove(1) {
		t.Fatal("Remove(1) = false")
	}
	if idx.Remove(1) {
		t.Error("second Remove(1) = true")
	}
	if idx.Len() != 2 {
		t.Errorf("expected len 2, got %d", idx.Len())
	}
	if vec, ok := idx.Lookup(3); !ok || vec[0] != 0.5 {
		t.Errorf("Lookup(3) after swap-delete = %v, %v", vec, ok)
	}
	for _, r := range idx.Search([]float32{1, 0}, 3) {
		if r.ID == 1 {
			t.Error("removed id returned by search")
		}
	}
}

func TestFlatIndex_InsertCopiesVector(t *testing.T) {
	idx := NewFlatIndex(2)
	vec := []float32{1, 0}
	idx.Insert(1, vec)
	vec[0] = -1
	got, _ := idx.Lookup(1)
	if got[0] != 1 {
		t.Errorf("stored vector aliased caller slice: %v", got)
	}
}

func TestFlatIndex_RecordsSorted(t *testing.T) {
	idx := NewFlatIndex(1)
	for _, id := range []int64{5, -2, 9, 0} {
		idx.Insert(id, []float32{float32(id)})
	}
	recs := idx.Records()
	for i := 1; i < len(recs); i++ {
		if recs[i-1].ID >= recs[i].ID {
			t.Fatalf("records not sorted: %v", recs)
		}
	}
}

func TestFlatIndex_ImportStructure(t *testing.T) {
	idx := NewFlatIndex(2)
	idx.Insert(99, []float32{1, 1})
	recs := []Record{{ID: 1, Embedding: []float32{1, 0}}, {ID: 2, Embedding: []float32{0, 1}}}
	if err := idx.ImportStructure(bytes.NewReader(nil), recs); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 2 {
		t.Errorf("Len=%d, want 2", idx.Len())
	}
	if _, ok := idx.Lookup(99); ok {
		t.Error("import kept previous contents")
	}

	if err := idx.ImportStructure(bytes.NewReader([]byte{1}), recs); err == nil {
		t.Error("expected error for non-empty structure")
	}
	dup := []Record{{ID: 1, Embedding: []float32{1, 0}}, {ID: 1, Embedding: []float32{0, 1}}}
	if err := NewFlatIndex(2).ImportStructure(bytes.NewReader(nil), dup); err == nil {
		t.Error("expected error for duplicate ids")
	}
}

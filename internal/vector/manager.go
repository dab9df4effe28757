package vector

import (
	"fmt"
	"sort"
)

// ScoreScale multiplies raw inner products in search hits. It changes presentation only, never ranking.
const ScoreScale = 100

// Hit is a ranked search result.
type Hit struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Result reports the record count after a mutation. NoOp is set when the
// input batch was empty and nothing was done. Changed counts the records
// inserted, overwritten or removed.
type Result struct {
	Count   int
	NoOp    bool
	Changed int
}

// Manager owns the id to vector mapping and the search structure of one index.
// Dimension, metric and variant are fixed at construction. Manager is not safe
// for concurrent use; share it through a Store.
type Manager struct {
	dimension int
	metric    Metric
	variant   Variant
	opts      GraphOptions
	index     VectorIndex
}

// NewManager creates an empty index manager.
func NewManager(variant Variant, dimension int, opts GraphOptions) (*Manager, error) {
	index, err := NewVectorIndex(variant, dimension, opts)
	if err != nil {
		return nil, err
	}
	return &Manager{
		dimension: dimension,
		metric:    MetricInnerProduct,
		variant:   variant,
		opts:      opts,
		index:     index,
	}, nil
}

// Dimension returns the fixed vector dimension.
func (m *Manager) Dimension() int { return m.dimension }

// Variant returns the fixed index variant.
func (m *Manager) Variant() Variant { return m.variant }

// Metric returns the fixed similarity metric.
func (m *Manager) Metric() Metric { return m.metric }

// Count returns the number of live records.
func (m *Manager) Count() int { return m.index.Len() }

type undoEntry struct {
	id      int64
	prev    []float32
	existed bool
}

// Upsert inserts or overwrites every record in the batch. Every record is validated
// before the first mutation, and a failure while applying the batch restores the
// state from before the batch, so a batch is either fully visible or not at all.
// Within one batch the last record for an id wins.
func (m *Manager) Upsert(records []Record) (res Result, err error) {
	if len(records) == 0 {
		return Result{Count: m.index.Len(), NoOp: true}, nil
	}
	for i, rec := range records {
		if len(rec.Embedding) != m.dimension {
			return Result{Count: m.index.Len()}, fmt.Errorf("%w: record %d (id %d): dimension %d, expected %d",
				ErrInvalidArgument, i, rec.ID, len(rec.Embedding), m.dimension)
		}
	}

	undo := make([]undoEntry, 0, len(records))
	defer func() {
		if r := recover(); r != nil {
			if rbErr := m.rollback(undo); rbErr != nil {
				err = fmt.Errorf("upsert aborted: %v; %w", r, rbErr)
			} else {
				err = fmt.Errorf("upsert aborted, batch rolled back: %v", r)
			}
			res = Result{Count: m.index.Len()}
		}
	}()
	for _, rec := range records {
		prev, existed := m.index.Lookup(rec.ID)
		undo = append(undo, undoEntry{id: rec.ID, prev: prev, existed: existed})
		if existed {
			m.index.Remove(rec.ID)
		}
		m.index.Insert(rec.ID, rec.Embedding)
	}
	m.index.Compact()
	return Result{Count: m.index.Len(), Changed: len(records)}, nil
}

// rollback rebuilds the index in a fresh structure holding the state from before
// the batch recorded in undo. The structure that failed is only read, never mutated.
func (m *Manager) rollback(undo []undoEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollback failed: %v", r)
		}
	}()

	state := make(map[int64][]float32, m.index.Len())
	for _, rec := range m.index.Records() {
		state[rec.ID] = rec.Embedding
	}
	for i := len(undo) - 1; i >= 0; i-- {
		e := undo[i]
		if e.existed {
			state[e.id] = e.prev
		} else {
			delete(state, e.id)
		}
	}

	ids := make([]int64, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fresh, err := NewVectorIndex(m.variant, m.dimension, m.opts)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fresh.Insert(id, state[id])
	}
	fresh.Compact()
	m.index = fresh
	return nil
}

// Delete removes each id that is present. Absent ids are ignored and not counted in Changed.
func (m *Manager) Delete(ids []int64) Result {
	if len(ids) == 0 {
		return Result{Count: m.index.Len(), NoOp: true}
	}
	removed := 0
	for _, id := range ids {
		if m.index.Remove(id) {
			removed++
		}
	}
	if removed > 0 {
		m.index.Compact()
	}
	return Result{Count: m.index.Len(), Changed: removed}
}

// Search returns up to k hits ranked by descending similarity with scores scaled by ScoreScale.
// Fewer than k hits are returned when the index holds fewer records.
func (m *Manager) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, expected %d", ErrInvalidArgument, len(query), m.dimension)
	}
	raw := m.index.Search(query, k)
	hits := make([]Hit, 0, len(raw))
	for _, r := range raw {
		if r == nil {
			continue
		}
		if _, live := m.index.Lookup(r.ID); !live {
			continue
		}
		hits = append(hits, Hit{ID: r.ID, Score: r.Score * ScoreScale})
	}
	return hits, nil
}

// Reset clears every record and keeps dimension, metric and variant.
func (m *Manager) Reset() int {
	m.index.Reset()
	return 0
}

// Snapshot encodes the full index state.
func (m *Manager) Snapshot() ([]byte, error) {
	return EncodeSnapshot(m)
}

// Restore replaces the whole index state with the one encoded in data.
// On any error the current state is left untouched.
func (m *Manager) Restore(data []byte) error {
	decoded, err := DecodeSnapshot(data, m.opts)
	if err != nil {
		return err
	}
	return m.adopt(decoded)
}

// adopt takes over the state of other after checking that it is compatible.
func (m *Manager) adopt(other *Manager) error {
	if other.dimension != m.dimension {
		return fmt.Errorf("%w: snapshot dimension %d, index dimension %d", ErrInvalidArgument, other.dimension, m.dimension)
	}
	if other.metric != m.metric {
		return fmt.Errorf("%w: snapshot metric %s, index metric %s", ErrInvalidArgument, other.metric, m.metric)
	}
	if other.variant != m.variant {
		return fmt.Errorf("%w: snapshot variant %s, index variant %s", ErrInvalidArgument, other.variant, m.variant)
	}
	m.index = other.index
	return nil
}

package vector

import (
	"fmt"
	"io"
	"sort"

	"github.com/coder/hnsw"
)

// innerProductDistanceName is the name the graph codec records for the distance function.
const innerProductDistanceName = "inner_product"

// minStaleBeforeRebuild is the smallest number of stale entries that triggers a rebuild.
const minStaleBeforeRebuild = 32

func init() {
	hnsw.RegisterDistanceFunc(innerProductDistanceName, innerProductDistance)
}

// GraphOptions tunes the HNSW graph. Zero values keep the library defaults.
type GraphOptions struct {
	M        int
	Ml       float64
	EfSearch int
}

// GraphIndex is an approximate vector index over an HNSW proximity graph.
// The graph ranks candidates; scores are recomputed exactly from the stored vectors.
//
// Nodes are never deleted from the graph: hnsw.Graph.Delete leaves one-way edges
// pointing at the removed node. A removed or overwritten key stays in the graph as a
// tombstone and is filtered out of results. A live record whose key is tombstoned is
// kept pending and scored exactly. Compact rebuilds the graph once stale entries pile up.
type GraphIndex struct {
	dimensions int
	opts       GraphOptions
	graph      *hnsw.Graph[int64]
	vectors    map[int64][]float32
	// dead holds graph keys whose node no longer matches a live record.
	dead map[int64]struct{}
	// pending holds live ids missing from the graph.
	pending map[int64]struct{}
}

// NewGraphIndex creates an empty graph index with the given dimension.
func NewGraphIndex(dimensions int, opts GraphOptions) *GraphIndex {
	g := &GraphIndex{
		dimensions: dimensions,
		opts:       opts,
	}
	g.clear()
	return g
}

func (g *GraphIndex) clear() {
	g.graph = g.newGraph()
	g.vectors = make(map[int64][]float32)
	g.dead = make(map[int64]struct{})
	g.pending = make(map[int64]struct{})
}

func (g *GraphIndex) newGraph() *hnsw.Graph[int64] {
	graph := hnsw.NewGraph[int64]()
	graph.Distance = innerProductDistance
	if g.opts.M > 0 {
		graph.M = g.opts.M
	}
	if g.opts.Ml > 0 {
		graph.Ml = g.opts.Ml
	}
	if g.opts.EfSearch > 0 {
		graph.EfSearch = g.opts.EfSearch
	}
	return graph
}

// buildGraph returns a fresh graph holding exactly records.
func (g *GraphIndex) buildGraph(records []Record) *hnsw.Graph[int64] {
	graph := g.newGraph()
	if len(records) == 0 {
		return graph
	}
	nodes := make([]hnsw.Node[int64], len(records))
	for i, rec := range records {
		nodes[i] = hnsw.MakeNode(rec.ID, rec.Embedding)
	}
	graph.Add(nodes...)
	return graph
}

// Type returns the variant identifier.
func (g *GraphIndex) Type() Variant {
	return VariantHNSW
}

// Insert stores a copy of vec under id. A key the graph already holds, live or
// tombstoned, is never added again; the record waits in pending until the next rebuild.
func (g *GraphIndex) Insert(id int64, vec []float32) {
	stored := make([]float32, g.dimensions)
	copy(stored, vec)
	if _, inGraph := g.graph.Lookup(id); inGraph {
		g.dead[id] = struct{}{}
		g.pending[id] = struct{}{}
	} else {
		g.graph.Add(hnsw.MakeNode(id, stored))
	}
	g.vectors[id] = stored
}

// Remove forgets id. Its graph node, if any, becomes a tombstone.
func (g *GraphIndex) Remove(id int64) bool {
	if _, ok := g.vectors[id]; !ok {
		return false
	}
	delete(g.vectors, id)
	if len(g.vectors) == 0 {
		g.clear()
		return true
	}
	if _, ok := g.pending[id]; ok {
		delete(g.pending, id)
		return true
	}
	g.dead[id] = struct{}{}
	return true
}

// Lookup returns the stored vector for id.
func (g *GraphIndex) Lookup(id int64) ([]float32, bool) {
	vec, ok := g.vectors[id]
	return vec, ok
}

// stale counts entries the graph cannot answer for directly.
func (g *GraphIndex) stale() int {
	return len(g.dead) + len(g.pending)
}

// Compact rebuilds the graph from the live records when tombstones and pending
// records exceed a quarter of the index, or minStaleBeforeRebuild for small indexes.
func (g *GraphIndex) Compact() {
	limit := len(g.vectors) / 4
	if limit < minStaleBeforeRebuild {
		limit = minStaleBeforeRebuild
	}
	if g.stale() <= limit {
		return
	}
	g.rebuild()
}

func (g *GraphIndex) rebuild() {
	g.graph = g.buildGraph(g.Records())
	g.dead = make(map[int64]struct{})
	g.pending = make(map[int64]struct{})
}

// Search walks the graph for the k nearest live candidates, over-fetching by the
// number of tombstones, and scores pending records exactly. When the walk reaches
// fewer live records than it should, the result falls back to an exact scan.
// Search does not modify the index.
func (g *GraphIndex) Search(query []float32, k int) []*VectorResult {
	if k <= 0 || len(g.vectors) == 0 {
		return nil
	}
	want := k
	if want > len(g.vectors) {
		want = len(g.vectors)
	}

	results := make([]*VectorResult, 0, want+len(g.pending))
	seen := make(map[int64]struct{}, want+len(g.pending))
	if g.graph.Len() > 0 {
		for _, n := range g.graph.Search(query, k+len(g.dead)) {
			if _, dead := g.dead[n.Key]; dead {
				continue
			}
			vec, ok := g.vectors[n.Key]
			if !ok {
				continue
			}
			if _, dup := seen[n.Key]; dup {
				continue
			}
			seen[n.Key] = struct{}{}
			results = append(results, &VectorResult{ID: n.Key, Score: InnerProduct(query, vec)})
		}
	}
	for id := range g.pending {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		results = append(results, &VectorResult{ID: id, Score: InnerProduct(query, g.vectors[id])})
	}
	if len(results) < want {
		results = g.exactSearch(query)
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func (g *GraphIndex) exactSearch(query []float32) []*VectorResult {
	results := make([]*VectorResult, 0, len(g.vectors))
	for id, vec := range g.vectors {
		results = append(results, &VectorResult{ID: id, Score: InnerProduct(query, vec)})
	}
	return results
}

// Records returns all records ordered by id.
func (g *GraphIndex) Records() []Record {
	out := make([]Record, 0, len(g.vectors))
	for id, vec := range g.vectors {
		out = append(out, Record{ID: id, Embedding: vec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live vectors.
func (g *GraphIndex) Len() int {
	return len(g.vectors)
}

// Reset drops the graph and every vector.
func (g *GraphIndex) Reset() {
	g.clear()
}

// ExportStructure writes the graph layers so a restored index walks the same neighborhoods.
// A graph carrying tombstones or pending records is rebuilt into a scratch graph for the
// export, leaving the index itself untouched.
func (g *GraphIndex) ExportStructure(w io.Writer) error {
	if len(g.vectors) == 0 {
		return nil
	}
	graph := g.graph
	if g.stale() > 0 {
		graph = g.buildGraph(g.Records())
	}
	if err := graph.Export(w); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	return nil
}

// ImportStructure loads graph layers written by ExportStructure and checks that they
// hold exactly the given records.
func (g *GraphIndex) ImportStructure(r io.Reader, records []Record) error {
	vectors := make(map[int64][]float32, len(records))
	for _, rec := range records {
		if len(rec.Embedding) != g.dimensions {
			return fmt.Errorf("record %d: dimension %d, expected %d", rec.ID, len(rec.Embedding), g.dimensions)
		}
		if _, dup := vectors[rec.ID]; dup {
			return fmt.Errorf("duplicate record id %d", rec.ID)
		}
		vectors[rec.ID] = rec.Embedding
	}

	graph := g.newGraph()
	if len(records) == 0 {
		var rest [1]byte
		if n, _ := r.Read(rest[:]); n != 0 {
			return fmt.Errorf("unexpected graph data for empty index")
		}
	} else {
		if err := graph.Import(r); err != nil {
			return fmt.Errorf("import graph: %w", err)
		}
		if graph.Len() != len(records) {
			return fmt.Errorf("graph holds %d nodes, snapshot has %d records", graph.Len(), len(records))
		}
		for _, rec := range records {
			if _, ok := graph.Lookup(rec.ID); !ok {
				return fmt.Errorf("record %d missing from graph", rec.ID)
			}
		}
		if g.opts.EfSearch > 0 {
			graph.EfSearch = g.opts.EfSearch
		}
	}

	g.graph = graph
	g.vectors = vectors
	g.dead = make(map[int64]struct{})
	g.pending = make(map[int64]struct{})
	return nil
}

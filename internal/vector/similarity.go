package vector

import "sort"

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
// Products are accumulated in float64 so that identical inputs always produce identical scores.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// innerProductDistance turns inner product into a distance for graph construction:
// smaller is closer.
func innerProductDistance(a, b []float32) float32 {
	return float32(1 - InnerProduct(a, b))
}

// sortResults orders hits by descending score, breaking ties by ascending id.
func sortResults(results []*VectorResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

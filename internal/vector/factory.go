package vector

import "fmt"

// Variant selects the search structure. It is fixed for the lifetime of an index.
type Variant string

const (
	// VariantFlat is exact brute-force inner product search. Good for small to moderate corpora.
	VariantFlat Variant = "flat"
	// VariantHNSW is approximate search over a navigable small-world graph. Good for large corpora.
	VariantHNSW Variant = "hnsw"
)

// Metric is the similarity metric. Only inner product is supported.
type Metric string

// MetricInnerProduct scores by dot product; callers normalize vectors so it behaves as cosine.
const MetricInnerProduct Metric = "inner_product"

// ParseVariant maps a configured index type to a Variant.
// "" and the legacy "memory" select the flat variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantFlat, "", "memory":
		return VariantFlat, nil
	case VariantHNSW:
		return VariantHNSW, nil
	default:
		return "", fmt.Errorf("%w: unknown index variant %q (supported: flat, hnsw)", ErrInvalidArgument, s)
	}
}

// NewVectorIndex creates an empty structure of the given variant.
func NewVectorIndex(variant Variant, dimensions int, opts GraphOptions) (VectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", ErrInvalidArgument)
	}
	switch variant {
	case VariantFlat:
		return NewFlatIndex(dimensions), nil
	case VariantHNSW:
		return NewGraphIndex(dimensions, opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown index variant %q (supported: flat, hnsw)", ErrInvalidArgument, variant)
	}
}

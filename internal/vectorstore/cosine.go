package vectorstore

import (
	"math"
	"sort"

	"caserag/internal/domain"
)

// Cosine returns dot(a,b)/(|a||b|). A zero-norm operand gives exactly 0.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.DimensionError(len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) {
		return 0, nil
	}
	return s, nil
}

// SortResults orders results by score descending, then by metadata ordinal.
func SortResults(results []domain.ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Metadata.Ordinal < results[j].Metadata.Ordinal
	})
}

// ValidateBatch checks that every vector in entries is non-empty, has an id
// and has length dim. dim of zero adopts the first vector's length. The
// resulting dimension is returned.
func ValidateBatch(entries []domain.IndexEntry, dim int) (int, error) {
	for _, e := range entries {
		if e.ID == "" {
			return dim, domain.NewValidationError("entry.id", "is required")
		}
		if len(e.Vector) == 0 {
			return dim, domain.NewValidationError("entry.vector", "vector for %q is empty", e.ID)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return dim, domain.DimensionError(dim, len(e.Vector))
		}
	}
	return dim, nil
}

package vectorstore

import (
	"context"

	"caserag/internal/domain"
)

// Index stores case embeddings and answers nearest-neighbour queries by
// cosine similarity.
//
// Query on an empty index returns an empty slice and a nil error. Results
// are sorted by score descending with ties in insertion order.
type Index interface {
	Upsert(ctx context.Context, entries []domain.IndexEntry) error
	Query(ctx context.Context, vector []float64, topK int) ([]domain.ScoredResult, error)
	Delete(ctx context.Context, ids []string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Inventory is implemented by indexes that can list what they hold without a
// query. Only such an index can be checked against a corpus and reused.
type Inventory interface {
	IDs(ctx context.Context) ([]string, error)
	// Dimension is the stored vector length, zero while empty.
	Dimension() int
}

package memory

import (
	"context"
	"sort"
	"sync"

	"caserag/internal/domain"
	"caserag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// A whole Upsert batch is applied under one write lock, so queries never see
// part of a batch.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   []domain.IndexEntry
	byID      map[string]int
}

func NewStorage() *Storage { return &Storage{byID: make(map[string]int)} }

var (
	_ vectorstore.Index     = (*Storage)(nil)
	_ vectorstore.Inventory = (*Storage)(nil)
)

// Upsert inserts or replaces entries by id. A replaced entry keeps its
// original position for tie-breaking. On error nothing is written.
func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.ValidateBatch(entries, s.dimension)
	if err != nil {
		return err
	}
	s.dimension = dim
	for _, e := range entries {
		e = cloneEntry(e)
		if i, ok := s.byID[e.ID]; ok {
			s.entries[i] = e
			continue
		}
		s.byID[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float64, topK int) ([]domain.ScoredResult, error) {
	if topK <= 0 {
		return nil, domain.NewValidationError("topK", "must be positive, got %d", topK)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return []domain.ScoredResult{}, nil
	}
	if len(vector) != s.dimension {
		return nil, domain.DimensionError(s.dimension, len(vector))
	}
	results := make([]domain.ScoredResult, len(s.entries))
	for i, e := range s.entries {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score, err := vectorstore.Cosine(vector, e.Vector)
		if err != nil {
			return nil, err
		}
		results[i] = domain.ScoredResult{ID: e.ID, Metadata: cloneMetadata(e.Metadata), Score: score}
	}
	// stable: equal scores stay in insertion order
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes entries; unknown ids are ignored.
func (s *Storage) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := s.entries[:0]
	for _, e := range s.entries {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	s.reindexLocked()
	return nil
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byID = make(map[string]int)
	s.dimension = 0
	return nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Dimension is the shared vector length, zero while empty.
func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// IDs lists entry ids in insertion order.
func (s *Storage) IDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.ID
	}
	return out, nil
}

// Entries returns a copy of all entries in insertion order.
func (s *Storage) Entries() []domain.IndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.IndexEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func (s *Storage) reindexLocked() {
	s.byID = make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		s.byID[e.ID] = i
	}
	if len(s.entries) == 0 {
		s.dimension = 0
	}
}

func cloneEntry(e domain.IndexEntry) domain.IndexEntry {
	e.Vector = append([]float64(nil), e.Vector...)
	e.Metadata = cloneMetadata(e.Metadata)
	return e
}

func cloneMetadata(m domain.Metadata) domain.Metadata {
	m.Complications = append([]string(nil), m.Complications...)
	m.Pearls = append([]string(nil), m.Pearls...)
	m.Takeaways = append([]string(nil), m.Takeaways...)
	return m
}

package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"caserag/internal/cache"
	"caserag/internal/corpus"
	"caserag/internal/domain"
	"caserag/internal/scorer"
)

// MaxQueryRunes bounds the length of a retrieval query.
const MaxQueryRunes = 2000

var errZeroQuery = errors.New("query embedding is all zeros")

// RetrieveRelevantCases returns at most topK cases for query, best first.
// Vector hits must score above MinVectorScore; keyword hits above zero. Any
// failure on the vector path degrades to keyword scoring instead of
// surfacing. Input validation errors and ErrNotReady are returned as is.
func (s *Service) RetrieveRelevantCases(ctx context.Context, query string, topK int) ([]domain.RankedCase, error) {
	query, err := validateQuery(query)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, domain.NewValidationError("topK", "must be positive, got %d", topK)
	}
	// A load waiting to replace the index holds the state at Loading, so a
	// refused read lock means the service is not ready.
	if !s.indexMu.TryRLock() {
		return nil, fmt.Errorf("%w: index is being rebuilt", domain.ErrNotReady)
	}
	defer s.indexMu.RUnlock()
	cs, vectorReady, generation, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if cs.Len() == 0 {
		return []domain.RankedCase{}, nil
	}

	key := cache.Key(generation, topK, query)
	if hit, ok := s.cached(ctx, key); ok {
		return hit, nil
	}

	if vectorReady {
		results, err := s.vectorSearch(ctx, query, topK, cs)
		if err == nil {
			s.store(ctx, key, results)
			return results, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Degraded results are not cached so the next query retries the vector path.
		s.log.Warn("vector retrieval failed; falling back to keyword scoring", "error", err, "query", query)
		return s.keywordSearch(ctx, query, topK, cs)
	}

	results, err := s.keywordSearch(ctx, query, topK, cs)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, results)
	return results, nil
}

// SearchCases is plain-text case search. It always uses the keyword scorer;
// limit <= 0 falls back to the configured default.
func (s *Service) SearchCases(ctx context.Context, query string, limit int) ([]domain.RankedCase, error) {
	query, err := validateQuery(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.KeywordLimit
	}
	cs, _, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return s.keywordSearch(ctx, query, limit, cs)
}

// Explain lists the keyword signals query triggers on the case with id.
func (s *Service) Explain(query, id string) ([]scorer.Signal, error) {
	query, err := validateQuery(query)
	if err != nil {
		return nil, err
	}
	cs, _, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	c, i, ok := cs.Lookup(id)
	if !ok {
		return nil, domain.NewValidationError("id", "unknown case %q", id)
	}
	return scorer.Explain(query, c, cs.Text(i)), nil
}

func (s *Service) snapshot() (*corpus.Corpus, bool, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil, false, 0, fmt.Errorf("%w: state is %s", domain.ErrNotReady, s.state)
	}
	return s.corpus, s.vectorReady, s.generation, nil
}

func (s *Service) vectorSearch(ctx context.Context, query string, topK int, cs *corpus.Corpus) ([]domain.RankedCase, error) {
	embedCtx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()
	vec, err := s.embedder.Embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if isZero(vec) {
		return nil, errZeroQuery
	}
	hits, err := s.index.Query(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	out := make([]domain.RankedCase, 0, len(hits))
	for _, h := range hits {
		if !(h.Score > s.opts.MinVectorScore) {
			continue
		}
		c, _, ok := cs.Lookup(h.ID)
		if !ok {
			s.log.Warn("index hit outside the active corpus dropped", "case_id", h.ID)
			continue
		}
		rc := rankedFromCase(c)
		rc.Score = clamp01(h.Score)
		rc.RawScore = h.Score
		rc.Path = domain.PathVector
		out = append(out, rc)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (s *Service) keywordSearch(ctx context.Context, query string, limit int, cs *corpus.Corpus) ([]domain.RankedCase, error) {
	matches, err := scorer.Rank(ctx, query, cs, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RankedCase, 0, len(matches))
	for _, m := range matches {
		rc := rankedFromCase(m.Case)
		rc.Score = scorer.Normalize(m.Score)
		rc.RawScore = float64(m.Score)
		rc.Path = domain.PathKeyword
		out = append(out, rc)
	}
	return out, nil
}

func (s *Service) cached(ctx context.Context, key string) ([]domain.RankedCase, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var out []domain.RankedCase
	if err := json.Unmarshal(data, &out); err != nil {
		s.log.Warn("cache entry undecodable", "error", err)
		return nil, false
	}
	return out, true
}

func (s *Service) store(ctx context.Context, key string, results []domain.RankedCase) {
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.opts.CacheTTL); err != nil {
		s.log.Warn("cache write failed", "error", err)
	}
}

func validateQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", domain.NewValidationError("query", "must not be empty")
	}
	if !utf8.ValidString(q) {
		return "", domain.NewValidationError("query", "must be valid UTF-8")
	}
	if n := utf8.RuneCountInString(q); n > MaxQueryRunes {
		return "", domain.NewValidationError("query", "too long: %d characters, limit %d", n, MaxQueryRunes)
	}
	return q, nil
}

func rankedFromCase(c domain.Case) domain.RankedCase {
	return domain.RankedCase{
		ID:             c.ID,
		Title:          c.DisplayTitle(),
		PatientAge:     c.Patient.AgeDisplay(),
		ASAClass:       c.Patient.ASAClass,
		Technique:      techniqueDisplay(c),
		Complications:  c.ComplicationEvents(),
		ClinicalPearls: c.ClinicalPearls,
		KeyTakeaways:   c.KeyTakeaways,
	}
}

func techniqueDisplay(c domain.Case) string {
	t := string(c.Anesthetic.Technique)
	if block := strings.TrimSpace(c.Anesthetic.RegionalBlockType); block != "" {
		return t + " (" + block + ")"
	}
	return t
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// Package retrieval selects the clinical cases that ground a prompt. The
// vector index is the primary path; the keyword scorer is the fallback and
// backs plain-text case search.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"caserag/internal/cache"
	"caserag/internal/corpus"
	"caserag/internal/domain"
	"caserag/internal/embedding"
	"caserag/internal/logger"
	"caserag/internal/summarizer"
	"caserag/internal/vectorstore"
)

// State is the lifecycle of a Service.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Summarizer condenses case narratives for index metadata.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Options tunes retrieval. Zero fields take their DefaultOptions value.
type Options struct {
	// MinVectorScore is the exclusive cosine cutoff for vector hits.
	MinVectorScore float64
	// KeywordLimit is the default result count of SearchCases.
	KeywordLimit int
	// EmbedTimeout bounds each query embedding call.
	EmbedTimeout time.Duration
	CacheTTL     time.Duration
	// SummaryMaxSentences of zero disables metadata summaries.
	SummaryMaxSentences int
	// ForceReindex makes Load rebuild even a populated persisted index.
	ForceReindex bool
}

// DefaultOptions returns the production thresholds and timeouts.
func DefaultOptions() Options {
	return Options{
		MinVectorScore:      0.3,
		KeywordLimit:        3,
		EmbedTimeout:        10 * time.Second,
		CacheTTL:            10 * time.Minute,
		SummaryMaxSentences: 2,
	}
}

// Service is the single entry point for case retrieval. Queries never block
// on a load in progress; they fail with domain.ErrNotReady instead.
type Service struct {
	log        *logger.Logger
	embedder   embedding.Embedder
	index      vectorstore.Index
	cache      cache.Cache
	summarizer Summarizer
	opts       Options

	loadMu sync.Mutex
	// indexMu is held shared by vector queries for their whole run and
	// exclusively while index contents are replaced.
	indexMu sync.RWMutex

	mu          sync.RWMutex
	state       State
	corpus      *corpus.Corpus
	vectorReady bool
	generation  uint64
}

// New wires a service. A nil cache disables caching and a nil summarizer
// leaves metadata summaries empty.
func New(log *logger.Logger, embedder embedding.Embedder, index vectorstore.Index, c cache.Cache, sum Summarizer, opts Options) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if c == nil {
		c = cache.Nop{}
	}
	def := DefaultOptions()
	if opts.MinVectorScore <= 0 {
		opts.MinVectorScore = def.MinVectorScore
	}
	if opts.KeywordLimit <= 0 {
		opts.KeywordLimit = def.KeywordLimit
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = def.EmbedTimeout
	}
	return &Service{
		log:        log.With("service", "Retrieval"),
		embedder:   embedder,
		index:      index,
		cache:      c,
		summarizer: sum,
		opts:       opts,
	}
}

// State reports where the service is in its lifecycle.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// VectorReady reports whether queries currently use the vector path.
func (s *Service) VectorReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateReady && s.vectorReady
}

// Corpus returns the corpus queries run against, nil before the first Load.
func (s *Service) Corpus() *corpus.Corpus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corpus
}

// Load makes cs the active corpus and builds its index. A persisted index is
// reused, unless ForceReindex is set, when it holds exactly the ids of cs at
// the embedder's dimension.
//
// If indexing fails the service still becomes Ready: with the previous corpus
// and index when there was one, otherwise with cs on the keyword path only.
// The indexing error is returned either way.
func (s *Service) Load(ctx context.Context, cs *corpus.Corpus) error {
	return s.load(ctx, cs, s.opts.ForceReindex)
}

// Reindex is Load with a forced rebuild. A nil corpus rebuilds the current one.
func (s *Service) Reindex(ctx context.Context, cs *corpus.Corpus) error {
	if cs == nil {
		cs = s.Corpus()
	}
	return s.load(ctx, cs, true)
}

// Clear empties the index and the cache. The service stays in Loading until
// the next Load.
func (s *Service) Clear(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.Lock()
	s.state = StateLoading
	s.vectorReady = false
	s.corpus = nil
	s.generation++
	s.mu.Unlock()

	s.clearCache(ctx)
	if s.index == nil {
		return nil
	}
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if err := s.index.Clear(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	s.log.Info("retrieval index cleared")
	return nil
}

type indexOutcome int

const (
	indexKept indexOutcome = iota
	indexEmpty
	indexBuilt
)

func (s *Service) load(ctx context.Context, cs *corpus.Corpus, force bool) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if cs == nil {
		empty, err := corpus.New(nil)
		if err != nil {
			return err
		}
		cs = empty
	}

	s.mu.Lock()
	prevCorpus, prevVector := s.corpus, s.vectorReady
	s.state = StateLoading
	s.generation++
	s.mu.Unlock()
	s.clearCache(ctx)

	started := time.Now()
	outcome, err := s.buildIndex(ctx, cs, force)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReady
	switch {
	case err == nil:
		s.corpus = cs
		s.vectorReady = outcome == indexBuilt
		s.log.Info("retrieval ready", "cases", cs.Len(), "vector", s.vectorReady, "elapsed", time.Since(started).String())
		return nil
	case outcome == indexKept && prevCorpus != nil:
		s.corpus = prevCorpus
		s.vectorReady = prevVector
		s.log.Warn("indexing failed; keeping previous corpus and index", "error", err, "cases", prevCorpus.Len())
	default:
		s.corpus = cs
		s.vectorReady = false
		s.log.Warn("indexing failed; serving keyword retrieval only", "error", err, "cases", cs.Len())
	}
	return err
}

// buildIndex embeds the whole corpus before touching the index, so an
// embedding failure leaves the previous entries in place.
func (s *Service) buildIndex(ctx context.Context, cs *corpus.Corpus, force bool) (indexOutcome, error) {
	if s.embedder == nil || s.index == nil {
		return indexEmpty, nil
	}
	if cs.Len() == 0 {
		return s.replaceEntries(ctx, nil)
	}
	texts := make([]string, cs.Len())
	for i := range texts {
		texts[i] = cs.Text(i)
	}
	if err := s.embedder.Prepare(texts); err != nil {
		return indexKept, fmt.Errorf("prepare embedder: %w", err)
	}
	if !force && s.reusable(ctx, cs) {
		s.log.Info("reusing persisted index", "entries", cs.Len())
		return indexBuilt, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return indexKept, fmt.Errorf("%w: embed corpus: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return indexKept, fmt.Errorf("%w: embedder returned %d vectors for %d cases", domain.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	entries := make([]domain.IndexEntry, cs.Len())
	for i := range entries {
		c := cs.At(i)
		entries[i] = domain.IndexEntry{ID: c.ID, Vector: vectors[i], Metadata: s.metadata(c, i)}
	}
	if _, err := vectorstore.ValidateBatch(entries, 0); err != nil {
		return indexKept, err
	}

	outcome, err := s.replaceEntries(ctx, entries)
	if err == nil {
		s.log.Info("index built", "entries", len(entries), "embedder", s.embedder.Name(), "dim", len(vectors[0]))
	}
	return outcome, err
}

// replaceEntries swaps the index contents for entries. It waits for vector
// queries already running against the old contents; new ones are refused
// until it returns.
func (s *Service) replaceEntries(ctx context.Context, entries []domain.IndexEntry) (indexOutcome, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if err := s.index.Clear(ctx); err != nil {
		return indexKept, fmt.Errorf("clear index: %w", err)
	}
	if len(entries) == 0 {
		return indexEmpty, nil
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		return indexEmpty, fmt.Errorf("upsert index: %w", err)
	}
	return indexBuilt, nil
}

// reusable reports whether the index already holds exactly the cases of cs,
// embedded at the embedder's dimension. Indexes that cannot list their ids
// are always rebuilt.
func (s *Service) reusable(ctx context.Context, cs *corpus.Corpus) bool {
	inv, ok := s.index.(vectorstore.Inventory)
	if !ok {
		return false
	}
	stored, err := inv.IDs(ctx)
	if err != nil {
		s.log.Warn("listing persisted index failed; rebuilding", "error", err)
		return false
	}
	if len(stored) == 0 {
		return false
	}
	want, have := s.embedder.Dimension(), inv.Dimension()
	if want <= 0 || want != have {
		s.log.Info("persisted index dimension does not match embedder; rebuilding", "index_dim", have, "embedder_dim", want)
		return false
	}
	if len(stored) != cs.Len() {
		s.log.Info("persisted index does not match corpus; rebuilding", "entries", len(stored), "cases", cs.Len())
		return false
	}
	seen := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		if _, _, ok := cs.Lookup(id); !ok {
			s.log.Info("persisted index holds a case outside the corpus; rebuilding", "case_id", id)
			return false
		}
		seen[id] = struct{}{}
	}
	return len(seen) == cs.Len()
}

func (s *Service) metadata(c domain.Case, ordinal int) domain.Metadata {
	m := domain.Metadata{
		Title:         c.DisplayTitle(),
		Procedure:     c.Procedure.Name,
		Technique:     techniqueDisplay(c),
		AgeDisplay:    c.Patient.AgeDisplay(),
		ASAClass:      c.Patient.ASAClass,
		Complications: c.ComplicationEvents(),
		Pearls:        c.ClinicalPearls,
		Takeaways:     c.KeyTakeaways,
		Ordinal:       ordinal,
	}
	if s.summarizer != nil && s.opts.SummaryMaxSentences > 0 {
		summary, err := s.summarizer.Summarize(summarizer.CaseNarrative(c), s.opts.SummaryMaxSentences)
		if err != nil {
			s.log.Warn("case summary failed", "case_id", c.ID, "error", err)
		} else {
			m.Summary = summary
		}
	}
	return m
}

func (s *Service) clearCache(ctx context.Context) {
	if err := s.cache.Clear(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("cache clear failed", "error", err)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"caserag/internal/cache"
	rediscache "caserag/internal/cache/redis"
	"caserag/internal/config"
	"caserag/internal/corpus"
	"caserag/internal/embedding"
	"caserag/internal/embedding/openai"
	"caserag/internal/embedding/tfidf"
	"caserag/internal/embedding/vocab"
	"caserag/internal/logger"
	"caserag/internal/retrieval"
	"caserag/internal/summarizer"
	"caserag/internal/tui"
	"caserag/internal/vectorstore"
	"caserag/internal/vectorstore/file"
	"caserag/internal/vectorstore/memory"
	"caserag/internal/vectorstore/pgvector"
	"caserag/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath    string
		corpusPath string
		reindex    bool
		query      string
		topK       int
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/caserag/config.yaml if not provided)")
	flag.StringVar(&corpusPath, "corpus", "", "Path to the JSON case corpus (overrides corpus.path)")
	flag.BoolVar(&reindex, "reindex", false, "Rebuild the vector index even if a persisted one matches the corpus")
	flag.StringVar(&query, "query", "", "Print the prompt block for this query and exit instead of starting the TUI")
	flag.IntVar(&topK, "top-k", 0, "Number of cases to retrieve (overrides retrieval.top_k)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if corpusPath != "" {
		cfg.Corpus.Path = corpusPath
	}
	if topK > 0 {
		cfg.Retrieval.TopK = topK
	}
	if reindex {
		cfg.Retrieval.Reindex = true
	}

	lg, err := logger.New(cfg.Log.Mode, !cfg.Log.DisableRedaction)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()

	ctx := context.Background()

	cs, err := corpus.LoadFile(cfg.Corpus.Path)
	if err != nil {
		lg.Error("corpus load failed", "path", cfg.Corpus.Path, "error", err)
		os.Exit(1)
	}

	emb, err := buildEmbedder(cfg)
	if err != nil {
		lg.Error("embedder init failed", "type", cfg.Embedder.Type, "error", err)
		os.Exit(1)
	}

	idx, closeIndex, err := buildIndex(ctx, lg, cfg, emb, cs)
	if err != nil {
		lg.Error("vector store init failed", "type", cfg.VectorStore.Type, "error", err)
		os.Exit(1)
	}
	defer closeIndex()

	ch, closeCache, err := buildCache(ctx, cfg)
	if err != nil {
		lg.Error("cache init failed", "type", cfg.Cache.Type, "error", err)
		os.Exit(1)
	}
	defer closeCache()

	var sum retrieval.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency":
		sum = summarizer.NewFrequencySummarizer()
	case "none":
	default:
		lg.Error("unknown summarizer", "type", cfg.Summarizer.Type)
		os.Exit(1)
	}

	svc := retrieval.New(lg, emb, idx, ch, sum, retrieval.Options{
		MinVectorScore:      cfg.Retrieval.MinVectorScore,
		KeywordLimit:        cfg.Retrieval.KeywordLimit,
		EmbedTimeout:        cfg.Retrieval.EmbedTimeout(),
		CacheTTL:            cfg.Cache.TTL(),
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		ForceReindex:        cfg.Retrieval.Reindex,
	})
	if err := svc.Load(ctx, cs); err != nil {
		// Load leaves the service usable on the keyword path.
		lg.Warn("index build failed; continuing with keyword retrieval", "error", err)
	}

	if query != "" {
		cases, err := svc.RetrieveRelevantCases(ctx, query, cfg.Retrieval.TopK)
		if err != nil {
			lg.Error("retrieval failed", "error", err)
			os.Exit(1)
		}
		fmt.Print(retrieval.FormatCasesForPrompt(cases))
		return
	}

	summary := fmt.Sprintf("%d cases from %s, embedder=%s, index=%s, vector path=%t",
		cs.Len(), cfg.Corpus.Path, emb.Name(), cfg.VectorStore.Type, svc.VectorReady())
	m := tui.New(svc, cfg.Retrieval.TopK, summary)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

func buildEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "vocab":
		return vocab.NewEmbedder(cfg.Embedder.Vocab.Dimension, cfg.Embedder.Vocab.Seed), nil
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		return openai.NewClient(openai.Config{
			BaseURL:     oc.BaseURL,
			APIKeyEnv:   oc.APIKeyEnv,
			Model:       oc.Model,
			Timeout:     time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize:   oc.BatchSize,
			Concurrency: oc.Concurrency,
			MaxRetries:  oc.MaxRetries,
			Dimension:   oc.Dimension,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildIndex(ctx context.Context, lg *logger.Logger, cfg *config.AppConfig, emb embedding.Embedder, cs *corpus.Corpus) (vectorstore.Index, func(), error) {
	noop := func() {}
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), noop, nil
	case "file":
		st, err := file.Open(lg, cfg.VectorStore.File.Path)
		return st, noop, err
	case "qdrant":
		qc := cfg.VectorStore.Qdrant
		st, err := qdrant.NewStorage(lg, qdrant.Config{
			URL:        qc.URL,
			APIKey:     envOrEmpty(qc.APIKeyEnv),
			Collection: qc.Collection,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
		})
		return st, noop, err
	case "pgvector":
		pc := cfg.VectorStore.PGVector
		dsn := os.Getenv(pc.DSNEnv)
		if dsn == "" {
			return nil, noop, fmt.Errorf("missing postgres DSN in env %s", pc.DSNEnv)
		}
		dim, err := embedderDimension(emb, cs)
		if err != nil {
			return nil, noop, err
		}
		st, pool, err := pgvector.Connect(ctx, dsn, pc.Table, dim)
		if err != nil {
			return nil, noop, err
		}
		return st, pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

// embedderDimension resolves the vector length a fixed-width column needs.
func embedderDimension(emb embedding.Embedder, cs *corpus.Corpus) (int, error) {
	if d := emb.Dimension(); d > 0 {
		return d, nil
	}
	texts := make([]string, cs.Len())
	for i := range texts {
		texts[i] = cs.Text(i)
	}
	if len(texts) > 0 {
		if err := emb.Prepare(texts); err != nil {
			return 0, err
		}
	}
	if d := emb.Dimension(); d > 0 {
		return d, nil
	}
	return 0, fmt.Errorf("embedder %s has no fixed dimension; configure one for pgvector", emb.Name())
}

func buildCache(ctx context.Context, cfg *config.AppConfig) (cache.Cache, func(), error) {
	noop := func() {}
	switch cfg.Cache.Type {
	case "none":
		return cache.Nop{}, noop, nil
	case "memory":
		return cache.NewMemory(), noop, nil
	case "redis":
		rc := cfg.Cache.Redis
		adapter, client, err := rediscache.Connect(ctx, rc.Addr, envOrEmpty(rc.PasswordEnv), rc.DB)
		if err != nil {
			return nil, noop, err
		}
		return adapter, func() { _ = client.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache: %s", cfg.Cache.Type)
	}
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

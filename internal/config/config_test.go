package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "data/cases.json", cfg.Corpus.Path)
	assert.Equal(t, "vocab", cfg.Embedder.Type)
	require.NotNil(t, cfg.Embedder.Vocab)
	assert.Equal(t, 384, cfg.Embedder.Vocab.Dimension)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 0.3, cfg.Retrieval.MinVectorScore)
	assert.Equal(t, 10*time.Second, cfg.Retrieval.EmbedTimeout())
	assert.Equal(t, 2, cfg.Summarizer.MaxSentences)
	assert.False(t, cfg.Log.DisableRedaction)
	require.NoError(t, cfg.Validate())
}

func TestLoadPartialFileFillsBackendDefaults(t *testing.T) {
	path := writeConfig(t, `
corpus:
  path: /srv/cases.json
embedder:
  type: openai
  openai:
    model: nomic-embed-text
    base_url: http://localhost:11434/v1
vector_store:
  type: qdrant
cache:
  type: redis
  ttl_secs: 60
retrieval:
  top_k: 5
  reindex: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/cases.json", cfg.Corpus.Path)

	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)

	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "clinical_cases", cfg.VectorStore.Qdrant.Collection)

	require.NotNil(t, cfg.Cache.Redis)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Cache.TTL())

	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.True(t, cfg.Retrieval.Reindex)
	assert.Equal(t, 3, cfg.Retrieval.KeywordLimit)
}

func TestLoadPGVectorAndFileDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "vector_store:\n  type: pgvector\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.VectorStore.PGVector)
	assert.Equal(t, "DATABASE_URL", cfg.VectorStore.PGVector.DSNEnv)
	assert.Equal(t, "case_embeddings", cfg.VectorStore.PGVector.Table)

	cfg, err = Load(writeConfig(t, "vector_store:\n  type: file\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.VectorStore.File)
	assert.Equal(t, "data/case_index.json", cfg.VectorStore.File.Path)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"embedder":     "embedder:\n  type: word2vec\n",
		"vector store": "vector_store:\n  type: faiss\n",
		"cache":        "cache:\n  type: memcached\n",
		"summarizer":   "summarizer:\n  type: llm\n",
		"cutoff":       "retrieval:\n  min_vector_score: 1.5\n",
		"yaml":         "embedder: [unclosed\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 7
	cfg.Log.Mode = "prod"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDefaultWritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "caserag", "config.yaml"), path)
	assert.Equal(t, defaultConfig(), cfg)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

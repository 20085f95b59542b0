package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserag/internal/domain"
	"caserag/internal/logger"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s, err := Open(logger.NewNop(), filepath.Join(t.TempDir(), "index.json"))
	require.NoError(t, err)
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(logger.NewNop(), "")
	require.Error(t, err)
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	tests := map[string]string{
		"not json":         "{{{",
		"length mismatch":  `{"vectors":[[1,0]],"metadata":[]}`,
		"ragged vectors":   `{"vectors":[[1,0],[1]],"metadata":[{"id":"a"},{"id":"b"}]}`,
		"missing entry id": `{"vectors":[[1,0]],"metadata":[{"title":"x"}]}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			s, err := Open(logger.NewNop(), path)
			require.NoError(t, err)
			n, _ := s.Count(context.Background())
			assert.Zero(t, n)
		})
	}
}

func TestPersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "index.json")
	s, err := Open(logger.NewNop(), path)
	require.NoError(t, err)

	entries := []domain.IndexEntry{
		{ID: "a", Vector: []float64{1, 0}, Metadata: domain.Metadata{Title: "A", Pearls: []string{"p"}, Ordinal: 0}},
		{ID: "b", Vector: []float64{0, 1}, Metadata: domain.Metadata{Title: "B", Ordinal: 1}},
	}
	require.NoError(t, s.Upsert(ctx, entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "vectors")
	assert.Contains(t, doc, "metadata")
	assert.Contains(t, string(doc["metadata"]), `"id":"a"`)

	reloaded, err := Open(logger.NewNop(), path)
	require.NoError(t, err)
	stored, err := reloaded.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stored)
	assert.Equal(t, 2, reloaded.Dimension())
	res, err := reloaded.Query(ctx, []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ID)
	assert.Equal(t, []string{"p"}, res[0].Metadata.Pearls)

	require.NoError(t, reloaded.Delete(ctx, []string{"a"}))
	again, err := Open(logger.NewNop(), path)
	require.NoError(t, err)
	n, _ := again.Count(ctx)
	assert.Equal(t, 1, n)

	require.NoError(t, again.Clear(ctx))
	cleared, err := Open(logger.NewNop(), path)
	require.NoError(t, err)
	n, _ = cleared.Count(ctx)
	assert.Zero(t, n)
}

func TestFailedUpsertDoesNotRewriteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")
	s, err := Open(logger.NewNop(), path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, []domain.IndexEntry{{ID: "a", Vector: []float64{1, 0}}}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = s.Upsert(ctx, []domain.IndexEntry{{ID: "b", Vector: []float64{1, 0, 0}}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// Package file persists the in-memory index to a JSON document of the form
// {"vectors": [[...]], "metadata": [{"id": ..., ...}]}.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"caserag/internal/domain"
	"caserag/internal/logger"
	"caserag/internal/vectorstore"
	"caserag/internal/vectorstore/memory"
)

type document struct {
	Vectors  [][]float64     `json:"vectors"`
	Metadata []entryMetadata `json:"metadata"`
}

type entryMetadata struct {
	ID string `json:"id"`
	domain.Metadata
}

// Storage is a memory index that rewrites its backing file after every
// successful mutation.
type Storage struct {
	mu   sync.Mutex
	path string
	mem  *memory.Storage
	log  *logger.Logger
}

var (
	_ vectorstore.Index     = (*Storage)(nil)
	_ vectorstore.Inventory = (*Storage)(nil)
)

// Open loads path into memory. A missing or unreadable file is not an error:
// the index starts empty and the caller rebuilds it.
func Open(log *logger.Logger, path string) (*Storage, error) {
	if path == "" {
		return nil, errors.New("file index path is required")
	}
	s := &Storage{path: path, mem: memory.NewStorage(), log: log.With("service", "FileIndex", "path", path)}
	entries, err := readDocument(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Info("index file not found; starting empty")
	case err != nil:
		s.log.Warn("index file unreadable; starting empty", "error", err)
	default:
		if err := s.mem.Upsert(context.Background(), entries); err != nil {
			s.log.Warn("index file inconsistent; starting empty", "error", err)
			_ = s.mem.Clear(context.Background())
		} else {
			s.log.Info("index file loaded", "entries", len(entries))
		}
	}
	return s, nil
}

func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Upsert(ctx, entries); err != nil {
		return err
	}
	return s.saveLocked()
}

func (s *Storage) Query(ctx context.Context, vector []float64, topK int) ([]domain.ScoredResult, error) {
	return s.mem.Query(ctx, vector, topK)
}

func (s *Storage) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Delete(ctx, ids); err != nil {
		return err
	}
	return s.saveLocked()
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Clear(ctx); err != nil {
		return err
	}
	return s.saveLocked()
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	return s.mem.Count(ctx)
}

func (s *Storage) IDs(ctx context.Context) ([]string, error) {
	return s.mem.IDs(ctx)
}

func (s *Storage) Dimension() int {
	return s.mem.Dimension()
}

func (s *Storage) saveLocked() error {
	entries := s.mem.Entries()
	doc := document{
		Vectors:  make([][]float64, len(entries)),
		Metadata: make([]entryMetadata, len(entries)),
	}
	for i, e := range entries {
		doc.Vectors[i] = e.Vector
		doc.Metadata[i] = entryMetadata{ID: e.ID, Metadata: e.Metadata}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode index file: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}
	return nil
}

func readDocument(path string) ([]domain.IndexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode index file: %w", err)
	}
	if len(doc.Vectors) != len(doc.Metadata) {
		return nil, fmt.Errorf("index file has %d vectors and %d metadata records", len(doc.Vectors), len(doc.Metadata))
	}
	entries := make([]domain.IndexEntry, len(doc.Vectors))
	for i := range doc.Vectors {
		entries[i] = domain.IndexEntry{ID: doc.Metadata[i].ID, Vector: doc.Vectors[i], Metadata: doc.Metadata[i].Metadata}
	}
	return entries, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"caserag/internal/domain"
	"caserag/internal/logger"
	"caserag/internal/vectorstore"
)

const payloadCaseIDKey = "case_id"

// Qdrant only accepts UUID or integer point ids, so case ids are mapped to
// name-based UUIDs under this namespace.
var pointIDNamespace = uuid.MustParse("6f1c2a4e-8a53-4f7e-9a0e-3c5d1b2e7f90")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	log        *logger.Logger
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.Mutex
	dimension int
	created   bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	// VectorDim may be left zero; the first upsert then fixes it.
	VectorDim int
}

var _ vectorstore.Index = (*Storage)(nil)

func NewStorage(log *logger.Logger, cfg Config) (*Storage, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("qdrant url is required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, errors.New("qdrant collection is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		log:        log.With("service", "QdrantIndex", "collection", cfg.Collection),
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		dimension:  cfg.VectorDim,
	}, nil
}

// PointID is the Qdrant point id used for a case id.
func PointID(caseID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(caseID)).String()
}

func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	const op = "upsert"
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.ValidateBatch(entries, s.dimension)
	if err != nil {
		return err
	}
	if err := s.ensureCollectionLocked(ctx, dim); err != nil {
		return err
	}
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		payload, err := toPayload(e)
		if err != nil {
			return opErr(op, CodeEncodeFailed, 0, err)
		}
		points[i] = map[string]any{
			"id":      PointID(e.ID),
			"vector":  e.Vector,
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), body, nil)
}

func (s *Storage) Query(ctx context.Context, vector []float64, topK int) ([]domain.ScoredResult, error) {
	const op = "query"
	if topK <= 0 {
		return nil, domain.NewValidationError("topK", "must be positive, got %d", topK)
	}
	s.mu.Lock()
	dim, created := s.dimension, s.created
	s.mu.Unlock()
	if dim > 0 && len(vector) != dim {
		return nil, domain.DimensionError(dim, len(vector))
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	var raw []struct {
		Score   float64         `json:"score"`
		Payload json.RawMessage `json:"payload"`
	}
	err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &raw)
	if isNotFound(err) && !created {
		return []domain.ScoredResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.ScoredResult, 0, len(raw))
	for _, r := range raw {
		var p payload
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return nil, opErr(op, CodeDecodeFailed, 0, err)
		}
		results = append(results, domain.ScoredResult{ID: p.CaseID, Metadata: p.Metadata, Score: r.Score})
	}
	vectorstore.SortResults(results)
	return results, nil
}

func (s *Storage) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	err := s.doJSON(ctx, "delete", http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"points": points}, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// Clear drops the collection; the next upsert recreates it.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.doJSON(ctx, "clear", http.MethodDelete, s.collectionPath(""), nil, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	s.created = false
	return nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	err := s.doJSON(ctx, "count", http.MethodPost, s.collectionPath("/points/count"), map[string]any{"exact": true}, &res)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (s *Storage) ensureCollectionLocked(ctx context.Context, dim int) error {
	if s.created && s.dimension == dim {
		return nil
	}
	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, "init", http.MethodGet, s.collectionPath(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != 0 && size != dim {
			return domain.DimensionError(size, dim)
		}
	case isNotFound(err):
		body := map[string]any{
			"vectors": map[string]any{"size": dim, "distance": "Cosine"},
		}
		if err := s.doJSON(ctx, "init", http.MethodPut, s.collectionPath(""), body, nil); err != nil {
			return err
		}
		s.log.Info("qdrant collection created", "vector_dim", dim)
	default:
		return err
	}
	s.dimension = dim
	s.created = true
	return nil
}

type payload struct {
	CaseID string `json:"case_id"`
	domain.Metadata
}

func toPayload(e domain.IndexEntry) (map[string]any, error) {
	data, err := json.Marshal(payload{CaseID: e.ID, Metadata: e.Metadata})
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	out[payloadCaseIDKey] = e.ID
	return out, nil
}

func (s *Storage) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) doJSON(ctx context.Context, op, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return opErr(op, CodeEncodeFailed, 0, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return opErr(op, CodeTransportFailed, 0, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return opErr(op, CodeTimeout, 0, err)
		}
		return opErr(op, CodeTransportFailed, 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return opErr(op, CodeQueryFailed, resp.StatusCode, errors.New(strings.TrimSpace(string(msg))))
	}
	if out == nil {
		return nil
	}
	var env struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return opErr(op, CodeDecodeFailed, resp.StatusCode, err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, CodeDecodeFailed, resp.StatusCode, err)
	}
	return nil
}

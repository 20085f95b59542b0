package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"caserag/internal/domain"
	"caserag/internal/vectorstore"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Storage keeps case vectors in a pgvector column. Rows carry the insertion
// ordinal so ties come back in corpus order.
type Storage struct {
	db        DB
	table     string
	dimension int
}

var _ vectorstore.Index = (*Storage)(nil)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Connect opens a pool for dsn and prepares the table.
func Connect(ctx context.Context, dsn, table string, dimension int) (*Storage, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := New(pool, table, dimension)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

func New(db DB, table string, dimension int) (*Storage, error) {
	if table == "" {
		table = "case_embeddings"
	}
	if !identRe.MatchString(table) {
		return nil, domain.NewValidationError("pgvector.table", "invalid table name %q", table)
	}
	if dimension <= 0 {
		return nil, domain.NewValidationError("pgvector.dimension", "must be positive, got %d", dimension)
	}
	return &Storage{db: db, table: table, dimension: dimension}, nil
}

// Migrate creates the extension and table when missing.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  ordinal BIGSERIAL,
  embedding vector(%d) NOT NULL,
  metadata JSONB NOT NULL
)`, s.table, s.dimension)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if _, err := vectorstore.ValidateBatch(entries, s.dimension); err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert vectors: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	stmt := fmt.Sprintf(`
INSERT INTO %s (id, embedding, metadata)
VALUES ($1, $2::vector, $3::jsonb)
ON CONFLICT (id)
DO UPDATE SET
  embedding = EXCLUDED.embedding,
  metadata = EXCLUDED.metadata`, s.table)
	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata %s: %w", e.ID, err)
		}
		if _, err := tx.Exec(ctx, stmt, e.ID, ToLiteral(e.Vector), string(meta)); err != nil {
			return fmt.Errorf("upsert vector %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit vectors tx: %w", err)
	}
	return nil
}

// Query ranks by cosine similarity. Stored zero vectors score 0 instead of
// the NaN pgvector would return.
func (s *Storage) Query(ctx context.Context, vector []float64, topK int) ([]domain.ScoredResult, error) {
	if topK <= 0 {
		return nil, domain.NewValidationError("topK", "must be positive, got %d", topK)
	}
	if len(vector) != s.dimension {
		return nil, domain.DimensionError(s.dimension, len(vector))
	}
	var scoreExpr string
	args := []any{topK}
	if isZero(vector) {
		scoreExpr = "0::float8"
	} else {
		scoreExpr = "CASE WHEN vector_norm(embedding) = 0 THEN 0 ELSE 1 - (embedding <=> $2::vector) END"
		args = append(args, ToLiteral(vector))
	}
	query := fmt.Sprintf(`
SELECT id, metadata, %s AS score
FROM %s
ORDER BY score DESC, ordinal ASC
LIMIT $1`, scoreExpr, s.table)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()
	results := make([]domain.ScoredResult, 0, topK)
	for rows.Next() {
		var (
			r    domain.ScoredResult
			meta []byte
		)
		if err := rows.Scan(&r.ID, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("scan vector result: %w", err)
		}
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func (s *Storage) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table), ids); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`TRUNCATE %s RESTART IDENTITY`, s.table)); err != nil {
		return fmt.Errorf("truncate %s: %w", s.table, err)
	}
	return nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}

// ToLiteral renders a vector in pgvector's text format.
func ToLiteral(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

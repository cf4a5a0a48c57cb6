// Package postgres provides a search backend on PostgreSQL with pgvector.
//
// Vectors are ranked by cosine distance through an ivfflat index. Lexical
// matching combines a weighted tsvector (title above text) with pg_trgm
// word similarity so misspelled terms still match.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Backend implements the interface.
var _ driven.SearchBackend = (*Backend)(nil)

// DefaultTable is the table used when no index name is configured.
const DefaultTable = "policy_documents"

// fuzzyThreshold is the minimum pg_trgm word similarity for a fuzzy match.
const fuzzyThreshold = 0.3

// minHybridCandidates is the least number of rows each side of a hybrid
// query contributes before fusion.
const minHybridCandidates = 100

// hybridCandidates sizes the per-side candidate pool for a result limit.
func hybridCandidates(limit int) int {
	return max(limit*10, minHybridCandidates)
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Config configures the postgres backend.
type Config struct {
	// DSN is the connection string (required).
	DSN string

	// Table is the chunk table name (default: policy_documents).
	Table string

	// Dimensions is the vector column size (required).
	Dimensions int
}

// Backend is a driven.SearchBackend backed by PostgreSQL.
type Backend struct {
	pool    *pgxpool.Pool
	table   string
	queries queries
}

// New connects to PostgreSQL and verifies the connection.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !identifier.MatchString(cfg.Table) {
		return nil, &domain.ConfigurationError{Field: "index.name", Reason: "must be a lower-case SQL identifier"}
	}
	if cfg.Dimensions <= 0 {
		return nil, &domain.ConfigurationError{Field: "embedding.dimensions", Reason: "must be greater than zero"}
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Backend{
		pool:    pool,
		table:   cfg.Table,
		queries: newQueries(cfg.Table, cfg.Dimensions),
	}, nil
}

// Name identifies the backend.
func (b *Backend) Name() string {
	return "postgres"
}

// EnsureSchema creates extensions, the chunk table and its indexes.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, b.queries.schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	logger.Debug("Postgres schema ready for %s", b.table)
	return nil
}

// errBatchAborted marks records rolled back with a failed batch.
var errBatchAborted = errors.New("batch aborted by a failed record")

// Upsert writes records in one pipelined batch. The batch is one implicit
// transaction, so when any record fails every queued record is reported
// as failed.
func (b *Backend) Upsert(ctx context.Context, records []domain.IndexRecord) ([]error, error) {
	errs := make([]error, len(records))
	batch := &pgx.Batch{}
	queued := make([]int, 0, len(records))

	for i, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			errs[i] = fmt.Errorf("encode metadata: %w", err)
			continue
		}
		batch.Queue(b.queries.upsert,
			r.ChunkID, r.DocumentID, r.Text, r.Title, pgvector.NewVector(r.Vector), meta, r.CreatedAt, r.UpdatedAt)
		queued = append(queued, i)
	}
	if len(queued) == 0 {
		return errs, nil
	}

	results := b.pool.SendBatch(ctx, batch)
	for _, i := range queued {
		if _, err := results.Exec(); err != nil {
			errs[i] = err
		}
	}
	closeErr := results.Close()
	if settleBatch(errs, queued, closeErr) {
		return nil, fmt.Errorf("upsert batch: %w", closeErr)
	}
	return errs, nil
}

// settleBatch marks every queued record failed once one of them failed.
// It reports true when the batch failed as a whole: it did not commit and
// either no record or every record carries its own error.
func settleBatch(errs []error, queued []int, closeErr error) bool {
	failed := 0
	for _, i := range queued {
		if errs[i] != nil {
			failed++
		}
	}
	if closeErr != nil && (failed == 0 || failed == len(queued)) {
		return true
	}
	if failed > 0 {
		for _, i := range queued {
			if errs[i] == nil {
				errs[i] = errBatchAborted
			}
		}
	}
	return false
}

// Query ranks records for q.
func (b *Backend) Query(ctx context.Context, q driven.BackendQuery) ([]domain.SearchResult, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch q.Mode {
	case domain.SearchModeKeyword:
		rows, err = b.pool.Query(ctx, b.queries.keyword, q.Text, fuzzyThreshold, q.MinScore, q.Limit)
	case domain.SearchModeSemantic:
		rows, err = b.pool.Query(ctx, b.queries.semantic, pgvector.NewVector(q.Vector), q.MinScore, q.Limit)
	case domain.SearchModeHybrid:
		rows, err = b.pool.Query(ctx, b.queries.hybrid,
			pgvector.NewVector(q.Vector), q.Text, q.VectorWeight, q.TextWeight, q.MinScore, q.Limit,
			fuzzyThreshold, hybridCandidates(q.Limit))
	default:
		return nil, fmt.Errorf("unsupported search mode %q", q.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", q.Mode, err)
	}
	return collectResults(rows)
}

func collectResults(rows pgx.Rows) ([]domain.SearchResult, error) {
	defer rows.Close()

	results := []domain.SearchResult{}
	for rows.Next() {
		var (
			r    domain.SearchResult
			meta []byte
		)
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text, &r.Title, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.ChunkID, err)
		}
		r.Page = r.Metadata.Page
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteByDocument removes every record of a document.
func (b *Backend) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := b.pool.Exec(ctx, b.queries.deleteByDocument, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats counts records and distinct documents.
func (b *Backend) Stats(ctx context.Context) (domain.IndexStats, error) {
	var stats domain.IndexStats
	if err := b.pool.QueryRow(ctx, b.queries.stats).Scan(&stats.Records, &stats.Documents); err != nil {
		return stats, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// Ping verifies the database is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

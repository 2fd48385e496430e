// Package postgres provides the Postgres-backed document catalog.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/store"
)

const (
	defaultTable        = "extracted_documents"
	defaultSessionTable = "retrieval_sessions"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for catalog rows.
type Config struct {
	DSN             string
	Table           string
	SessionTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// DocumentStore writes one catalog row per extracted document and one row per
// retrieval session.
type DocumentStore struct {
	pool         execCloser
	table        string
	sessionTable string
}

// NewDocumentStore creates a Postgres-backed DocumentStore using the provided config.
func NewDocumentStore(ctx context.Context, cfg Config) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	table, sessionTable, err := tableNames(cfg.Table, cfg.SessionTable)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DocumentStore{pool: pool, table: table, sessionTable: sessionTable}, nil
}

// NewDocumentStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDocumentStoreWithPool(pool execCloser, table, sessionTable string) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, sessionTable, err := tableNames(table, sessionTable)
	if err != nil {
		return nil, err
	}
	return &DocumentStore{pool: pool, table: table, sessionTable: sessionTable}, nil
}

func tableNames(table, sessionTable string) (string, string, error) {
	if table == "" {
		table = defaultTable
	}
	if sessionTable == "" {
		sessionTable = defaultSessionTable
	}
	for _, name := range []string{table, sessionTable} {
		if !validTableName.MatchString(name) {
			return "", "", fmt.Errorf("invalid table name %q", name)
		}
	}
	return table, sessionTable, nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordDocument inserts a catalog row for one written document.
func (s *DocumentStore) RecordDocument(ctx context.Context, doc ccindex.DocumentRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("document store is not configured")
	}
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	headersJSON, err := json.Marshal(normalizeHeaders(doc.Headers))
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	session_id,
	crawl_id,
	url,
	domain,
	languages,
	warc_filename,
	warc_record_offset,
	warc_record_length,
	blob_uri,
	content_hash,
	status_code,
	content_type,
	headers,
	fetch_time,
	extracted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)`, s.table)

	args := []any{
		doc.ID,
		doc.SessionID,
		doc.CrawlID,
		doc.URL,
		doc.Domain,
		doc.Languages,
		doc.WARCFilename,
		doc.WARCOffset,
		doc.WARCLength,
		doc.BlobURI,
		doc.ContentHash,
		doc.StatusCode,
		doc.ContentType,
		headersJSON,
		doc.FetchTime,
		doc.ExtractedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// RecordSession upserts the session row keyed by ID.
func (s *DocumentStore) RecordSession(ctx context.Context, row store.SessionRun) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("document store is not configured")
	}
	if row.ID == "" {
		return fmt.Errorf("session id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, crawl_id, status, started_at, finished_at,
	shards_attempted, shards_completed, matches, records_requested, documents_written,
	error_message
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	finished_at = EXCLUDED.finished_at,
	shards_attempted = EXCLUDED.shards_attempted,
	shards_completed = EXCLUDED.shards_completed,
	matches = EXCLUDED.matches,
	records_requested = EXCLUDED.records_requested,
	documents_written = EXCLUDED.documents_written,
	error_message = EXCLUDED.error_message`, s.sessionTable)

	var (
		finished *time.Time
		errMsg   *string
	)
	if !row.FinishedAt.IsZero() {
		finished = &row.FinishedAt
	}
	if row.ErrorMessage != "" {
		errMsg = &row.ErrorMessage
	}
	if _, err := s.pool.Exec(ctx, query,
		row.ID,
		row.CrawlID,
		string(row.Status),
		row.StartedAt,
		finished,
		row.ShardsAttempted,
		row.ShardsCompleted,
		row.Matches,
		row.RecordsRequested,
		row.DocumentsWritten,
		errMsg,
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func normalizeHeaders(h http.Header) map[string][]string {
	if len(h) == 0 {
		return map[string][]string{}
	}
	out := make(map[string][]string, len(h))
	for k, values := range h {
		out[k] = append([]string(nil), values...)
	}
	return out
}

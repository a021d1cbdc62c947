// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/page-insights/internal/clock/system"
	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/store"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for documents.
type Config struct {
	DSN             string
	Schema          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// DocumentStore keeps one JSONB table per collection.
type DocumentStore struct {
	pool  pool
	clock insights.Clock
}

// Connect opens a pgx pool for cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.Schema != "" {
		if !validIdentifier.MatchString(cfg.Schema) {
			return nil, fmt.Errorf("invalid schema name %q", cfg.Schema)
		}
		poolCfg.ConnConfig.RuntimeParams["search_path"] = cfg.Schema
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// NewDocumentStore connects, applies migrations, and returns a ready store.
func NewDocumentStore(ctx context.Context, cfg Config, clock insights.Clock) (*DocumentStore, error) {
	p, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, p); err != nil {
		p.Close()
		return nil, err
	}
	return NewDocumentStoreWithPool(p, clock)
}

// NewDocumentStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDocumentStoreWithPool(p pool, clock insights.Clock) (*DocumentStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		clock = system.New()
	}
	return &DocumentStore{pool: p, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the document. created_at is preserved on conflict.
func (s *DocumentStore) Upsert(ctx context.Context, doc store.Document) error {
	table, err := tableFor(doc.Kind)
	if err != nil {
		return err
	}
	if doc.Key == "" {
		return fmt.Errorf("document key is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (id, parent_id, doc, published_at, last_scraped, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (id) DO UPDATE SET
	parent_id = EXCLUDED.parent_id,
	doc = EXCLUDED.doc,
	published_at = EXCLUDED.published_at,
	last_scraped = GREATEST(%[1]s.last_scraped, EXCLUDED.last_scraped),
	updated_at = EXCLUDED.updated_at`, table)

	now := s.clock.Now().UTC()
	args := []any{
		doc.Key,
		nullable(doc.ParentKey),
		[]byte(doc.Body),
		publishedAt(doc.Body),
		doc.LastScraped.UTC(),
		now,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// FindByKey fetches one document by identity key.
func (s *DocumentStore) FindByKey(ctx context.Context, kind insights.Kind, key string) (store.Document, error) {
	table, err := tableFor(kind)
	if err != nil {
		return store.Document{}, err
	}
	query := fmt.Sprintf(`
SELECT id, COALESCE(parent_id, ''), doc, last_scraped, created_at, updated_at
FROM %s
WHERE id = $1`, table)

	doc, err := scanDocument(kind, s.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, fmt.Errorf("find %s: %w", table, err)
	}
	return doc, nil
}

// Find lists documents matching filter.
func (s *DocumentStore) Find(
	ctx context.Context,
	kind insights.Kind,
	filter store.Filter,
	opts store.FindOptions,
) ([]store.Document, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, `
SELECT id, COALESCE(parent_id, ''), doc, last_scraped, created_at, updated_at
FROM %s%s
ORDER BY %s`, table, where, orderBy(opts.Sort))
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, "\nLIMIT $%d", len(args))
	}
	if opts.Skip > 0 {
		args = append(args, opts.Skip)
		fmt.Fprintf(&b, "\nOFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	docs := []store.Document{}
	for rows.Next() {
		doc, err := scanDocument(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return docs, nil
}

// Count returns the number of documents matching filter.
func (s *DocumentStore) Count(ctx context.Context, kind insights.Kind, filter store.Filter) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	query := fmt.Sprintf("SELECT count(*) FROM %s%s", table, where)
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func tableFor(kind insights.Kind) (string, error) {
	table := kind.Collection()
	switch kind {
	case insights.KindOrganization, insights.KindPost, insights.KindPerson, insights.KindComment:
	default:
		return "", fmt.Errorf("unknown kind %q", kind)
	}
	if !validIdentifier.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

func buildWhere(filter store.Filter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.ParentKey != "" {
		add("parent_id = $%d", filter.ParentKey)
	}
	if filter.Name != "" {
		add("to_tsvector('simple', coalesce(doc->>'name', '')) @@ plainto_tsquery('simple', $%d)", filter.Name)
	}
	if filter.Industry != "" {
		add("doc->>'industry' = $%d", string(filter.Industry))
	}
	if filter.MinFollowers != nil {
		add("(doc->>'follower_count')::bigint >= $%d", *filter.MinFollowers)
	}
	if filter.MaxFollowers != nil {
		add("(doc->>'follower_count')::bigint <= $%d", *filter.MaxFollowers)
	}
	if len(filter.Attrs) > 0 {
		encoded, err := json.Marshal(filter.Attrs)
		if err != nil {
			return "", nil, fmt.Errorf("encode attribute filter: %w", err)
		}
		add("doc @> $%d::jsonb", encoded)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return "\nWHERE " + strings.Join(clauses, " AND "), args, nil
}

func orderBy(field store.SortField) string {
	switch field {
	case store.SortPublishedDesc:
		return "published_at DESC NULLS LAST, id"
	case store.SortFollowersDesc:
		return "(doc->>'follower_count')::bigint DESC NULLS LAST, id"
	default:
		return "id"
	}
}

func scanDocument(kind insights.Kind, row pgx.Row) (store.Document, error) {
	doc := store.Document{Kind: kind}
	var body []byte
	if err := row.Scan(&doc.Key, &doc.ParentKey, &body, &doc.LastScraped, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return store.Document{}, err //nolint:wrapcheck // callers wrap with table context
	}
	doc.Body = body
	doc.LastScraped = doc.LastScraped.UTC()
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// publishedAt lifts the body's publish time into its own column so the
// ordering index can serve it.
func publishedAt(body json.RawMessage) any {
	var fields struct {
		PublishedAt *time.Time `json:"published_at"`
	}
	if err := json.Unmarshal(body, &fields); err != nil || fields.PublishedAt == nil {
		return nil
	}
	return fields.PublishedAt.UTC()
}

// Package postgres provides a PostgreSQL-backed snippet search index using
// the pgvector extension for approximate nearest-neighbour queries.
//
// Each knowledge pack is a corpus: snippet embeddings are upserted per
// (pack_id, uid, language) and queried with cosine distance over an HNSW
// index. The pgvector extension must be available in the target database;
// [NewStore] installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, embedder)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.IndexPack(ctx, pack)
//	hits, _ := store.Search(ctx, pack.ID, "书房里有什么秘密？", 10, search.Filter{Language: "zh"})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/Rene-Zhou/Astinus-sub001/internal/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/embeddings"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/search"
)

// Compile-time interface check.
var _ search.Searcher = (*Store)(nil)

// Store is the pgvector-backed snippet index. All methods are safe for
// concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and ensures
// the snippet table and HNSW index exist.
//
// The embedding column dimension is taken from embedder.Dimensions(); changing
// the embedding model after the first migration requires a manual schema
// change.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("search store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("search store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("search store: ping: %w", err)
	}

	if err := migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("search store: migrate: %w", err)
	}

	return &Store{pool: pool, embedder: embedder}, nil
}

// migrate ensures the pgvector extension, snippet table, and indexes exist.
func migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS snippet_embeddings (
    pack_id    TEXT        NOT NULL,
    uid        INTEGER     NOT NULL,
    language   TEXT        NOT NULL,
    content    TEXT        NOT NULL,
    embedding  vector(%d)  NOT NULL,
    PRIMARY KEY (pack_id, uid, language)
)`, dims),
		`CREATE INDEX IF NOT EXISTS idx_snippet_embeddings_hnsw
    ON snippet_embeddings USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_snippet_embeddings_pack_lang
    ON snippet_embeddings (pack_id, language)`,
	}
	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("exec %q: %w", q[:min(40, len(q))], err)
		}
	}
	return nil
}

// IndexPack embeds every snippet of pack (once per content language) and
// upserts the vectors into the corpus. Existing rows for the same
// (pack, uid, language) are replaced.
func (s *Store) IndexPack(ctx context.Context, pack *knowledge.Pack) error {
	type row struct {
		uid      int
		language string
		content  string
	}

	var rows []row
	var texts []string
	for _, sn := range pack.Snippets {
		for lang, content := range sn.Content {
			rows = append(rows, row{uid: sn.UID, language: lang, content: content})
			texts = append(texts, content)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("search store: embed pack %q: %w", pack.ID, err)
	}

	const q = `
		INSERT INTO snippet_embeddings (pack_id, uid, language, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pack_id, uid, language) DO UPDATE SET
		    content   = EXCLUDED.content,
		    embedding = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for i, r := range rows {
		batch.Queue(q, pack.ID, r.uid, r.language, r.content, pgvector.NewVector(vecs[i]))
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("search store: upsert snippet for pack %q: %w", pack.ID, err)
		}
	}
	return nil
}

// Search implements [search.Searcher]. It embeds query and returns the k
// nearest snippets by cosine distance, most similar first.
func (s *Store) Search(ctx context.Context, corpusID, query string, k int, f search.Filter) ([]search.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search store: embed query: %w", err)
	}

	args := []any{pgvector.NewVector(vec), corpusID}
	langClause := ""
	if f.Language != "" {
		args = append(args, f.Language)
		langClause = "AND language = $3"
	}
	args = append(args, k)

	q := fmt.Sprintf(`
		SELECT uid, embedding <=> $1 AS distance
		FROM   snippet_embeddings
		WHERE  pack_id = $2 %s
		ORDER BY distance
		LIMIT  $%d`, langClause, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search store: query: %w", err)
	}
	defer rows.Close()

	var hits []search.Hit
	for rows.Next() {
		var h search.Hit
		if err := rows.Scan(&h.UID, &h.Distance); err != nil {
			return nil, fmt.Errorf("search store: scan: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search store: rows: %w", err)
	}
	return hits, nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

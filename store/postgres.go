package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/store/migrations"
	"github.com/hubenschmidt/go-resurface/vector"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store on PostgreSQL with the pgvector extension.
// Nearest-neighbor search uses the <=> cosine distance operator over an HNSW index.
type PostgresStore struct {
	identity
	db        *sql.DB
	dimension int
}

// NewPostgresStore connects, pings and migrates. dimension fixes the width
// of the embedding column (e.g. 384 for MiniLM, 1536 for OpenAI small).
func NewPostgresStore(dsn string, dimension int, opts ...Option) (*PostgresStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := runPostgresMigrations(ctx, db, dimension); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{identity: newIdentity(opts), db: db, dimension: dimension}, nil
}

func runPostgresMigrations(ctx context.Context, db *sql.DB, dimension int) error {
	data, err := migrations.Postgres.ReadFile("postgres/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	ddl := strings.ReplaceAll(string(data), "{{dimension}}", strconv.Itoa(dimension))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateNote(ctx context.Context, content string) (core.Note, error) {
	note := s.stamp(content)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, content, created_at)
		VALUES ($1, $2, $3)`,
		note.ID, note.Content, note.CreatedAt,
	)
	if err != nil {
		return core.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

func (s *PostgresStore) GetNote(ctx context.Context, id string) (core.Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, created_at, embedding::text
		FROM notes WHERE id = $1`, id)

	n, err := scanPostgresNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Note{}, notFound(id)
	}
	if err != nil {
		return core.Note{}, fmt.Errorf("query note: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetNotes(ctx context.Context, ids []string) ([]core.Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	notes, err := s.queryNotes(ctx, `
		SELECT id, content, created_at, embedding::text
		FROM notes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]core.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}
	return orderByIDs(ids, byID), nil
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, id string, embedding []float64) error {
	if len(embedding) != s.dimension {
		return fmt.Errorf("embedding has %d dimensions, store expects %d", len(embedding), s.dimension)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE notes SET embedding = $1::vector
		WHERE id = $2 AND embedding IS NULL`, vector.Format(embedding), id)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := s.GetNote(ctx, id); err != nil {
		return err
	}
	return ErrEmbeddingExists
}

func (s *PostgresStore) PendingNotes(ctx context.Context, limit int) ([]core.Note, error) {
	return s.queryNotes(ctx, `
		SELECT id, content, created_at, embedding::text
		FROM notes WHERE embedding IS NULL
		ORDER BY created_at
		LIMIT $1`, pgLimit(limit))
}

func (s *PostgresStore) RecentNotes(ctx context.Context, limit int) ([]core.Note, error) {
	return s.queryNotes(ctx, `
		SELECT id, content, created_at, embedding::text
		FROM notes
		ORDER BY created_at DESC
		LIMIT $1`, pgLimit(limit))
}

func (s *PostgresStore) Nearest(ctx context.Context, embedding []float64, k int, excludeID string) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding <=> $1::vector AS distance
		FROM notes
		WHERE embedding IS NOT NULL
			AND id != $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`, vector.Format(embedding), excludeID, k)
	if err != nil {
		return nil, fmt.Errorf("query nearest: %w", err)
	}
	defer rows.Close()

	var results []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (s *PostgresStore) PutLinks(ctx context.Context, links []core.MemoryLink) error {
	if len(links) == 0 {
		return nil
	}
	if err := validateLinks(links); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, l := range links {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_links (id, source_note_id, target_note_id, strength, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			l.ID, l.SourceID, l.TargetID, l.Strength, l.Reason, l.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert link %s->%s: %w", l.SourceID, l.TargetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit links: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLinks(ctx context.Context, ids []string, minStrength float64) ([]core.MemoryLink, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_note_id, target_note_id, strength, COALESCE(reason, ''), created_at
		FROM memory_links
		WHERE source_note_id = ANY($1)
			AND target_note_id = ANY($1)
			AND strength >= $2
		ORDER BY created_at, id`, ids, minStrength)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var links []core.MemoryLink
	for rows.Next() {
		var l core.MemoryLink
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Strength, &l.Reason, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.CreatedAt = l.CreatedAt.UTC()
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *PostgresStore) Neighbors(ctx context.Context, id string, minStrength float64) ([]core.RelatedNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.content, n.created_at, n.embedding::text, ml.strength
		FROM memory_links ml
		JOIN notes n ON n.id = ml.target_note_id
		WHERE ml.source_note_id = $1
			AND ml.strength >= $2
		ORDER BY ml.strength DESC, ml.created_at`, id, minStrength)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	defer rows.Close()

	var related []core.RelatedNote
	for rows.Next() {
		var r core.RelatedNote
		var emb sql.NullString
		if err := rows.Scan(&r.ID, &r.Content, &r.CreatedAt, &emb, &r.Strength); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		if r.Embedding, err = parsePgEmbedding(emb); err != nil {
			return nil, err
		}
		related = append(related, r)
	}
	return related, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) queryNotes(ctx context.Context, query string, args ...any) ([]core.Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []core.Note
	for rows.Next() {
		n, err := scanPostgresNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func scanPostgresNote(row rowScanner) (core.Note, error) {
	var n core.Note
	var emb sql.NullString
	if err := row.Scan(&n.ID, &n.Content, &n.CreatedAt, &emb); err != nil {
		return core.Note{}, err
	}
	n.CreatedAt = n.CreatedAt.UTC()

	var err error
	n.Embedding, err = parsePgEmbedding(emb)
	return n, err
}

func parsePgEmbedding(emb sql.NullString) ([]float64, error) {
	if !emb.Valid {
		return nil, nil
	}
	v, err := vector.Parse(emb.String)
	if err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	return v, nil
}

// pgLimit maps "no limit" to NULL, which LIMIT treats as unbounded.
func pgLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

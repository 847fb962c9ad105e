package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/store/migrations"
	"github.com/hubenschmidt/go-resurface/vector"
	_ "modernc.org/sqlite"
)

// DefaultSQLitePath is used when no DSN is configured.
const DefaultSQLitePath = "data/resurface.db"

// SQLiteStore implements Store using SQLite. Embeddings are stored as JSON
// and nearest-neighbor search is a cosine scan in Go.
type SQLiteStore struct {
	identity
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database at dsn.
func NewSQLiteStore(dsn string, opts ...Option) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = DefaultSQLitePath
	}

	if !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
		dir := filepath.Dir(dsn)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: pragmas stick and writers never contend for the lock.
	db.SetMaxOpenConns(1)

	if err := runSQLiteMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{identity: newIdentity(opts), db: db}, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func runSQLiteMigrations(db *sql.DB) error {
	data, err := migrations.SQLite.ReadFile("sqlite/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	_, err = db.Exec(string(data))
	if err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateNote(ctx context.Context, content string) (core.Note, error) {
	note := s.stamp(content)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, content, created_at, embedding)
		VALUES (?, ?, ?, NULL)`,
		note.ID, note.Content, note.CreatedAt.UnixNano(),
	)
	if err != nil {
		return core.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

func (s *SQLiteStore) GetNote(ctx context.Context, id string) (core.Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, created_at, embedding
		FROM notes WHERE id = ?`, id)

	n, err := scanSQLiteNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Note{}, notFound(id)
	}
	if err != nil {
		return core.Note{}, fmt.Errorf("query note: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetNotes(ctx context.Context, ids []string) ([]core.Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, content, created_at, embedding
		FROM notes WHERE id IN (%s)`, placeholders(len(ids)))

	notes, err := s.queryNotes(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]core.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}
	return orderByIDs(ids, byID), nil
}

func (s *SQLiteStore) SetEmbedding(ctx context.Context, id string, embedding []float64) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE notes SET embedding = ?
		WHERE id = ? AND embedding IS NULL`, string(data), id)
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

func (s *SQLiteStore) PendingNotes(ctx context.Context, limit int) ([]core.Note, error) {
	return s.queryNotes(ctx, `
		SELECT id, content, created_at, embedding
		FROM notes WHERE embedding IS NULL
		ORDER BY created_at, rowid
		LIMIT ?`, sqliteLimit(limit))
}

func (s *SQLiteStore) RecentNotes(ctx context.Context, limit int) ([]core.Note, error) {
	return s.queryNotes(ctx, `
		SELECT id, content, created_at, embedding
		FROM notes
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, sqliteLimit(limit))
}

func (s *SQLiteStore) Nearest(ctx context.Context, embedding []float64, k int, excludeID string) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding FROM notes
		WHERE embedding IS NOT NULL AND id != ?
		ORDER BY created_at, rowid`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var results []Match
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		var emb []float64
		if err := json.Unmarshal([]byte(data), &emb); err != nil {
			return nil, fmt.Errorf("unmarshal embedding %s: %w", id, err)
		}
		results = append(results, Match{ID: id, Distance: vector.CosineDistance(embedding, emb)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *SQLiteStore) PutLinks(ctx context.Context, links []core.MemoryLink) error {
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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memory_links (id, source_note_id, target_note_id, strength, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert link: %w", err)
	}
	defer stmt.Close()

	for _, l := range links {
		if _, err := stmt.ExecContext(ctx, l.ID, l.SourceID, l.TargetID, l.Strength, l.Reason, l.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("insert link %s->%s: %w", l.SourceID, l.TargetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit links: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLinks(ctx context.Context, ids []string, minStrength float64) ([]core.MemoryLink, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ph := placeholders(len(ids))
	query := fmt.Sprintf(`
		SELECT id, source_note_id, target_note_id, strength, COALESCE(reason, ''), created_at
		FROM memory_links
		WHERE source_note_id IN (%s)
			AND target_note_id IN (%s)
			AND strength >= ?
		ORDER BY created_at, rowid`, ph, ph)

	args := append(stringArgs(ids), stringArgs(ids)...)
	args = append(args, minStrength)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var links []core.MemoryLink
	for rows.Next() {
		var l core.MemoryLink
		var created int64
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Strength, &l.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.CreatedAt = time.Unix(0, created).UTC()
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *SQLiteStore) Neighbors(ctx context.Context, id string, minStrength float64) ([]core.RelatedNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.content, n.created_at, n.embedding, ml.strength
		FROM memory_links ml
		JOIN notes n ON n.id = ml.target_note_id
		WHERE ml.source_note_id = ?
			AND ml.strength >= ?
		ORDER BY ml.strength DESC, ml.created_at, ml.rowid`, id, minStrength)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	defer rows.Close()

	var related []core.RelatedNote
	for rows.Next() {
		var r core.RelatedNote
		var created int64
		var emb sql.NullString
		if err := rows.Scan(&r.ID, &r.Content, &created, &emb, &r.Strength); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		if r.Embedding, err = decodeEmbedding(emb); err != nil {
			return nil, err
		}
		related = append(related, r)
	}
	return related, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryNotes(ctx context.Context, query string, args ...any) ([]core.Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []core.Note
	for rows.Next() {
		n, err := scanSQLiteNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteNote(row rowScanner) (core.Note, error) {
	var n core.Note
	var created int64
	var emb sql.NullString
	if err := row.Scan(&n.ID, &n.Content, &created, &emb); err != nil {
		return core.Note{}, err
	}
	n.CreatedAt = time.Unix(0, created).UTC()

	var err error
	n.Embedding, err = decodeEmbedding(emb)
	return n, err
}

func decodeEmbedding(emb sql.NullString) ([]float64, error) {
	if !emb.Valid || emb.String == "" {
		return nil, nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(emb.String), &out); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return out, nil
}

// sqliteLimit maps "no limit" to SQLite's -1.
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

// Package store persists notes and memory links and answers nearest-neighbor
// queries over note embeddings.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/go-resurface/core"
)

// ErrEmbeddingExists is returned when an embedding is set on a note that
// already has one. Embeddings are immutable once set.
var ErrEmbeddingExists = errors.New("embedding already set")

// Match is a nearest-neighbor hit. Distance is cosine distance (1 - similarity).
type Match struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// Store is the persistence and similarity-search collaborator of the engine.
// Missing notes are reported with an error wrapping core.ErrNotFound.
type Store interface {
	// CreateNote assigns an id and creation time and stores a note without embedding.
	CreateNote(ctx context.Context, content string) (core.Note, error)

	GetNote(ctx context.Context, id string) (core.Note, error)

	// GetNotes returns the notes found for ids, in the order of ids.
	GetNotes(ctx context.Context, ids []string) ([]core.Note, error)

	// SetEmbedding sets the embedding of a note that has none.
	SetEmbedding(ctx context.Context, id string, embedding []float64) error

	// PendingNotes lists notes without embedding, oldest first.
	PendingNotes(ctx context.Context, limit int) ([]core.Note, error)

	// RecentNotes lists notes newest first.
	RecentNotes(ctx context.Context, limit int) ([]core.Note, error)

	// Nearest returns up to k embedded notes closest to embedding by cosine
	// distance, ascending, never including excludeID.
	Nearest(ctx context.Context, embedding []float64, k int, excludeID string) ([]Match, error)

	// PutLinks inserts all links or none.
	PutLinks(ctx context.Context, links []core.MemoryLink) error

	// GetLinks returns links with both endpoints in ids and strength >= minStrength.
	GetLinks(ctx context.Context, ids []string, minStrength float64) ([]core.MemoryLink, error)

	// Neighbors returns the targets of links leaving id with strength >=
	// minStrength, strongest first.
	Neighbors(ctx context.Context, id string, minStrength float64) ([]core.RelatedNote, error)

	Close() error
}

// Option configures how a store stamps new notes.
type Option func(*identity)

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) Option {
	return func(i *identity) { i.now = now }
}

// WithIDFunc overrides note id generation.
func WithIDFunc(newID func() string) Option {
	return func(i *identity) { i.newID = newID }
}

type identity struct {
	now   func() time.Time
	newID func() string
}

func newIdentity(opts []Option) identity {
	id := identity{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&id)
	}
	return id
}

// stamp builds a new note. Times are UTC at microsecond precision so every
// backend round-trips them identically.
func (i identity) stamp(content string) core.Note {
	return core.Note{
		ID:        i.newID(),
		Content:   content,
		CreatedAt: i.now().UTC().Truncate(time.Microsecond),
	}
}

func validateLinks(links []core.MemoryLink) error {
	for i, l := range links {
		if l.ID == "" || l.SourceID == "" || l.TargetID == "" {
			return fmt.Errorf("link %d: missing id", i)
		}
		if l.Strength < 0 || l.Strength > 1 {
			return fmt.Errorf("link %d: strength %v outside [0,1]", i, l.Strength)
		}
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", core.ErrNotFound, id)
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// orderByIDs arranges notes in the order of ids, dropping ids without a note.
func orderByIDs(ids []string, byID map[string]core.Note) []core.Note {
	out := make([]core.Note, 0, len(ids))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

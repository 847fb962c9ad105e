package store

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hubenschmidt/go-resurface/vector"
)

const chromemCollection = "notes"

// ChromemStore keeps notes and links in memory and delegates
// nearest-neighbor search to a chromem-go collection.
// chromem-go is a pure Go, embedded vector database.
type ChromemStore struct {
	*MemoryStore
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromemStore creates a chromem-backed store.
func NewChromemStore(opts ...Option) (*ChromemStore, error) {
	db := chromem.NewDB()

	col, err := db.CreateCollection(
		chromemCollection,
		nil, // No collection metadata
		nil, // No embedding func: embeddings are always provided
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemStore{
		MemoryStore: NewMemoryStore(opts...),
		db:          db,
		col:         col,
	}, nil
}

// SetEmbedding indexes the embedding in chromem before recording it on the note.
func (s *ChromemStore) SetEmbedding(ctx context.Context, id string, embedding []float64) error {
	note, err := s.MemoryStore.GetNote(ctx, id)
	if err != nil {
		return err
	}
	if note.HasEmbedding() {
		return ErrEmbeddingExists
	}

	doc := chromem.Document{
		ID:        id,
		Content:   note.Content,
		Embedding: vector.ToFloat32(embedding),
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	return s.MemoryStore.SetEmbedding(ctx, id, embedding)
}

// Nearest queries the chromem collection. chromem-go requires
// nResults <= collection size, so the request is clamped.
func (s *ChromemStore) Nearest(ctx context.Context, embedding []float64, k int, excludeID string) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	want := k
	if excludeID != "" {
		want++
	}
	if count := s.col.Count(); want > count {
		want = count
	}
	if want == 0 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, vector.ToFloat32(embedding), want, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if r.ID == excludeID {
			continue
		}
		if len(matches) == k {
			break
		}
		matches = append(matches, Match{ID: r.ID, Distance: 1 - float64(r.Similarity)})
	}
	return matches, nil
}

var _ Store = (*ChromemStore)(nil)

package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/vector"
)

// MemoryStore is an in-memory store for development and testing.
// Nearest is a brute-force cosine scan.
type MemoryStore struct {
	identity

	mu    sync.RWMutex
	notes map[string]core.Note
	order []string
	links []core.MemoryLink
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		identity: newIdentity(opts),
		notes:    make(map[string]core.Note),
	}
}

func (s *MemoryStore) CreateNote(ctx context.Context, content string) (core.Note, error) {
	note := s.stamp(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes[note.ID] = note
	s.order = append(s.order, note.ID)
	return note, nil
}

func (s *MemoryStore) GetNote(ctx context.Context, id string) (core.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notes[id]
	if !ok {
		return core.Note{}, notFound(id)
	}
	return cloneNote(n), nil
}

func (s *MemoryStore) GetNotes(ctx context.Context, ids []string) ([]core.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Note, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.notes[id]; ok {
			out = append(out, cloneNote(n))
		}
	}
	return out, nil
}

func (s *MemoryStore) SetEmbedding(ctx context.Context, id string, embedding []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return notFound(id)
	}
	if n.HasEmbedding() {
		return ErrEmbeddingExists
	}
	n.Embedding = slices.Clone(embedding)
	s.notes[id] = n
	return nil
}

func (s *MemoryStore) PendingNotes(ctx context.Context, limit int) ([]core.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Note
	for _, id := range s.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		if n := s.notes[id]; !n.HasEmbedding() {
			out = append(out, cloneNote(n))
		}
	}
	return out, nil
}

func (s *MemoryStore) RecentNotes(ctx context.Context, limit int) ([]core.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Note, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, cloneNote(s.notes[s.order[i]]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Nearest ranks embedded notes by cosine distance. Equal distances keep
// insertion order.
func (s *MemoryStore) Nearest(ctx context.Context, embedding []float64, k int, excludeID string) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.computeDistances(embedding, excludeID)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) computeDistances(embedding []float64, excludeID string) []Match {
	results := make([]Match, 0, len(s.order))
	for _, id := range s.order {
		n := s.notes[id]
		if id == excludeID || !n.HasEmbedding() {
			continue
		}
		results = append(results, Match{ID: id, Distance: vector.CosineDistance(embedding, n.Embedding)})
	}
	return results
}

func (s *MemoryStore) PutLinks(ctx context.Context, links []core.MemoryLink) error {
	if len(links) == 0 {
		return nil
	}
	if err := validateLinks(links); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range links {
		if _, ok := s.notes[l.SourceID]; !ok {
			return notFound(l.SourceID)
		}
		if _, ok := s.notes[l.TargetID]; !ok {
			return notFound(l.TargetID)
		}
	}
	s.links = append(s.links, links...)
	return nil
}

func (s *MemoryStore) GetLinks(ctx context.Context, ids []string, minStrength float64) ([]core.MemoryLink, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	set := idSet(ids)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.MemoryLink
	for _, l := range s.links {
		_, src := set[l.SourceID]
		_, dst := set[l.TargetID]
		if src && dst && l.Strength >= minStrength {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemoryStore) Neighbors(ctx context.Context, id string, minStrength float64) ([]core.RelatedNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.RelatedNote
	for _, l := range s.links {
		if l.SourceID != id || l.Strength < minStrength {
			continue
		}
		if n, ok := s.notes[l.TargetID]; ok {
			out = append(out, core.RelatedNote{Note: cloneNote(n), Strength: l.Strength})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Count returns the number of notes in the store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

func cloneNote(n core.Note) core.Note {
	n.Embedding = slices.Clone(n.Embedding)
	return n
}

// Package recall ranks notes against a query and groups them into clusters
// of linked memories.
package recall

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/store"
	"github.com/hubenschmidt/go-resurface/vector"
)

const (
	DefaultCandidateFactor = 2
	DefaultAgeWeight       = 0.1
)

// Embedder embeds query text. *embedding.Cache satisfies it.
type Embedder interface {
	Get(ctx context.Context, text string) ([]float64, error)
}

// Searcher is the subset of store.Store needed to rank candidates.
type Searcher interface {
	Nearest(ctx context.Context, embedding []float64, k int, excludeID string) ([]store.Match, error)
	GetNotes(ctx context.Context, ids []string) ([]core.Note, error)
}

// ScorerConfig tunes candidate retrieval and relevance.
type ScorerConfig struct {
	// CandidateFactor multiplies the recall limit to size the neighbor query.
	CandidateFactor int
	// AgeWeight scales the logarithmic age bonus.
	AgeWeight float64
}

// Scorer retrieves recall candidates and scores them.
type Scorer struct {
	embedder Embedder
	store    Searcher
	cfg      ScorerConfig
	now      func() time.Time
}

// NewScorer creates a Scorer. A nil now uses time.Now; zero config fields
// take their defaults.
func NewScorer(embedder Embedder, s Searcher, cfg ScorerConfig, now func() time.Time) *Scorer {
	if cfg.CandidateFactor <= 0 {
		cfg.CandidateFactor = DefaultCandidateFactor
	}
	if cfg.AgeWeight == 0 {
		cfg.AgeWeight = DefaultAgeWeight
	}
	if now == nil {
		now = time.Now
	}
	return &Scorer{embedder: embedder, store: s, cfg: cfg, now: now}
}

// ScoreCandidates returns up to CandidateFactor*limit notes nearest to
// query, by descending relevance. Ties keep the store's nearest-first order.
func (s *Scorer) ScoreCandidates(ctx context.Context, query string, limit int) ([]core.ScoredNote, error) {
	q, err := s.embedder.Get(ctx, query)
	if err != nil {
		return nil, core.ProviderError("score candidates", err)
	}

	matches, err := s.store.Nearest(ctx, q, s.cfg.CandidateFactor*limit, "")
	if err != nil {
		return nil, core.StoreError("score candidates", "", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	notes, err := s.store.GetNotes(ctx, ids)
	if err != nil {
		return nil, core.StoreError("score candidates", "", err)
	}
	byID := make(map[string]core.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}

	now := s.now()
	scored := make([]core.ScoredNote, 0, len(matches))
	for _, m := range matches {
		n, ok := byID[m.ID]
		if !ok {
			continue
		}
		similarity := vector.Similarity(m.Distance)
		scored = append(scored, core.ScoredNote{
			Note:           n,
			Similarity:     similarity,
			RelevanceScore: RelevanceScore(similarity, n.CreatedAt, now, s.cfg.AgeWeight),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})
	return scored, nil
}

// RelevanceScore boosts similarity by note age:
//
//	similarity * (1 + ageWeight * ln(ageDays + 1))
//
// Notes dated in the future count as age zero.
func RelevanceScore(similarity float64, createdAt, now time.Time, ageWeight float64) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	ageDays := age.Hours() / 24
	return similarity * (1 + ageWeight*math.Log(ageDays+1))
}

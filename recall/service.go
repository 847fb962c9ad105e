package recall

import (
	"context"

	"github.com/hubenschmidt/go-resurface/core"
)

// Service answers recall queries. It holds no per-query state.
type Service struct {
	scorer    *Scorer
	clusterer *Clusterer
}

func NewService(scorer *Scorer, clusterer *Clusterer) *Service {
	return &Service{scorer: scorer, clusterer: clusterer}
}

// Recall scores candidates for query and clusters them, opening at most
// limit clusters. A store with no embedded notes yields no clusters.
func (s *Service) Recall(ctx context.Context, query string, limit int) ([]core.Cluster, error) {
	candidates, err := s.scorer.ScoreCandidates(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return s.clusterer.Cluster(ctx, candidates, limit)
}

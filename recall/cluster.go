package recall

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hubenschmidt/go-resurface/core"
)

const (
	DefaultMinLinkStrength = 0.75
	DefaultSoftCap         = 5
)

// LinkReader loads links among a set of notes.
type LinkReader interface {
	GetLinks(ctx context.Context, ids []string, minStrength float64) ([]core.MemoryLink, error)
}

// ClusterConfig tunes cluster assembly.
type ClusterConfig struct {
	// MinLinkStrength is the weakest link that joins two notes in a cluster.
	MinLinkStrength float64
	// SoftCap stops neighbor expansion once a cluster holds this many notes.
	// Neighbors already queued are still admitted.
	SoftCap int
}

// Clusterer groups scored candidates into connected clusters.
type Clusterer struct {
	links    LinkReader
	cfg      ClusterConfig
	labeler  Labeler
	fallback Labeler
	logger   *slog.Logger
}

// NewClusterer creates a Clusterer. A nil labeler uses TruncateLabeler.
func NewClusterer(links LinkReader, cfg ClusterConfig, labeler Labeler, logger *slog.Logger) *Clusterer {
	if cfg.MinLinkStrength == 0 {
		cfg.MinLinkStrength = DefaultMinLinkStrength
	}
	if cfg.SoftCap <= 0 {
		cfg.SoftCap = DefaultSoftCap
	}
	fallback := TruncateLabeler{}
	if labeler == nil {
		labeler = fallback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Clusterer{
		links:    links,
		cfg:      cfg,
		labeler:  labeler,
		fallback: fallback,
		logger:   logger.With("component", "recall"),
	}
}

// Cluster opens at most maxClusters clusters seeded from candidates in rank
// order and labels each one.
func (c *Clusterer) Cluster(ctx context.Context, candidates []core.ScoredNote, maxClusters int) ([]core.Cluster, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, n := range candidates {
		ids[i] = n.ID
	}
	links, err := c.links.GetLinks(ctx, ids, c.cfg.MinLinkStrength)
	if err != nil {
		return nil, core.StoreError("cluster", "", err)
	}

	groups := Assemble(candidates, links, maxClusters, c.cfg.SoftCap)

	clusters := make([]core.Cluster, len(groups))
	for i, g := range groups {
		clusters[i] = core.Cluster{Label: c.label(ctx, g), Notes: g}
	}
	return clusters, nil
}

func (c *Clusterer) label(ctx context.Context, notes []core.ScoredNote) string {
	label, err := c.labeler.Label(ctx, notes)
	if err == nil && label != "" {
		return label
	}
	if err != nil {
		c.logger.Warn("labeler failed, truncating", "error", err)
	}
	label, _ = c.fallback.Label(ctx, notes)
	return label
}

// Assemble builds clusters by breadth-first search over links, read as
// source -> target adjacency with neighbors visited in candidate rank order.
// The first maxClusters candidates are seeds; a seed already placed in an
// earlier cluster opens none. A dequeued note joins the current cluster and
// its neighbors are queued only while the cluster is smaller than softCap,
// so a cluster can exceed softCap by the notes already queued. Every
// candidate appears in at most one cluster.
func Assemble(candidates []core.ScoredNote, links []core.MemoryLink, maxClusters, softCap int) [][]core.ScoredNote {
	byID := make(map[string]core.ScoredNote, len(candidates))
	rank := make(map[string]int, len(candidates))
	for i, n := range candidates {
		byID[n.ID] = n
		rank[n.ID] = i
	}

	graph := make(map[string][]string, len(candidates))
	for _, l := range links {
		if _, ok := byID[l.SourceID]; !ok {
			continue
		}
		if _, ok := byID[l.TargetID]; !ok {
			continue
		}
		graph[l.SourceID] = append(graph[l.SourceID], l.TargetID)
	}
	for _, adj := range graph {
		sort.SliceStable(adj, func(i, j int) bool { return rank[adj[i]] < rank[adj[j]] })
	}

	seeds := candidates
	if maxClusters < len(seeds) {
		seeds = seeds[:max(maxClusters, 0)]
	}

	visited := make(map[string]bool, len(candidates))
	var clusters [][]core.ScoredNote

	for _, seed := range seeds {
		if visited[seed.ID] {
			continue
		}

		var cluster []core.ScoredNote
		queue := []string{seed.ID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if visited[id] {
				continue
			}
			visited[id] = true
			cluster = append(cluster, byID[id])

			if len(cluster) < softCap {
				for _, next := range graph[id] {
					if !visited[next] {
						queue = append(queue, next)
					}
				}
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

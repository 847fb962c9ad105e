// Package engine ties storage, embeddings, link discovery and recall into the
// operations exposed to callers.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/embedding"
	"github.com/hubenschmidt/go-resurface/linking"
	"github.com/hubenschmidt/go-resurface/monitor"
	"github.com/hubenschmidt/go-resurface/recall"
	"github.com/hubenschmidt/go-resurface/store"
)

const (
	DefaultOperationTimeout = 30 * time.Second
	DefaultMaxContentLength = 10000
	DefaultMaxRecallLimit   = 50
	DefaultGraphMinStrength = 0.75
	DefaultGraphSeeds       = 20
	DefaultGraphMaxNodes    = 50
	DefaultBackfillBatch    = 32
)

const (
	opCreate   = "create_and_link"
	opRecall   = "recall"
	opRelated  = "related"
	opGetNote  = "get_note"
	opGraph    = "graph"
	opBackfill = "embed_pending"
	opRelink   = "relink"
)

type Config struct {
	Linking linking.Config
	Scorer  recall.ScorerConfig
	Cluster recall.ClusterConfig

	// OperationTimeout bounds every operation on top of the caller's context.
	OperationTimeout time.Duration
	// MaxContentLength is the longest note accepted, in runes.
	MaxContentLength int
	MaxRecallLimit   int

	GraphSeeds    int
	GraphMaxNodes int
}

func (c Config) withDefaults() Config {
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = DefaultMaxContentLength
	}
	if c.MaxRecallLimit <= 0 {
		c.MaxRecallLimit = DefaultMaxRecallLimit
	}
	if c.GraphSeeds <= 0 {
		c.GraphSeeds = DefaultGraphSeeds
	}
	if c.GraphMaxNodes <= 0 {
		c.GraphMaxNodes = DefaultGraphMaxNodes
	}
	return c
}

// Deps are the collaborators an Engine is built from. Store and Cache are
// required.
type Deps struct {
	Store     store.Store
	Cache     *embedding.Cache
	Labeler   recall.Labeler
	Collector monitor.Collector
	Logger    *slog.Logger
	// Now stamps links and ages notes. Defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	cfg       Config
	store     store.Store
	cache     *embedding.Cache
	linker    *linking.Linker
	recall    *recall.Service
	collector monitor.Collector
	logger    *slog.Logger
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("engine: embedding cache is required")
	}

	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Collector
	if collector == nil {
		collector = monitor.NewNoOpCollector()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	linker := linking.New(deps.Store, cfg.Linking,
		linking.WithClock(now),
		linking.WithLogger(logger),
	)
	scorer := recall.NewScorer(deps.Cache, deps.Store, cfg.Scorer, now)
	clusterer := recall.NewClusterer(deps.Store, cfg.Cluster, deps.Labeler, logger)

	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		cache:     deps.Cache,
		linker:    linker,
		recall:    recall.NewService(scorer, clusterer),
		collector: collector,
		logger:    logger.With("component", "engine"),
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// CreateAndLink stores a note, embeds it and links it to similar notes. If
// embedding fails the note stays stored without an embedding and the
// provider error is returned along with it.
func (e *Engine) CreateAndLink(ctx context.Context, content string) (core.Note, []core.MemoryLink, error) {
	if strings.TrimSpace(content) == "" {
		return core.Note{}, nil, core.Invalid(opCreate, "content is empty")
	}
	if n := utf8.RuneCountInString(content); n > e.cfg.MaxContentLength {
		return core.Note{}, nil, core.Invalid(opCreate, "content has %d characters, limit is %d", n, e.cfg.MaxContentLength)
	}

	var note core.Note
	var links []core.MemoryLink
	err := e.run(ctx, opCreate, func(ctx context.Context) (int, error) {
		n, err := e.store.CreateNote(ctx, content)
		if err != nil {
			return 0, core.StoreError("create note", "", err)
		}
		note = n

		vec, err := e.cache.Get(ctx, content)
		if err != nil {
			e.logger.Warn("note stored without embedding", "note", n.ID, "error", err)
			return 0, err
		}
		if err := e.store.SetEmbedding(ctx, n.ID, vec); err != nil {
			return 0, core.StoreError("set embedding", n.ID, err)
		}
		note.Embedding = vec

		links, err = e.linker.DiscoverAndLink(ctx, note)
		return len(links), err
	})
	return note, links, err
}

// Recall returns clustered notes relevant to query. limit bounds both the
// number of clusters and, through the candidate factor, the notes examined.
func (e *Engine) Recall(ctx context.Context, query string, limit int) ([]core.Cluster, error) {
	if strings.TrimSpace(query) == "" {
		return nil, core.Invalid(opRecall, "query is empty")
	}
	if limit < 1 || limit > e.cfg.MaxRecallLimit {
		return nil, core.Invalid(opRecall, "limit %d outside [1,%d]", limit, e.cfg.MaxRecallLimit)
	}

	var clusters []core.Cluster
	err := e.run(ctx, opRecall, func(ctx context.Context) (int, error) {
		var err error
		clusters, err = e.recall.Recall(ctx, query, limit)
		return len(clusters), err
	})
	return clusters, err
}

func (e *Engine) Related(ctx context.Context, noteID string, minStrength float64) ([]core.RelatedNote, error) {
	if noteID == "" {
		return nil, core.Invalid(opRelated, "note id is empty")
	}
	if !validStrength(minStrength) {
		return nil, core.Invalid(opRelated, "min strength %v outside [0,1]", minStrength)
	}

	var related []core.RelatedNote
	err := e.run(ctx, opRelated, func(ctx context.Context) (int, error) {
		var err error
		related, err = e.linker.Related(ctx, noteID, minStrength)
		return len(related), err
	})
	return related, err
}

func (e *Engine) GetNote(ctx context.Context, id string) (core.Note, error) {
	if id == "" {
		return core.Note{}, core.Invalid(opGetNote, "note id is empty")
	}

	var note core.Note
	err := e.run(ctx, opGetNote, func(ctx context.Context) (int, error) {
		n, err := e.store.GetNote(ctx, id)
		if err != nil {
			return 0, core.StoreError("get note", id, err)
		}
		note = n
		return 1, nil
	})
	return note, err
}

// Relink re-runs link discovery for a note that already has an embedding,
// such as one whose discovery failed after the embedding was saved.
// Neighbors the note already links to are skipped.
func (e *Engine) Relink(ctx context.Context, id string) ([]core.MemoryLink, error) {
	if id == "" {
		return nil, core.Invalid(opRelink, "note id is empty")
	}

	var links []core.MemoryLink
	err := e.run(ctx, opRelink, func(ctx context.Context) (int, error) {
		n, err := e.store.GetNote(ctx, id)
		if err != nil {
			return 0, core.StoreError("get note", id, err)
		}
		if !n.HasEmbedding() {
			return 0, core.Invalid(opRelink, "note %s has no embedding yet, run backfill first", id)
		}
		links, err = e.linker.Relink(ctx, n)
		return len(links), err
	})
	return links, err
}

// Graph returns a read-only view of notes and the links among them. A blank
// query shows the most recent notes; otherwise the notes nearest the query
// and their link targets, newest first.
func (e *Engine) Graph(ctx context.Context, query string, minStrength float64) (core.Graph, error) {
	if !validStrength(minStrength) {
		return core.Graph{}, core.Invalid(opGraph, "min strength %v outside [0,1]", minStrength)
	}

	graph := core.Graph{Nodes: []core.Note{}, Edges: []core.MemoryLink{}}
	err := e.run(ctx, opGraph, func(ctx context.Context) (int, error) {
		nodes, err := e.graphNodes(ctx, strings.TrimSpace(query), minStrength)
		if err != nil || len(nodes) == 0 {
			return 0, err
		}

		ids := make([]string, len(nodes))
		for i, n := range nodes {
			n.Embedding = nil
			nodes[i] = n
			ids[i] = n.ID
		}

		edges, err := e.store.GetLinks(ctx, ids, minStrength)
		if err != nil {
			return 0, core.StoreError("graph edges", "", err)
		}
		sort.SliceStable(edges, func(i, j int) bool {
			return edges[i].Strength > edges[j].Strength
		})

		graph.Nodes = nodes
		if edges != nil {
			graph.Edges = edges
		}
		return len(nodes), nil
	})
	return graph, err
}

func (e *Engine) graphNodes(ctx context.Context, query string, minStrength float64) ([]core.Note, error) {
	if query == "" {
		notes, err := e.store.RecentNotes(ctx, e.cfg.GraphMaxNodes)
		if err != nil {
			return nil, core.StoreError("graph nodes", "", err)
		}
		return notes, nil
	}

	vec, err := e.cache.Get(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := e.store.Nearest(ctx, vec, e.cfg.GraphSeeds, "")
	if err != nil {
		return nil, core.StoreError("graph seeds", "", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	seedIDs := make([]string, len(matches))
	for i, m := range matches {
		seedIDs[i] = m.ID
	}
	seeds, err := e.store.GetNotes(ctx, seedIDs)
	if err != nil {
		return nil, core.StoreError("graph seeds", "", err)
	}

	byID := make(map[string]core.Note, len(seeds))
	for _, n := range seeds {
		byID[n.ID] = n
	}
	for _, id := range seedIDs {
		related, err := e.store.Neighbors(ctx, id, minStrength)
		if err != nil {
			return nil, core.StoreError("graph neighbors", id, err)
		}
		for _, r := range related {
			byID[r.ID] = r.Note
		}
	}

	nodes := make([]core.Note, 0, len(byID))
	for _, n := range byID {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if !nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].CreatedAt.After(nodes[j].CreatedAt)
		}
		return nodes[i].ID < nodes[j].ID
	})
	if len(nodes) > e.cfg.GraphMaxNodes {
		nodes = nodes[:e.cfg.GraphMaxNodes]
	}
	return nodes, nil
}

// EmbedPending embeds up to batchSize notes stored without an embedding,
// oldest first, and discovers their links. Zero uses DefaultBackfillBatch.
func (e *Engine) EmbedPending(ctx context.Context, batchSize int) (BackfillResult, error) {
	if batchSize < 0 {
		return BackfillResult{}, core.Invalid(opBackfill, "batch size %d is negative", batchSize)
	}
	if batchSize == 0 {
		batchSize = DefaultBackfillBatch
	}

	var res BackfillResult
	err := e.run(ctx, opBackfill, func(ctx context.Context) (int, error) {
		pending, err := e.store.PendingNotes(ctx, batchSize)
		if err != nil {
			return 0, core.StoreError("pending notes", "", err)
		}
		if len(pending) == 0 {
			return 0, nil
		}

		texts := make([]string, len(pending))
		for i, n := range pending {
			texts[i] = n.Content
		}
		vecs, err := e.cache.GetBatch(ctx, texts)
		if err != nil {
			return 0, err
		}

		for i, n := range pending {
			err := e.store.SetEmbedding(ctx, n.ID, vecs[i])
			if errors.Is(err, store.ErrEmbeddingExists) {
				res.Skipped++
				continue
			}
			if err != nil {
				return res.Embedded, core.StoreError("set embedding", n.ID, err)
			}
			res.Embedded++

			n.Embedding = vecs[i]
			links, err := e.linker.DiscoverAndLink(ctx, n)
			if err != nil {
				return res.Embedded, err
			}
			res.Links += len(links)
		}
		return res.Embedded, nil
	})
	return res, err
}

// Metrics snapshots operation metrics together with cache statistics.
func (e *Engine) Metrics() MetricsSummary {
	return MetricsSummary{Summary: e.collector.Flush(), Cache: e.cache.Stats()}
}

// Close releases the cache and the store.
func (e *Engine) Close() error {
	e.cache.Close()
	return e.store.Close()
}

func validStrength(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

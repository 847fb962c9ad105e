// Package linking discovers semantic links between notes at write time and
// answers direct-neighbor queries over them.
package linking

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/store"
	"github.com/hubenschmidt/go-resurface/vector"
)

const (
	DefaultTopK                = 10
	DefaultSimilarityThreshold = 0.7
)

// Config tunes link discovery.
type Config struct {
	// TopK is the number of nearest neighbors examined per note.
	TopK int
	// SimilarityThreshold is the minimum cosine similarity that creates a link.
	SimilarityThreshold float64
	// Reason is recorded on every discovered link.
	Reason string
}

// DefaultConfig returns the default discovery settings.
func DefaultConfig() Config {
	return Config{
		TopK:                DefaultTopK,
		SimilarityThreshold: DefaultSimilarityThreshold,
		Reason:              core.ReasonSemanticSimilarity,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.Reason == "" {
		c.Reason = d.Reason
	}
	return c
}

// Store is the subset of store.Store the linker needs.
type Store interface {
	GetNote(ctx context.Context, id string) (core.Note, error)
	Nearest(ctx context.Context, embedding []float64, k int, excludeID string) ([]store.Match, error)
	PutLinks(ctx context.Context, links []core.MemoryLink) error
	Neighbors(ctx context.Context, id string, minStrength float64) ([]core.RelatedNote, error)
}

// Linker creates bidirectional links between a note and its close neighbors.
//
// The neighbor query and the link insert are separate store calls. Two notes
// linked concurrently may each create the pair, leaving duplicate links;
// duplicates never invert ranking or clustering.
type Linker struct {
	store  Store
	cfg    Config
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option customizes a Linker.
type Option func(*Linker)

// WithClock overrides the link creation-time source.
func WithClock(now func() time.Time) Option {
	return func(l *Linker) { l.now = now }
}

// WithIDFunc overrides link id generation.
func WithIDFunc(newID func() string) Option {
	return func(l *Linker) { l.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) { l.logger = logger }
}

// New creates a Linker. Zero config fields take their defaults.
func New(s Store, cfg Config, opts ...Option) *Linker {
	l := &Linker{
		store:  s,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "linking")
	return l
}

// Config returns the effective configuration.
func (l *Linker) Config() Config {
	return l.cfg
}

// DiscoverAndLink links note to every one of its TopK nearest neighbors whose
// similarity reaches the threshold, in both directions, in one atomic batch.
// A note without an embedding yields no links and no error.
func (l *Linker) DiscoverAndLink(ctx context.Context, note core.Note) ([]core.MemoryLink, error) {
	return l.discover(ctx, note, nil)
}

// Relink runs discovery again for note, skipping neighbors it already links
// to. Running it on a fully linked note creates nothing.
func (l *Linker) Relink(ctx context.Context, note core.Note) ([]core.MemoryLink, error) {
	if !note.HasEmbedding() {
		return nil, nil
	}

	existing, err := l.store.Neighbors(ctx, note.ID, 0)
	if err != nil {
		return nil, core.StoreError("relink", note.ID, err)
	}
	linked := make(map[string]bool, len(existing))
	for _, r := range existing {
		linked[r.ID] = true
	}
	return l.discover(ctx, note, linked)
}

func (l *Linker) discover(ctx context.Context, note core.Note, skip map[string]bool) ([]core.MemoryLink, error) {
	if !note.HasEmbedding() {
		return nil, nil
	}

	matches, err := l.store.Nearest(ctx, note.Embedding, l.cfg.TopK, note.ID)
	if err != nil {
		return nil, core.StoreError("discover links", note.ID, err)
	}

	links := l.buildLinks(note.ID, matches, skip)
	if len(links) == 0 {
		return nil, nil
	}

	if err := l.store.PutLinks(ctx, links); err != nil {
		l.logger.Warn("link batch failed", "note", note.ID, "links", len(links), "error", err)
		return nil, core.StoreError("discover links", note.ID, err)
	}

	l.logger.Debug("links created", "note", note.ID, "neighbors", len(links)/2)
	return links, nil
}

func (l *Linker) buildLinks(noteID string, matches []store.Match, skip map[string]bool) []core.MemoryLink {
	now := l.now().UTC()

	var links []core.MemoryLink
	for _, m := range matches {
		if m.ID == noteID || skip[m.ID] {
			continue
		}
		similarity := vector.Similarity(m.Distance)
		if similarity < l.cfg.SimilarityThreshold {
			continue
		}
		strength := clamp(similarity)
		links = append(links,
			l.link(noteID, m.ID, strength, now),
			l.link(m.ID, noteID, strength, now),
		)
	}
	return links
}

func (l *Linker) link(src, dst string, strength float64, now time.Time) core.MemoryLink {
	return core.MemoryLink{
		ID:        l.newID(),
		SourceID:  src,
		TargetID:  dst,
		Strength:  strength,
		Reason:    l.cfg.Reason,
		CreatedAt: now,
	}
}

// Related returns the direct link targets of noteID with strength at least
// minStrength, strongest first.
func (l *Linker) Related(ctx context.Context, noteID string, minStrength float64) ([]core.RelatedNote, error) {
	if math.IsNaN(minStrength) || minStrength < 0 || minStrength > 1 {
		return nil, core.Invalid("related", "min strength %v outside [0,1]", minStrength)
	}

	if _, err := l.store.GetNote(ctx, noteID); err != nil {
		return nil, core.StoreError("related", noteID, err)
	}

	related, err := l.store.Neighbors(ctx, noteID, minStrength)
	if err != nil {
		return nil, core.StoreError("related", noteID, err)
	}
	return related, nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

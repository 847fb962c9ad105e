package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-resurface/config"
	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/embedding"
	"github.com/hubenschmidt/go-resurface/llm"
	"github.com/hubenschmidt/go-resurface/monitor"
	"github.com/hubenschmidt/go-resurface/recall"
	"github.com/hubenschmidt/go-resurface/store"
)

// stubProvider embeds known texts from a table.
type stubProvider struct {
	mu      sync.Mutex
	vectors map[string][]float64
	err     error
	calls   int
}

func (p *stubProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := p.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func (p *stubProvider) Dimensions() int { return 3 }

func (p *stubProvider) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// blockingProvider waits for its context to end.
type blockingProvider struct{}

func (blockingProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) Dimensions() int { return 3 }

func tickClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func defaultVectors() map[string][]float64 {
	return map[string][]float64{
		"alpha one":   {1, 0, 0},
		"alpha two":   {0.9, 0.1, 0},
		"alpha three": {0.8, 0.2, 0},
		"beta":        {0, 0, 1},
		"alpha":       {1, 0, 0},
	}
}

type fixture struct {
	engine    *Engine
	store     *store.MemoryStore
	provider  *stubProvider
	collector *monitor.InMemoryCollector
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	p := &stubProvider{vectors: defaultVectors()}
	cache, err := embedding.NewCache(p, embedding.CacheConfig{})
	require.NoError(t, err)

	st := store.NewMemoryStore(store.WithClock(tickClock(time.Now().Add(-time.Hour))))
	collector := monitor.NewInMemoryCollector()
	eng, err := New(cfg, Deps{Store: st, Cache: cache, Collector: collector})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	return &fixture{engine: eng, store: st, provider: p, collector: collector}
}

func (f *fixture) create(t *testing.T, content string) (core.Note, []core.MemoryLink) {
	t.Helper()
	n, links, err := f.engine.CreateAndLink(context.Background(), content)
	require.NoError(t, err)
	return n, links
}

func TestNew_RequiresStoreAndCache(t *testing.T) {
	cache, err := embedding.NewCache(embedding.NewHashProvider(8), embedding.CacheConfig{})
	require.NoError(t, err)

	_, err = New(Config{}, Deps{Cache: cache})
	assert.Error(t, err)
	_, err = New(Config{}, Deps{Store: store.NewMemoryStore()})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(t, Config{})
	cfg := f.engine.Config()
	assert.Equal(t, DefaultOperationTimeout, cfg.OperationTimeout)
	assert.Equal(t, DefaultMaxRecallLimit, cfg.MaxRecallLimit)
	assert.Equal(t, DefaultMaxContentLength, cfg.MaxContentLength)
}

func TestCreateAndLink_LinksSimilarNotes(t *testing.T) {
	f := newFixture(t, Config{})

	first, links := f.create(t, "alpha one")
	assert.True(t, first.HasEmbedding())
	assert.Empty(t, links)

	second, links := f.create(t, "alpha two")
	require.Len(t, links, 2)
	for _, l := range links {
		assert.Contains(t, []string{first.ID, second.ID}, l.SourceID)
		assert.Contains(t, []string{first.ID, second.ID}, l.TargetID)
		assert.Greater(t, l.Strength, 0.99)
		assert.Equal(t, core.ReasonSemanticSimilarity, l.Reason)
	}

	_, links = f.create(t, "beta")
	assert.Empty(t, links)

	stored, err := f.engine.GetNote(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha two", stored.Content)
	assert.True(t, stored.HasEmbedding())
}

func TestCreateAndLink_RejectsInvalidContent(t *testing.T) {
	f := newFixture(t, Config{MaxContentLength: 5})

	for _, content := range []string{"", "   \n\t", "abcdef"} {
		_, _, err := f.engine.CreateAndLink(context.Background(), content)
		assert.ErrorIs(t, err, core.ErrInvalidInput, "content %q", content)
	}

	assert.Equal(t, 0, f.store.Count())
	assert.Equal(t, 0, f.provider.callCount())
}

func TestCreateAndLink_CountsRunes(t *testing.T) {
	f := newFixture(t, Config{MaxContentLength: 5})
	f.provider.vectors["기억하다"] = []float64{0, 1, 0}

	_, _, err := f.engine.CreateAndLink(context.Background(), "기억하다")
	assert.NoError(t, err)
}

func TestCreateAndLink_EmbedFailureKeepsNote(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.create(t, "alpha one")

	f.provider.setErr(errors.New("provider down"))
	note, links, err := f.engine.CreateAndLink(ctx, "alpha two")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbeddingProvider)
	assert.NotEmpty(t, note.ID)
	assert.Empty(t, links)

	pending, err := f.store.PendingNotes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, note.ID, pending[0].ID)

	f.provider.setErr(nil)
	res, err := f.engine.EmbedPending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Embedded)
	assert.Equal(t, 2, res.Links)

	pending, err = f.store.PendingNotes(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEmbedPending_NothingPending(t *testing.T) {
	f := newFixture(t, Config{})
	f.create(t, "alpha one")

	res, err := f.engine.EmbedPending(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{}, res)

	_, err = f.engine.EmbedPending(context.Background(), -1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRecall_ValidatesBeforeEmbedding(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	cases := []struct {
		query string
		limit int
	}{
		{"", 10},
		{"  ", 10},
		{"alpha", 0},
		{"alpha", 51},
	}
	for _, tc := range cases {
		_, err := f.engine.Recall(ctx, tc.query, tc.limit)
		assert.ErrorIs(t, err, core.ErrInvalidInput, "query %q limit %d", tc.query, tc.limit)
	}
	assert.Equal(t, 0, f.provider.callCount())
}

func TestRecall_ClustersLinkedNotes(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	clusters, err := f.engine.Recall(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, clusters)

	f.create(t, "alpha one")
	f.create(t, "alpha two")
	f.create(t, "alpha three")
	f.create(t, "beta")

	clusters, err = f.engine.Recall(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	require.Len(t, clusters[0].Notes, 3)
	assert.Equal(t, "alpha one", clusters[0].Notes[0].Content)
	assert.Equal(t, "alpha one", clusters[0].Label)

	require.Len(t, clusters[1].Notes, 1)
	assert.Equal(t, "beta", clusters[1].Notes[0].Content)
}

func TestRelated(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	first, _ := f.create(t, "alpha one")
	second, _ := f.create(t, "alpha two")
	f.create(t, "beta")

	related, err := f.engine.Related(ctx, first.ID, 0)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, second.ID, related[0].ID)

	related, err = f.engine.Related(ctx, first.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, related)

	_, err = f.engine.Related(ctx, "missing", 0)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.engine.Related(ctx, first.ID, 1.5)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.engine.Related(ctx, "", 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestGetNote_NotFound(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.engine.GetNote(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.engine.GetNote(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestGraph_RecentNotes(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	g, err := f.engine.Graph(ctx, "", DefaultGraphMinStrength)
	require.NoError(t, err)
	assert.NotNil(t, g.Nodes)
	assert.NotNil(t, g.Edges)
	assert.Empty(t, g.Nodes)

	for _, c := range []string{"alpha one", "alpha two", "alpha three", "beta"} {
		f.create(t, c)
	}

	g, err = f.engine.Graph(ctx, "", DefaultGraphMinStrength)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 4)
	assert.Equal(t, "beta", g.Nodes[0].Content)
	assert.Equal(t, "alpha one", g.Nodes[3].Content)
	for _, n := range g.Nodes {
		assert.Nil(t, n.Embedding)
	}

	require.Len(t, g.Edges, 6)
	for i := 1; i < len(g.Edges); i++ {
		assert.GreaterOrEqual(t, g.Edges[i-1].Strength, g.Edges[i].Strength)
	}
}

func TestGraph_QueryIncludesLinkTargets(t *testing.T) {
	f := newFixture(t, Config{GraphSeeds: 2})
	ctx := context.Background()

	for _, c := range []string{"alpha one", "alpha two", "alpha three", "beta"} {
		f.create(t, c)
	}

	g, err := f.engine.Graph(ctx, "alpha", DefaultGraphMinStrength)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)
	assert.Equal(t, "alpha three", g.Nodes[0].Content)
	assert.Equal(t, "alpha two", g.Nodes[1].Content)
	assert.Equal(t, "alpha one", g.Nodes[2].Content)
	assert.Len(t, g.Edges, 6)

	_, err = f.engine.Graph(ctx, "", -0.1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestOperationTimeout(t *testing.T) {
	cache, err := embedding.NewCache(blockingProvider{}, embedding.CacheConfig{})
	require.NoError(t, err)
	st := store.NewMemoryStore()
	eng, err := New(Config{OperationTimeout: 20 * time.Millisecond}, Deps{Store: st, Cache: cache})
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.Recall(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.ErrorIs(t, err, core.ErrEmbeddingProvider)

	note, _, err := eng.CreateAndLink(context.Background(), "kept anyway")
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, 1, st.Count())
	assert.NotEmpty(t, note.ID)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.create(t, "alpha one")
	f.create(t, "alpha two")
	_, err := f.engine.GetNote(ctx, "missing")
	require.Error(t, err)

	m := f.engine.Metrics()
	assert.Equal(t, 2, m.Ops[opCreate].Count)
	assert.Equal(t, 2, m.Ops[opCreate].Items)
	assert.Equal(t, 1, m.Ops[opGetNote].Errors)
	assert.Equal(t, uint64(2), m.Cache.ProviderCalls)
	assert.Equal(t, 2, m.Cache.Entries)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.DSN = "memory://"

	eng, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	_, _, err = eng.CreateAndLink(ctx, "the quick brown fox jumps")
	require.NoError(t, err)
	_, links, err := eng.CreateAndLink(ctx, "the quick brown fox jumps again")
	require.NoError(t, err)
	assert.NotEmpty(t, links)

	clusters, err := eng.Recall(ctx, "quick brown fox", 5)
	require.NoError(t, err)
	require.NotEmpty(t, clusters)
	assert.Equal(t, 1, len(clusters))
	assert.True(t, strings.HasPrefix(clusters[0].Label, "the quick brown fox"))
}

func TestFromConfig_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Store.DSN = "memory://"
	cfg.Embedding.Provider = "voyage"

	_, err := FromConfig(cfg, nil)
	assert.Error(t, err)
}

func TestResolveLabeler(t *testing.T) {
	cfg := config.Default().Recall
	assert.Equal(t, recall.TruncateLabeler{Length: 30}, ResolveLabeler(cfg))

	cfg.Labeler = config.LabelerAnthropic
	cfg.LabelerAPIKey = "test-key"
	assert.IsType(t, &llm.AnthropicLabeler{}, ResolveLabeler(cfg))
}

// flakyStore fails nearest-neighbor search while nearestErr is set.
type flakyStore struct {
	*store.MemoryStore
	nearestErr error
}

func (s *flakyStore) Nearest(ctx context.Context, emb []float64, k int, excludeID string) ([]store.Match, error) {
	if s.nearestErr != nil {
		return nil, s.nearestErr
	}
	return s.MemoryStore.Nearest(ctx, emb, k, excludeID)
}

func TestRelink_RepairsFailedDiscovery(t *testing.T) {
	cache, err := embedding.NewCache(&stubProvider{vectors: defaultVectors()}, embedding.CacheConfig{})
	require.NoError(t, err)
	st := &flakyStore{MemoryStore: store.NewMemoryStore()}
	eng, err := New(Config{}, Deps{Store: st, Cache: cache})
	require.NoError(t, err)
	defer eng.Close()
	ctx := context.Background()

	first, _, err := eng.CreateAndLink(ctx, "alpha one")
	require.NoError(t, err)

	st.nearestErr = errors.New("index offline")
	second, links, err := eng.CreateAndLink(ctx, "alpha two")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrVectorStore)
	assert.True(t, second.HasEmbedding())
	assert.Empty(t, links)

	// Backfill only picks up notes without an embedding.
	res, err := eng.EmbedPending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{}, res)

	st.nearestErr = nil
	links, err = eng.Relink(ctx, second.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	links, err = eng.Relink(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	related, err := eng.Related(ctx, first.ID, 0)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, second.ID, related[0].ID)
}

func TestRelink_Errors(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.engine.Relink(ctx, "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.engine.Relink(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	f.provider.setErr(errors.New("provider down"))
	note, _, err := f.engine.CreateAndLink(ctx, "alpha one")
	require.Error(t, err)
	_, err = f.engine.Relink(ctx, note.ID)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

// newOllamaServer answers /api/tags with models and /api/embed with
// identical vectors of the given width.
func newOllamaServer(t *testing.T, width int, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			type model struct {
				Name string `json:"name"`
			}
			var resp struct {
				Models []model `json:"models"`
			}
			for _, m := range models {
				resp.Models = append(resp.Models, model{Name: m})
			}
			json.NewEncoder(w).Encode(resp)
		case "/api/embed":
			var req struct {
				Input []string `json:"input"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			vecs := make([][]float64, len(req.Input))
			for i := range vecs {
				vecs[i] = make([]float64, width)
				vecs[i][0] = 1
			}
			json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFromConfig_OllamaUsesModelDimension(t *testing.T) {
	srv := newOllamaServer(t, 768, "nomic-embed-text:latest")
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	cfg := config.Default()
	cfg.Store.DSN = "memory://"
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.BaseURL = srv.URL
	require.NoError(t, cfg.Validate())

	eng, err := FromConfig(cfg, logger)
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	_, _, err = eng.CreateAndLink(ctx, "hello world")
	require.NoError(t, err)
	_, links, err := eng.CreateAndLink(ctx, "hello again")
	require.NoError(t, err)
	assert.Len(t, links, 2)

	clusters, err := eng.Recall(ctx, "hello", 5)
	require.NoError(t, err)
	assert.Len(t, clusters, 1)

	assert.Contains(t, logs.String(), "dimension=768")
	assert.NotContains(t, logs.String(), "ollama model")
}

func TestFromConfig_WarnsWhenOllamaModelMissing(t *testing.T) {
	srv := newOllamaServer(t, 768, "all-minilm:latest")
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	cfg := config.Default()
	cfg.Store.DSN = "memory://"
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.BaseURL = srv.URL

	eng, err := FromConfig(cfg, logger)
	require.NoError(t, err)
	defer eng.Close()

	assert.Contains(t, logs.String(), "ollama model not pulled")
	assert.Contains(t, logs.String(), "model=nomic-embed-text")
}

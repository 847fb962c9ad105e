package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/embedding"
	"github.com/hubenschmidt/go-resurface/engine"
	"github.com/hubenschmidt/go-resurface/store"
)

// failingProvider fails every call.
type failingProvider struct{}

func (failingProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, errors.New("provider down")
}

func (failingProvider) Dimensions() int { return 8 }

func newTestServer(t *testing.T, provider embedding.Provider, origins ...string) *httptest.Server {
	t.Helper()
	cache, err := embedding.NewCache(provider, embedding.CacheConfig{})
	require.NoError(t, err)
	eng, err := engine.New(engine.Config{}, engine.Deps{Store: store.NewMemoryStore(), Cache: cache})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	srv, err := New(Config{Engine: eng, CORSOrigins: origins})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createNote(t *testing.T, base, content string) NoteResponse {
	t.Helper()
	resp := postJSON(t, base+"/api/notes", fmt.Sprintf(`{"content":%q}`, content))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[NoteResponse](t, resp)
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions))
	resp := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateNote_ReturnsRelatedNotes(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions))

	first := createNote(t, ts.URL, "garden tomatoes need water every morning")
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 0, first.LinksCreated)
	assert.Empty(t, first.RelatedNotes)
	assert.NotNil(t, first.RelatedNotes)

	second := createNote(t, ts.URL, "garden tomatoes need water every morning and evening")
	assert.Equal(t, 2, second.LinksCreated)
	require.Len(t, second.RelatedNotes, 1)
	assert.Equal(t, first.ID, second.RelatedNotes[0].ID)

	resp := get(t, ts.URL+"/api/notes/"+first.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[NoteResponse](t, resp)
	assert.Equal(t, first.Content, got.Content)
	require.Len(t, got.RelatedNotes, 1)
	assert.Equal(t, second.ID, got.RelatedNotes[0].ID)
}

func TestCreateNote_BadRequests(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions))

	resp := postJSON(t, ts.URL+"/api/notes", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/notes", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateNote_ProviderFailure(t *testing.T) {
	ts := newTestServer(t, failingProvider{})

	resp := postJSON(t, ts.URL+"/api/notes", `{"content":"kept without embedding"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.NotEmpty(t, body.NoteID)
	assert.Contains(t, body.Error, "embedding provider failed")

	resp = get(t, ts.URL+"/api/notes/"+body.NoteID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetNote_NotFound(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions))
	resp := get(t, ts.URL+"/api/notes/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRelated_MinStrength(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions))
	first := createNote(t, ts.URL, "river stones warm in the sun")
	createNote(t, ts.URL, "river stones warm in the afternoon sun")

	resp := get(t, ts.URL+"/api/notes/"+first.ID+"/related")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[RelatedResponse](t, resp).RelatedNotes, 1)

	resp = get(t, ts.URL+"/api/notes/"+first.ID+"/related?min_strength=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[RelatedResponse](t, resp).RelatedNotes)

	resp = get(t, ts.URL+"/api/notes/"+first.ID+"/related?min_strength=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = get(t, ts.URL+"/api/notes/"+first.ID+"/related?min_strength=2")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelink(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions))
	first := createNote(t, ts.URL, "lake ice cracks loudly in spring")
	createNote(t, ts.URL, "lake ice cracks loudly in early spring")

	resp := postJSON(t, ts.URL+"/api/notes/"+first.ID+"/relink", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[RelinkResponse](t, resp)
	assert.Equal(t, 0, got.LinksCreated)
	assert.Len(t, got.RelatedNotes, 1)

	resp = postJSON(t, ts.URL+"/api/notes/missing/relink", ``)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecall(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions))

	resp := postJSON(t, ts.URL+"/api/recall", `{"query":"anything"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	empty := decode[RecallResponse](t, resp)
	assert.NotNil(t, empty.RecalledMemories)
	assert.Empty(t, empty.RecalledMemories)

	createNote(t, ts.URL, "bread dough rises slowly overnight")
	createNote(t, ts.URL, "bread dough rises slowly overnight again")

	resp = postJSON(t, ts.URL+"/api/recall", `{"query":"bread dough rises","limit":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[RecallResponse](t, resp)
	require.Len(t, got.RecalledMemories, 1)
	assert.Len(t, got.RecalledMemories[0].Notes, 2)
	assert.NotEmpty(t, got.RecalledMemories[0].ClusterReason)

	for _, body := range []string{`{"query":""}`, `{"query":"x","limit":0}`, `{"query":"x","limit":51}`} {
		resp = postJSON(t, ts.URL+"/api/recall", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestGraph(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions))
	createNote(t, ts.URL, "owls hunt quietly at night")
	createNote(t, ts.URL, "owls hunt quietly at night in winter")

	resp := get(t, ts.URL+"/api/graph")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g := decode[GraphResponse](t, resp)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Edges, 2)

	resp = get(t, ts.URL+"/api/graph?query=owls&min_strength=0.2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[GraphResponse](t, resp).Nodes, 2)

	resp = get(t, ts.URL+"/api/graph?min_strength=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBackfillAndMetrics(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions))
	createNote(t, ts.URL, "first note")

	resp := postJSON(t, ts.URL+"/api/notes/backfill?batch=10", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, engine.BackfillResult{}, decode[engine.BackfillResult](t, resp))

	resp = postJSON(t, ts.URL+"/api/notes/backfill?batch=x", ``)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, ts.URL+"/api/metrics/summary")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Contains(t, summary, "ops")
	assert.Contains(t, summary, "cache")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, embedding.NewHashProvider(embedding.DefaultHashDimensions), "http://app.test")

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/recall", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://app.test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://app.test", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.test")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	timeout := core.ProviderError("embed", context.DeadlineExceeded)
	cases := []struct {
		err  error
		want int
	}{
		{core.Invalid("recall", "bad"), http.StatusBadRequest},
		{core.StoreError("get", "x", fmt.Errorf("%w: x", core.ErrNotFound)), http.StatusNotFound},
		{timeout, http.StatusGatewayTimeout},
		{core.StoreError("put", "", fmt.Errorf("wrapped: %w", context.DeadlineExceeded)), http.StatusGatewayTimeout},
		{core.ProviderError("embed", errors.New("boom")), http.StatusBadGateway},
		{core.StoreError("put", "", errors.New("disk full")), http.StatusInternalServerError},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

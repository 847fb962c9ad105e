package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-resurface/vector"
)

func TestHashProvider_Deterministic(t *testing.T) {
	p := NewHashProvider(0)
	assert.Equal(t, DefaultHashDimensions, p.Dimensions())

	a, err := p.Embed(context.Background(), []string{"the quick brown fox", "the quick brown fox"})
	require.NoError(t, err)
	assert.Equal(t, a[0], a[1])

	b, err := NewHashProvider(0).Embed(context.Background(), []string{"the quick brown fox"})
	require.NoError(t, err)
	assert.Equal(t, a[0], b[0])
}

func TestHashProvider_SharedWordsAreSimilar(t *testing.T) {
	p := NewHashProvider(256)
	out, err := p.Embed(context.Background(), []string{
		"coffee brewing notes",
		"Coffee brewing, again",
		"quarterly tax filing",
	})
	require.NoError(t, err)

	related := vector.CosineSimilarity(out[0], out[1])
	unrelated := vector.CosineSimilarity(out[0], out[2])
	assert.Greater(t, related, unrelated)
	assert.Greater(t, related, 0.5)
}

func TestHashProvider_UnitVectors(t *testing.T) {
	p := NewHashProvider(32)
	out, err := p.Embed(context.Background(), []string{"words here", "", "!!!"})
	require.NoError(t, err)

	for _, v := range out {
		require.Len(t, v, 32)
		assert.InDelta(t, 1.0, vector.CosineSimilarity(v, v), 1e-9)

		var norm float64
		for _, x := range v {
			norm += x * x
		}
		assert.InDelta(t, 1.0, norm, 1e-9)
	}
}

func TestOllamaProvider_Embed(t *testing.T) {
	var got ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := ollamaEmbedResponse{}
		for i := range got.Input {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(i), 1})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/v1/", "", 2)
	out, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, DefaultOllamaModel, got.Model)
	assert.Equal(t, []string{"a", "b"}, got.Input)
	assert.Equal(t, [][]float64{{0, 1}, {1, 1}}, out)
	assert.Equal(t, 2, p.Dimensions())
}

func TestOllamaProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "missing", 0).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultOpenAIModel, req.Model)

		// Out of order on purpose: results are placed by index.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.0, 1.0]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIOptions{APIKey: "test", BaseURL: srv.URL + "/v1/"})
	out, err := p.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, out)
}

func TestOllamaProvider_HasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models": [{"name": "nomic-embed-text:latest"}, {"name": "llama3.2:1b"}]}`))
	}))
	defer srv.Close()

	names, err := NewOllamaProvider(srv.URL, "", 0).Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"nomic-embed-text:latest", "llama3.2:1b"}, names)

	ok, err := NewOllamaProvider(srv.URL, "nomic-embed-text", 0).HasModel(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewOllamaProvider(srv.URL, "mxbai-embed-large", 0).HasModel(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		want    any
		wantErr bool
	}{
		{name: "default is hash", cfg: ProviderConfig{}, want: &HashProvider{}},
		{name: "hash", cfg: ProviderConfig{Provider: "hash", Dimensions: 16}, want: &HashProvider{}},
		{name: "ollama", cfg: ProviderConfig{Provider: "ollama"}, want: &OllamaProvider{}},
		{name: "ollama prefix wins", cfg: ProviderConfig{Provider: "openai", Model: "ollama/all-minilm"}, want: &OllamaProvider{}},
		{name: "openai", cfg: ProviderConfig{Provider: "OpenAI", APIKey: "k"}, want: &OpenAIProvider{}},
		{name: "unknown", cfg: ProviderConfig{Provider: "voyage"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}

	p, err := NewProvider(ProviderConfig{Model: "ollama/all-minilm"})
	require.NoError(t, err)
	assert.Equal(t, "all-minilm", p.(*OllamaProvider).model)
}

func TestKnownDimensions(t *testing.T) {
	assert.Equal(t, 768, KnownDimensions("nomic-embed-text"))
	assert.Equal(t, 768, KnownDimensions("nomic-embed-text:latest"))
	assert.Equal(t, 384, KnownDimensions("ollama/all-minilm"))
	assert.Equal(t, 1536, KnownDimensions(DefaultOpenAIModel))
	assert.Equal(t, 0, KnownDimensions("custom-model"))
}

func TestProviderDimensionDefaults(t *testing.T) {
	assert.Equal(t, 768, NewOllamaProvider("http://localhost:11434", "", 0).Dimensions())
	assert.Equal(t, 0, NewOllamaProvider("http://localhost:11434", "custom-model", 0).Dimensions())
	assert.Equal(t, 1024, NewOllamaProvider("http://localhost:11434", "custom-model", 1024).Dimensions())

	assert.Equal(t, 1536, NewOpenAIProvider(OpenAIOptions{APIKey: "k"}).Dimensions())
	assert.Equal(t, 256, NewOpenAIProvider(OpenAIOptions{APIKey: "k", Dimensions: 256}).Dimensions())
}

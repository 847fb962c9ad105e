package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel produces 1536-dimension vectors.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIOptions configures an OpenAIProvider.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIProvider calls the OpenAI embeddings API, or any compatible endpoint
// via BaseURL.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIProvider creates a provider. An empty APIKey falls back to the
// OPENAI_API_KEY environment variable read by the client.
func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return NewOpenAIProviderFromClient(&client, opts)
}

// NewOpenAIProviderFromClient wraps an existing client.
func NewOpenAIProviderFromClient(client *openai.Client, opts OpenAIOptions) *OpenAIProvider {
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{client: client, model: model, dimensions: opts.Dimensions}
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Dimensions is the requested width, or the model's known width when none
// was requested.
func (p *OpenAIProvider) Dimensions() int {
	if p.dimensions > 0 {
		return p.dimensions
	}
	return KnownDimensions(p.model)
}

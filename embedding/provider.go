// Package embedding turns note text into vectors and memoizes the results.
package embedding

import (
	"context"
	"fmt"
)

// Provider converts texts to embedding vectors.
// Implementations: HashProvider (offline), OllamaProvider, OpenAIProvider.
type Provider interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the vector size, or 0 if the provider does not fix one.
	Dimensions() int
}

// validate checks provider output against the request.
func validate(texts []string, out [][]float64, dimensions int) error {
	if len(out) != len(texts) {
		return fmt.Errorf("provider returned %d embeddings for %d texts", len(out), len(texts))
	}
	for i, v := range out {
		if len(v) == 0 {
			return fmt.Errorf("embedding %d is empty", i)
		}
		if dimensions > 0 && len(v) != dimensions {
			return fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), dimensions)
		}
	}
	return nil
}

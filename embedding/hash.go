package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/hubenschmidt/go-resurface/vector"
)

// DefaultHashDimensions matches all-MiniLM-L6-v2.
const DefaultHashDimensions = 384

// HashProvider generates deterministic embeddings without a model, for
// development and tests. Each lowercase word is hashed into a signed
// bucket, so texts sharing words have positive cosine similarity.
type HashProvider struct {
	dimensions int
}

// NewHashProvider creates a hash provider. dimensions <= 0 selects
// DefaultHashDimensions.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashProvider{dimensions: dimensions}
}

func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embed(text)
	}
	return out, nil
}

func (p *HashProvider) Dimensions() int {
	return p.dimensions
}

func (p *HashProvider) embed(text string) []float64 {
	v := make([]float64, p.dimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := hash64(w)
		bucket := int(h % uint64(p.dimensions))
		if h&(1<<63) != 0 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	if allZero(v) {
		p.fill(v, hash64(text))
	}
	return vector.Normalize(v)
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// fill seeds an LCG with seed and writes values in [-1, 1].
func (p *HashProvider) fill(v []float64, seed uint64) {
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float64(int64(seed)) / float64(math.MaxInt64)
	}
}

func hash64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	einoembed "github.com/cloudwego/eino/components/embedding"
)

const (
	// HashModel identifies vectors produced by HashEmbedder.
	HashModel = "hash-xxh64-v1"
	// HashDimension is the default HashEmbedder output size.
	HashDimension = 384

	tokenWeight   = 1.0
	trigramWeight = 0.5
	symbolWeight  = 0.75
)

// HashEmbedder 是本地确定性的特征哈希向量器，不依赖任何外部服务。
// Words, character trigrams and non-alphanumeric symbols (punctuation, emoji) are hashed
// into signed buckets and the result is L2-normalised. Empty text yields the zero vector.
type HashEmbedder struct {
	dim int
}

var _ einoembed.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates an embedder with dim buckets; dim <= 0 selects HashDimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = HashDimension
	}
	return &HashEmbedder{dim: dim}
}

// Dimension returns the output vector size.
func (h *HashEmbedder) Dimension() int { return h.dim }

// EmbedStrings implements einoembed.Embedder.
func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...einoembed.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float64 {
	vec := make([]float64, h.dim)
	lower := strings.ToLower(text)

	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}) {
		h.add(vec, "w:"+word, tokenWeight)

		padded := []rune(" " + word + " ")
		for j := 0; j+3 <= len(padded); j++ {
			h.add(vec, "t:"+string(padded[j:j+3]), trigramWeight)
		}
	}

	for _, r := range lower {
		if unicode.IsSpace(r) || unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		h.add(vec, "s:"+string(r), symbolWeight)
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (h *HashEmbedder) add(vec []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

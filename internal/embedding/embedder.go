package embedding

import (
	"context"
	"errors"
	"math"
	"time"

	einoembed "github.com/cloudwego/eino/components/embedding"
	"github.com/m-mizutani/goerr/v2"

	"github.com/zhouzirui/z-tone/backend/internal/metrics"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 3 * time.Second

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrCountMismatch     = errors.New("embedding count mismatch")
)

// Client 在 eino Embedder 之上补充超时、维度校验与 float32 转换。
type Client struct {
	embedder  einoembed.Embedder
	model     string
	dimension int
	timeout   time.Duration
}

// NewClient wraps embedder. A non-positive timeout selects DefaultTimeout.
func NewClient(embedder einoembed.Embedder, model string, dimension int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{embedder: embedder, model: model, dimension: dimension, timeout: timeout}
}

// Model is the identifier stored next to produced vectors.
func (c *Client) Model() string { return c.model }

// Dimension is the fixed vector length D.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns the vector of one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one provider call, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.embedder.EmbedStrings(ctx, texts)
	if err == nil && len(raw) != len(texts) {
		err = goerr.Wrap(ErrCountMismatch, "provider returned wrong number of vectors",
			goerr.V("want", len(texts)), goerr.V("got", len(raw)))
	}
	metrics.EmbeddingDuration.WithLabelValues(c.model, metrics.Outcome(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed texts", goerr.V("model", c.model), goerr.V("count", len(texts)))
	}

	out := make([][]float32, len(raw))
	for i, vec := range raw {
		if len(vec) != c.dimension {
			return nil, goerr.Wrap(ErrDimensionMismatch, "provider returned unexpected dimension",
				goerr.V("model", c.model), goerr.V("want", c.dimension), goerr.V("got", len(vec)))
		}
		out[i] = ToFloat32(vec)
	}
	return out, nil
}

// ToFloat32 narrows a float64 vector.
func ToFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

// ToFloat64 widens a float32 vector.
func ToFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

// Cosine returns the cosine of the angle between a and b. Zero or mismatched vectors give 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return max(-1, min(1, c))
}

// Similarity maps cosine into [0,1] as (1+cos)/2.
func Similarity(a, b []float32) float64 {
	return (1 + Cosine(a, b)) / 2
}

// SimilarityFromCosineDistance converts a cosine distance d in [0,2] into [0,1].
func SimilarityFromCosineDistance(d float64) float64 {
	return max(0, min(1, 1-d/2))
}

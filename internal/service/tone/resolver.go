package tone

import (
	"context"
	"log/slog"
	"time"

	tonerules "github.com/zhouzirui/z-tone/backend/internal/analysis/tone"
	"github.com/zhouzirui/z-tone/backend/internal/logging"
	"github.com/zhouzirui/z-tone/backend/internal/metrics"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

// DefaultLookupTimeout bounds each store query and embedding call of the resolver.
const DefaultLookupTimeout = 3 * time.Second

// VectorResult is the resolver's opinion. LowConfidence marks the built-in default,
// which carries no evidence from history.
type VectorResult struct {
	Tone          model.Tone
	Confidence    float64
	LowConfidence bool
	Source        model.Source
}

// Estimate converts the result for fusion.
func (v VectorResult) Estimate() tonerules.Estimate {
	return tonerules.Estimate{Tone: v.Tone, Confidence: v.Confidence}
}

// Resolver 基于用户历史语气向量推断当前消息的语气。
type Resolver struct {
	params   *tonerules.Params
	store    store.ToneEmbeddings
	embedder Embedder
	timeout  time.Duration
}

// NewResolver builds a resolver. A non-positive timeout selects DefaultLookupTimeout.
func NewResolver(params *tonerules.Params, embeddings store.ToneEmbeddings, embedder Embedder, timeout time.Duration) *Resolver {
	if params == nil {
		p := tonerules.DefaultParams()
		params = &p
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Resolver{params: params, store: embeddings, embedder: embedder, timeout: timeout}
}

func (r *Resolver) fallback() VectorResult {
	return VectorResult{
		Tone:          model.Casual,
		Confidence:    r.params.FallbackConfidence,
		LowConfidence: true,
		Source:        model.SourceDefault,
	}
}

// Resolve never fails: embedding, store and timeout errors fall through to the next step
// and finally to (casual, 0.5, low confidence). Without a user the vector path is skipped.
func (r *Resolver) Resolve(ctx context.Context, userID, text, relationship string) VectorResult {
	logger := logging.From(ctx)

	if userID == "" || r.store == nil || r.embedder == nil {
		metrics.ResolverPaths.WithLabelValues("skipped").Inc()
		return r.fallback()
	}

	query, err := r.embed(ctx, text)
	if err != nil {
		logger.Warn("tone resolver could not embed message", "user_id", userID, "error", err)
		metrics.ResolverPaths.WithLabelValues("embed_error").Inc()
		return r.fallback()
	}

	userResult, accepted := r.fromUserHistory(ctx, logger, userID, relationship, query)
	if accepted && userResult.Confidence >= r.params.Vector.AcceptThreshold {
		metrics.ResolverPaths.WithLabelValues(string(model.SourceUser)).Inc()
		return userResult
	}

	if relResult, ok := r.fromRelationship(ctx, logger, relationship, query); ok {
		metrics.ResolverPaths.WithLabelValues(string(model.SourceRelationship)).Inc()
		return relResult
	}

	if accepted {
		metrics.ResolverPaths.WithLabelValues(string(model.SourceUser)).Inc()
		return userResult
	}

	metrics.ResolverPaths.WithLabelValues(string(model.SourceDefault)).Inc()
	return r.fallback()
}

func (r *Resolver) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.embedder.Embed(ctx, text)
}

func (r *Resolver) search(ctx context.Context, f store.Filter, query []float32, limit int) ([]model.Scored, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var hits []model.Scored
	err := timed("search_tone_embeddings", func() error {
		var err error
		hits, err = r.store.SearchToneEmbeddings(ctx, f, query, limit)
		return err
	})
	return hits, err
}

// fromUserHistory averages 0.7·similarity + 0.3·stored confidence per tone over the user's
// nearest observations. The best average is accepted only above GroupThreshold.
func (r *Resolver) fromUserHistory(ctx context.Context, logger *slog.Logger, userID, relationship string, query []float32) (VectorResult, bool) {
	vp := r.params.Vector
	hits, err := r.search(ctx, store.Filter{UserID: userID, Relationship: relationship}, query, vp.UserTopK)
	if err != nil {
		logger.Warn("user tone search failed", "user_id", userID, "error", err)
		return VectorResult{}, false
	}

	var sums model.Scores
	var counts [model.NumTones]int
	for _, h := range hits {
		if !h.Tone.Valid() {
			continue
		}
		sums[h.Tone] += vp.SimilarityWeight*h.Similarity + vp.ConfidenceWeight*h.Confidence
		counts[h.Tone]++
	}

	var averages model.Scores
	for i, n := range counts {
		if n > 0 {
			averages[i] = sums[i] / float64(n)
		}
	}

	best, score := averages.Argmax()
	if score <= vp.GroupThreshold {
		return VectorResult{}, false
	}
	logger.Debug("user tone history matched", "user_id", userID, "tone", best.String(), "score", score)
	return VectorResult{Tone: best, Confidence: min(1, score), Source: model.SourceUser}, true
}

// fromRelationship takes the single nearest observation across every user sharing the
// relationship label.
func (r *Resolver) fromRelationship(ctx context.Context, logger *slog.Logger, relationship string, query []float32) (VectorResult, bool) {
	vp := r.params.Vector
	hits, err := r.search(ctx, store.Filter{Relationship: relationship}, query, vp.RelationshipTopK)
	if err != nil {
		logger.Warn("relationship tone search failed", "relationship", relationship, "error", err)
		return VectorResult{}, false
	}
	if len(hits) == 0 {
		return VectorResult{}, false
	}

	top := hits[0]
	if !top.Tone.Valid() || top.Similarity <= vp.RelationshipMinSimilarity {
		return VectorResult{}, false
	}
	return VectorResult{Tone: top.Tone, Confidence: top.Similarity, Source: model.SourceRelationship}, true
}

// timed records the latency and outcome of one store operation.
func timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StoreDuration.WithLabelValues(op, metrics.Outcome(err)).Observe(time.Since(start).Seconds())
	return err
}

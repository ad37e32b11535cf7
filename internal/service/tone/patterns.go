package tone

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/zhouzirui/z-tone/backend/internal/logging"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

const (
	DefaultSimilarLimit    = 5
	DefaultMinSimilarity   = 0.6
	DefaultPatternDays     = 30
	maxPatternObservations = 200
)

// ErrEmptyText is returned by queries that need something to embed.
var ErrEmptyText = errors.New("text is required")

// SimilarQuery searches stored tone observations near a text.
type SimilarQuery struct {
	Text          string
	UserID        string
	Relationship  string
	Limit         int
	MinSimilarity float64
}

// FindSimilar returns stored observations whose similarity to q.Text is at least
// q.MinSimilarity, most similar first.
func (a *Analyzer) FindSimilar(ctx context.Context, q SimilarQuery) ([]model.Scored, error) {
	if q.Text == "" {
		return nil, ErrEmptyText
	}
	if a.actx.Store == nil || a.actx.Embedder == nil {
		return nil, goerr.New("similarity search is not configured")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultSimilarLimit
	}
	if q.MinSimilarity <= 0 {
		q.MinSimilarity = DefaultMinSimilarity
	}

	query, err := a.resolver.embed(ctx, q.Text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed similarity query")
	}

	hits, err := a.resolver.search(ctx, store.Filter{UserID: q.UserID, Relationship: q.Relationship}, query, q.Limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search tone embeddings",
			goerr.V("user_id", q.UserID), goerr.V("relationship", q.Relationship))
	}

	out := hits[:0]
	for _, h := range hits {
		if h.Similarity >= q.MinSimilarity {
			out = append(out, h)
		}
	}
	return out, nil
}

// AnalyzePatterns summarises up to 200 of the user's most recent observations within the
// last days and stores the summary as a pattern record.
func (a *Analyzer) AnalyzePatterns(ctx context.Context, userID string, days int) (*model.PatternReport, error) {
	if a.actx.Store == nil {
		return nil, goerr.New("pattern analysis is not configured")
	}
	if days <= 0 {
		days = DefaultPatternDays
	}

	now := a.now().UTC()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)

	var observations []model.Embedding
	err := timed("list_tone_embeddings", func() error {
		var err error
		observations, err = a.actx.Store.ListToneEmbeddings(ctx, store.Filter{UserID: userID, Since: since}, maxPatternObservations)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tone history", goerr.V("user_id", userID))
	}

	report := summarise(observations)
	report.ID = store.NewID()
	report.UserID = userID
	report.PeriodDays = days
	report.GeneratedAt = now

	record := &model.AnalysisRecord{
		ID:          report.ID,
		Kind:        model.RecordPattern,
		UserID:      userID,
		PrimaryTone: report.DominantTone,
		Confidence:  report.AverageConfidence,
		Scores:      report.Distribution,
		Profile: model.EmotionalProfile{
			Intensity: report.AverageIntensity,
			Formality: report.AverageFormality,
		},
		CreatedAt: now,
	}
	if err := timed("insert_analysis", func() error { return a.actx.Store.InsertAnalysis(ctx, record) }); err != nil {
		logging.From(ctx).Warn("failed to store pattern analysis", "user_id", userID, "error", err)
	}
	return report, nil
}

func summarise(observations []model.Embedding) *model.PatternReport {
	report := &model.PatternReport{
		DominantTone:         model.Casual,
		RelationshipPatterns: make(map[string]map[string]int),
		AverageIntensity:     0.5,
		AverageFormality:     0.5,
	}
	if len(observations) == 0 {
		return report
	}

	var confidence, intensity, formality float64
	for _, o := range observations {
		if !o.Tone.Valid() {
			continue
		}
		report.Counts[o.Tone]++
		report.TotalMessages++

		rel := o.Relationship
		if rel == "" {
			rel = model.RelationshipUnknown
		}
		if report.RelationshipPatterns[rel] == nil {
			report.RelationshipPatterns[rel] = make(map[string]int)
		}
		report.RelationshipPatterns[rel][o.Tone.String()]++

		confidence += o.Confidence
		intensity += o.EmotionalIntensity
		formality += o.FormalityLevel
	}
	if report.TotalMessages == 0 {
		return report
	}

	total := float64(report.TotalMessages)
	best := 0
	for i, c := range report.Counts {
		report.Distribution[i] = float64(c) / total
		if c > report.Counts[best] {
			best = i
		}
	}
	report.DominantTone = model.Tone(best)
	report.AverageConfidence = confidence / total
	report.AverageIntensity = intensity / total
	report.AverageFormality = formality / total
	return report
}

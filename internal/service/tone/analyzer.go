// Package tone 组合规则分类、向量检索与融合，输出单条消息的语气判断，并在后台持久化观测。
package tone

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-tone/backend/internal/analysis/emotion"
	tonerules "github.com/zhouzirui/z-tone/backend/internal/analysis/tone"
	"github.com/zhouzirui/z-tone/backend/internal/logging"
	"github.com/zhouzirui/z-tone/backend/internal/metrics"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

// AnalysisContext carries the collaborators every analysis needs.
type AnalysisContext struct {
	Store    store.Store
	Embedder Embedder
}

// Options tune an Analyzer. Zero values select defaults; a nil Queue disables persistence.
type Options struct {
	Params        *tonerules.Params
	Queue         *Queue
	LookupTimeout time.Duration
}

// Request is one analyzeTone call.
type Request struct {
	UserID      string
	Text        string
	ContextHint string
	MessageID   string
	// User short-circuits the profile lookup when the caller already holds it.
	User *user.Profile
}

// Analyzer is the single entry point of the tone core.
type Analyzer struct {
	actx     AnalysisContext
	params   *tonerules.Params
	resolver *Resolver
	recorder *Recorder
	emotion  *emotion.Analyzer
	queue    *Queue
	now      func() time.Time
}

// NewAnalyzer wires resolver, recorder and emotion analysis over actx.
func NewAnalyzer(actx AnalysisContext, opts Options) *Analyzer {
	params := opts.Params
	if params == nil {
		p := tonerules.DefaultParams()
		params = &p
	}

	a := &Analyzer{
		actx:    actx,
		params:  params,
		emotion: emotion.NewAnalyzer(params),
		queue:   opts.Queue,
		now:     time.Now,
	}
	a.resolver = NewResolver(params, actx.Store, actx.Embedder, opts.LookupTimeout)
	if actx.Store != nil && actx.Embedder != nil {
		a.recorder = NewRecorder(actx.Store, actx.Embedder)
	}
	return a
}

// Params exposes the tuning constants in use.
func (a *Analyzer) Params() *tonerules.Params { return a.params }

// Analyze never fails: every collaborator error degrades to a lower-confidence answer.
// When the request belongs to a known user the observation and an analysis record are
// handed to the background queue before returning.
func (a *Analyzer) Analyze(ctx context.Context, req Request) model.Analysis {
	start := a.now()
	logger := logging.From(ctx)

	profile := a.lookupUser(ctx, req)
	relationship := ""
	userID := ""
	if profile != nil {
		relationship = profile.Relationship
		userID = profile.ID
	}

	var (
		features model.FeatureSet
		vector   VectorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		features = a.params.ExtractFeatures(req.Text)
		return nil
	})
	g.Go(func() error {
		vector = a.resolver.Resolve(gctx, userID, req.Text, relationship)
		return nil
	})
	_ = g.Wait()

	rule := a.params.ClassifyByRules(req.Text, req.ContextHint)

	var fused tonerules.Estimate
	if vector.LowConfidence {
		// 无历史依据时直接采用规则结果
		fused = tonerules.Estimate{Tone: rule.Tone, Confidence: rule.Confidence}
	} else {
		fused = a.params.Fuse(vector.Estimate(), tonerules.Estimate{Tone: rule.Tone, Confidence: rule.Confidence})
	}

	result := model.Analysis{
		ID:               store.NewID(),
		PrimaryTone:      fused.Tone,
		Confidence:       fused.Confidence,
		Scores:           tonerules.Distribute(fused.Tone, fused.Confidence),
		Features:         features,
		Profile:          a.emotion.Analyze(req.Text),
		VectorTone:       vector.Tone,
		VectorConfidence: vector.Confidence,
		VectorSource:     vector.Source,
		VectorUsed:       !vector.LowConfidence,
		RuleTone:         rule.Tone,
		RuleConfidence:   rule.Confidence,
		Relationship:     relationship,
	}
	result.AnalyzedAt = a.now().UTC()
	result.ProcessingTime = a.now().Sub(start)

	metrics.AnalysesTotal.WithLabelValues(result.PrimaryTone.String(), string(vector.Source)).Inc()
	metrics.AnalysisDuration.Observe(result.ProcessingTime.Seconds())
	logger.Debug("tone analysed",
		"analysis_id", result.ID,
		"tone", result.PrimaryTone.String(),
		"confidence", result.Confidence,
		"vector_source", string(vector.Source),
		"rule_tone", rule.Tone.String(),
	)

	if profile != nil {
		a.persist(ctx, profile, req, result)
	}
	return result
}

func (a *Analyzer) lookupUser(ctx context.Context, req Request) *user.Profile {
	if req.User != nil {
		return req.User
	}
	if req.UserID == "" || a.actx.Store == nil {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.resolver.timeout)
	defer cancel()

	var p *user.Profile
	err := timed("get_user", func() error {
		var err error
		p, err = a.actx.Store.GetUser(lookupCtx, req.UserID)
		return err
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.From(ctx).Warn("user lookup failed during tone analysis", "user_id", req.UserID, "error", err)
		} else {
			logging.From(ctx).Warn("user not found", "user_id", req.UserID)
		}
		return nil
	}
	return p
}

func (a *Analyzer) persist(ctx context.Context, profile *user.Profile, req Request, result model.Analysis) {
	if a.queue == nil {
		return
	}

	messageID := req.MessageID
	if messageID == "" {
		messageID = store.NewID()
	}

	if a.recorder != nil {
		obs := Observation{
			UserID:             profile.ID,
			MessageID:          messageID,
			Text:               req.Text,
			Tone:               result.PrimaryTone,
			Confidence:         result.Confidence,
			Relationship:       profile.Relationship,
			EmotionalIntensity: result.Features.EmotionalIntensity,
			FormalityLevel:     result.Features.FormalityLevel,
		}
		_ = a.queue.Enqueue(ctx, Job{
			Name: "record_observation",
			Key:  profile.ID,
			Run: func(ctx context.Context) error {
				_, err := a.recorder.RecordObservation(ctx, obs)
				return err
			},
		})
	}

	record := &model.AnalysisRecord{
		ID:             result.ID,
		Kind:           model.RecordMessage,
		UserID:         profile.ID,
		MessageID:      messageID,
		PrimaryTone:    result.PrimaryTone,
		Confidence:     result.Confidence,
		Scores:         result.Scores,
		Features:       result.Features,
		Profile:        result.Profile,
		MessageSample:  model.Sample(req.Text),
		Relationship:   profile.Relationship,
		ProcessingTime: result.ProcessingTime,
		CreatedAt:      result.AnalyzedAt,
	}
	_ = a.queue.Enqueue(ctx, Job{
		Name: "store_analysis",
		Key:  profile.ID,
		Run: func(ctx context.Context) error {
			return timed("insert_analysis", func() error { return a.actx.Store.InsertAnalysis(ctx, record) })
		},
	})
}

// EnqueueMessage hands a message embedding job to the background queue.
func (a *Analyzer) EnqueueMessage(ctx context.Context, obs MessageObservation) {
	if a.queue == nil || a.recorder == nil {
		return
	}
	_ = a.queue.Enqueue(ctx, Job{
		Name: "record_message",
		Key:  obs.UserID,
		Run: func(ctx context.Context) error {
			_, err := a.recorder.RecordMessage(ctx, obs)
			return err
		},
	})
}

// Recorder exposes the synchronous persistence path.
func (a *Analyzer) Recorder() *Recorder { return a.recorder }

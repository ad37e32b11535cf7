package tone

import (
	"context"
	"errors"
	"testing"
	"time"

	einoembed "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tonerules "github.com/zhouzirui/z-tone/backend/internal/analysis/tone"
	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
	"github.com/zhouzirui/z-tone/backend/internal/store"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
)

func hashClient() *embedding.Client {
	return embedding.NewClient(embedding.NewHashEmbedder(0), embedding.HashModel, embedding.HashDimension, 0)
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedStrings(context.Context, []string, ...einoembed.Option) ([][]float64, error) {
	return nil, errors.New("provider unavailable")
}

type failingSearch struct {
	*memory.Store
}

func (failingSearch) SearchToneEmbeddings(context.Context, store.Filter, []float32, int) ([]model.Scored, error) {
	return nil, errors.New("vector index offline")
}

type hangingSearch struct {
	*memory.Store
}

func (hangingSearch) SearchToneEmbeddings(ctx context.Context, _ store.Filter, _ []float32, _ int) ([]model.Scored, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newUser(t *testing.T, s store.Store, relationship string) *user.Profile {
	t.Helper()
	p := &user.Profile{PhoneNumber: "+1555" + store.NewID()[30:], Name: "Test", Relationship: relationship, CreatedAt: time.Now()}
	require.NoError(t, s.CreateUser(context.Background(), p))
	return p
}

func seed(t *testing.T, s store.Store, client *embedding.Client, userID, relationship, text string, tn model.Tone, confidence float64, n int) {
	t.Helper()
	vec, err := client.Embed(context.Background(), text)
	require.NoError(t, err)
	for range n {
		require.NoError(t, s.InsertToneEmbedding(context.Background(), &model.Embedding{
			ID:            store.NewID(),
			UserID:        userID,
			ToneVector:    vec,
			MessageVector: vec,
			StyleVector:   vec,
			Tone:          tn,
			MessageSample: text,
			Confidence:    confidence,
			Relationship:  relationship,
			CreatedAt:     time.Now().UTC(),
		}))
	}
}

func assertWellFormed(t *testing.T, a model.Analysis) {
	t.Helper()
	assert.True(t, a.PrimaryTone.Valid())
	assert.GreaterOrEqual(t, a.Confidence, 0.0)
	assert.LessOrEqual(t, a.Confidence, 1.0)
	assert.InDelta(t, 1.0, a.Scores.Sum(), 1e-9)
	assert.Equal(t, a.Confidence, a.Scores[a.PrimaryTone])
}

func TestAnalyzeUsesPlayfulHistory(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	client := hashClient()
	u := newUser(t, s, model.RelationshipFriend)

	text := "haha that's hilarious 😂"
	seed(t, s, client, u.ID, model.RelationshipFriend, text, model.Playful, 0.9, 5)

	a := NewAnalyzer(AnalysisContext{Store: s, Embedder: client}, Options{})
	got := a.Analyze(ctx, Request{UserID: u.ID, Text: text})

	assert.Equal(t, model.Playful, got.PrimaryTone)
	assert.Greater(t, got.Confidence, 0.7)
	assert.Equal(t, model.SourceUser, got.VectorSource)
	assert.True(t, got.VectorUsed)
	assertWellFormed(t, got)
}

func TestAnalyzeNewUserFallsBackToRules(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, s, model.RelationshipBusiness)

	a := NewAnalyzer(AnalysisContext{Store: s, Embedder: hashClient()}, Options{})
	got := a.Analyze(ctx, Request{UserID: u.ID, Text: "Dear Sir, please find attached the report. Regards."})

	assert.Equal(t, model.Formal, got.PrimaryTone)
	assert.InDelta(t, got.RuleConfidence, got.Confidence, 1e-9)
	assert.False(t, got.VectorUsed)
	assert.Equal(t, model.SourceDefault, got.VectorSource)
	assertWellFormed(t, got)
}

func TestAnalyzeUnknownUserSkipsVectorPath(t *testing.T) {
	a := NewAnalyzer(AnalysisContext{Store: memory.New(), Embedder: hashClient()}, Options{})
	got := a.Analyze(context.Background(), Request{UserID: "missing", Text: "hey what's up"})

	assert.Equal(t, model.Casual, got.PrimaryTone)
	assert.False(t, got.VectorUsed)
	assert.Empty(t, got.Relationship)
}

func TestAnalyzeEmptyText(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	client := hashClient()

	a := NewAnalyzer(AnalysisContext{Store: s, Embedder: client}, Options{})
	got := a.Analyze(ctx, Request{Text: ""})
	assert.Equal(t, model.Casual, got.PrimaryTone)
	assert.Equal(t, 0.5, got.Confidence)
	assert.Equal(t, model.FeatureSet{FormalityLevel: 0.5, EmotionalIntensity: 0.1}, got.Features)
	assertWellFormed(t, got)

	// with history, the zero query vector must still produce a valid answer
	u := newUser(t, s, model.RelationshipFriend)
	seed(t, s, client, u.ID, model.RelationshipFriend, "lol so funny", model.Playful, 0.9, 3)
	got = a.Analyze(ctx, Request{UserID: u.ID, Text: ""})
	assertWellFormed(t, got)
}

func TestAnalyzeWithoutCollaborators(t *testing.T) {
	a := NewAnalyzer(AnalysisContext{}, Options{})
	got := a.Analyze(context.Background(), Request{UserID: "u1", Text: "I miss you baby, kiss 😘"})

	assert.Equal(t, model.Romantic, got.PrimaryTone)
	assertWellFormed(t, got)
}

func TestResolverDegradesOnErrors(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	client := hashClient()
	seed(t, s, client, "u1", model.RelationshipFriend, "good morning sunshine", model.Caring, 1, 3)

	broken := embedding.NewClient(failingEmbedder{}, "broken", embedding.HashDimension, 0)
	r := NewResolver(nil, s, broken, 0)
	got := r.Resolve(ctx, "u1", "good morning sunshine", model.RelationshipFriend)
	assert.True(t, got.LowConfidence)
	assert.Equal(t, model.Casual, got.Tone)
	assert.Equal(t, 0.5, got.Confidence)

	r = NewResolver(nil, failingSearch{s}, client, 0)
	got = r.Resolve(ctx, "u1", "good morning sunshine", model.RelationshipFriend)
	assert.True(t, got.LowConfidence)
}

func TestResolverFallsBackToRelationship(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	client := hashClient()
	seed(t, s, client, "someone-else", model.RelationshipMother, "call me when you land safe", model.Caring, 0.2, 1)

	r := NewResolver(nil, s, client, 0)
	got := r.Resolve(ctx, "u1", "call me when you land safe", model.RelationshipMother)

	assert.False(t, got.LowConfidence)
	assert.Equal(t, model.Caring, got.Tone)
	assert.Equal(t, model.SourceRelationship, got.Source)
	assert.InDelta(t, 1.0, got.Confidence, 1e-6)
}

func TestResolverKeepsModerateUserMatch(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	client := hashClient()
	seed(t, s, client, "u1", model.RelationshipFriend, "see you at the game", model.Friendly, 1, 2)

	// the empty query sits at similarity 0.5 from everything: 0.7*0.5 + 0.3*1 = 0.65 is
	// accepted for the user but the relationship step finds nothing above 0.6
	r := NewResolver(nil, s, client, 0)
	got := r.Resolve(ctx, "u1", "", model.RelationshipFriend)

	assert.False(t, got.LowConfidence)
	assert.Equal(t, model.Friendly, got.Tone)
	assert.Equal(t, model.SourceUser, got.Source)
	assert.InDelta(t, 0.65, got.Confidence, 1e-9)
}

func TestAnalyzePersistsInBackground(t *testing.T) {
	s := memory.New()
	client := hashClient()
	u := newUser(t, s, model.RelationshipFriend)

	q := NewQueue(QueueConfig{Workers: 2, Capacity: 16})
	a := NewAnalyzer(AnalysisContext{Store: s, Embedder: client}, Options{Queue: q})

	ctx, cancel := context.WithCancel(context.Background())
	got := a.Analyze(ctx, Request{UserID: u.ID, Text: "lol that's crazy", MessageID: "m-1"})
	cancel()
	q.Close()

	history, err := s.ListToneEmbeddings(context.Background(), store.Filter{UserID: u.ID}, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "m-1", history[0].MessageID)
	assert.Equal(t, got.PrimaryTone, history[0].Tone)
	assert.Equal(t, model.RelationshipFriend, history[0].Relationship)
	assert.Len(t, history[0].ToneVector, embedding.HashDimension)

	records, err := s.ListAnalyses(context.Background(), u.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, got.ID, records[0].ID)
	assert.Equal(t, model.RecordMessage, records[0].Kind)
}

func TestAnalyzeAnonymousDoesNotPersist(t *testing.T) {
	s := memory.New()
	q := NewQueue(QueueConfig{Workers: 1, Capacity: 4})
	a := NewAnalyzer(AnalysisContext{Store: s, Embedder: hashClient()}, Options{Queue: q})

	a.Analyze(context.Background(), Request{Text: "hello there"})
	q.Close()

	history, err := s.ListToneEmbeddings(context.Background(), store.Filter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestResolverTimesOutSlowStore(t *testing.T) {
	params := tonerules.DefaultParams()
	timeout := 50 * time.Millisecond
	r := NewResolver(&params, hangingSearch{memory.New()}, hashClient(), timeout)

	start := time.Now()
	got := r.Resolve(context.Background(), "u1", "are we still on for tonight?", model.RelationshipFriend)
	elapsed := time.Since(start)

	assert.True(t, got.LowConfidence)
	assert.Equal(t, model.Casual, got.Tone)
	assert.Equal(t, model.SourceDefault, got.Source)
	assert.Equal(t, params.FallbackConfidence, got.Confidence)
	// user 查询与关系查询各自受超时约束
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, 10*timeout)
}

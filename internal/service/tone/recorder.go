package tone

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"

	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

// Embedder is the part of embedding.Client the tone service needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// Observation is one classified message to remember for a user.
type Observation struct {
	UserID             string
	MessageID          string
	Text               string
	Tone               model.Tone
	Confidence         float64
	Relationship       string
	EmotionalIntensity float64
	FormalityLevel     float64
}

// MessageObservation describes a concrete conversation message to embed.
type MessageObservation struct {
	MessageID      string
	UserID         string
	ConversationID string
	Text           string
	Tone           model.Tone
	SentimentScore float64
	EmotionalScore float64
	FormalityScore float64
}

// Recorder 负责把语气观测写成向量记录，只追加，不去重。
type Recorder struct {
	store    store.VectorStore
	embedder Embedder
	now      func() time.Time
}

// NewRecorder builds a recorder over the vector collections.
func NewRecorder(vectors store.VectorStore, embedder Embedder) *Recorder {
	return &Recorder{store: vectors, embedder: embedder, now: time.Now}
}

// RecordObservation embeds the tone, message and style views of obs in one batched call
// and appends a new ToneEmbedding.
func (r *Recorder) RecordObservation(ctx context.Context, obs Observation) (*model.Embedding, error) {
	if obs.UserID == "" {
		return nil, goerr.New("observation requires a user id")
	}

	texts := []string{
		fmt.Sprintf("%s %s: %s", obs.Tone, obs.Relationship, obs.Text),
		obs.Text,
		fmt.Sprintf("style %s: %s", obs.Relationship, obs.Text),
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed tone observation", goerr.V("user_id", obs.UserID))
	}

	messageID := obs.MessageID
	if messageID == "" {
		messageID = store.NewID()
	}

	e := &model.Embedding{
		ID:                 store.NewID(),
		UserID:             obs.UserID,
		MessageID:          messageID,
		ToneVector:         vectors[0],
		MessageVector:      vectors[1],
		StyleVector:        vectors[2],
		Tone:               obs.Tone,
		MessageSample:      model.Sample(obs.Text),
		Confidence:         obs.Confidence,
		Relationship:       obs.Relationship,
		EmotionalIntensity: obs.EmotionalIntensity,
		FormalityLevel:     obs.FormalityLevel,
		VectorModel:        r.embedder.Model(),
		VectorDimension:    r.embedder.Dimension(),
		CreatedAt:          r.now().UTC(),
	}
	if err := timed("insert_tone_embedding", func() error { return r.store.InsertToneEmbedding(ctx, e) }); err != nil {
		return nil, goerr.Wrap(err, "failed to store tone embedding", goerr.V("user_id", obs.UserID))
	}
	return e, nil
}

// RecordMessage stores content, style, tone and semantic vectors of one message.
func (r *Recorder) RecordMessage(ctx context.Context, obs MessageObservation) (*model.MessageEmbedding, error) {
	texts := []string{
		obs.Text,
		"style: " + obs.Text,
		fmt.Sprintf("%s: %s", obs.Tone, obs.Text),
		"semantic meaning: " + obs.Text,
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed message", goerr.V("message_id", obs.MessageID))
	}

	e := &model.MessageEmbedding{
		ID:             store.NewID(),
		MessageID:      obs.MessageID,
		UserID:         obs.UserID,
		ConversationID: obs.ConversationID,
		ContentVector:  vectors[0],
		StyleVector:    vectors[1],
		ToneVector:     vectors[2],
		SemanticVector: vectors[3],
		Tone:           obs.Tone,
		SentimentScore: obs.SentimentScore,
		EmotionalScore: obs.EmotionalScore,
		FormalityScore: obs.FormalityScore,
		VectorModel:    r.embedder.Model(),
		CreatedAt:      r.now().UTC(),
	}
	if err := timed("insert_message_embedding", func() error { return r.store.InsertMessageEmbedding(ctx, e) }); err != nil {
		return nil, goerr.Wrap(err, "failed to store message embedding", goerr.V("message_id", obs.MessageID))
	}
	return e, nil
}

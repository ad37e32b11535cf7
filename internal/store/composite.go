package store

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
)

// Composite routes vector collections and document collections to different backends,
// e.g. Weaviate for vectors and Badger for documents.
type Composite struct {
	Vectors VectorStore
	Docs    DocumentStore
}

var _ Store = (*Composite)(nil)

func (c *Composite) InsertToneEmbedding(ctx context.Context, e *tone.Embedding) error {
	return c.Vectors.InsertToneEmbedding(ctx, e)
}

func (c *Composite) SearchToneEmbeddings(ctx context.Context, f Filter, vector []float32, limit int) ([]tone.Scored, error) {
	return c.Vectors.SearchToneEmbeddings(ctx, f, vector, limit)
}

func (c *Composite) ListToneEmbeddings(ctx context.Context, f Filter, limit int) ([]tone.Embedding, error) {
	return c.Vectors.ListToneEmbeddings(ctx, f, limit)
}

func (c *Composite) InsertMessageEmbedding(ctx context.Context, e *tone.MessageEmbedding) error {
	return c.Vectors.InsertMessageEmbedding(ctx, e)
}

func (c *Composite) InsertAnalysis(ctx context.Context, r *tone.AnalysisRecord) error {
	return c.Docs.InsertAnalysis(ctx, r)
}

func (c *Composite) ListAnalyses(ctx context.Context, userID string, limit int) ([]tone.AnalysisRecord, error) {
	return c.Docs.ListAnalyses(ctx, userID, limit)
}

func (c *Composite) CreateUser(ctx context.Context, p *user.Profile) error {
	return c.Docs.CreateUser(ctx, p)
}

func (c *Composite) GetUser(ctx context.Context, id string) (*user.Profile, error) {
	return c.Docs.GetUser(ctx, id)
}

func (c *Composite) GetUserByPhone(ctx context.Context, phone string) (*user.Profile, error) {
	return c.Docs.GetUserByPhone(ctx, phone)
}

func (c *Composite) UpdateUser(ctx context.Context, p *user.Profile) error {
	return c.Docs.UpdateUser(ctx, p)
}

func (c *Composite) SaveMessage(ctx context.Context, m *chat.Message) error {
	return c.Docs.SaveMessage(ctx, m)
}

func (c *Composite) History(ctx context.Context, userID, conversationID string, limit int) ([]chat.Message, error) {
	return c.Docs.History(ctx, userID, conversationID, limit)
}

// Ping checks both backends.
func (c *Composite) Ping(ctx context.Context) error {
	return errors.Join(c.Docs.Ping(ctx), c.Vectors.Ping(ctx))
}

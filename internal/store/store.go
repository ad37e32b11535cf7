// Package store 定义语气向量、分析记录、用户与会话的持久化接口。
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidVector = errors.New("invalid query vector")
)

// Filter scopes tone embedding queries. Empty fields do not filter.
type Filter struct {
	UserID       string
	Relationship string
	Since        time.Time
}

// Match reports whether e passes the filter.
func (f Filter) Match(e *tone.Embedding) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Relationship != "" && e.Relationship != f.Relationship {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// ToneEmbeddings is the append-only collection of tone observations.
type ToneEmbeddings interface {
	InsertToneEmbedding(ctx context.Context, e *tone.Embedding) error
	// SearchToneEmbeddings returns up to limit nearest embeddings by tone vector,
	// most similar first, similarity in [0,1].
	SearchToneEmbeddings(ctx context.Context, f Filter, vector []float32, limit int) ([]tone.Scored, error)
	// ListToneEmbeddings returns up to limit embeddings, newest first.
	ListToneEmbeddings(ctx context.Context, f Filter, limit int) ([]tone.Embedding, error)
}

// MessageEmbeddings stores per-message vectors.
type MessageEmbeddings interface {
	InsertMessageEmbedding(ctx context.Context, e *tone.MessageEmbedding) error
}

// Analyses stores analysis and pattern records.
type Analyses interface {
	InsertAnalysis(ctx context.Context, r *tone.AnalysisRecord) error
	// ListAnalyses returns up to limit records of userID, newest first.
	ListAnalyses(ctx context.Context, userID string, limit int) ([]tone.AnalysisRecord, error)
}

// Users stores user profiles keyed by ID with a unique phone index.
type Users interface {
	CreateUser(ctx context.Context, p *user.Profile) error
	GetUser(ctx context.Context, id string) (*user.Profile, error)
	GetUserByPhone(ctx context.Context, phone string) (*user.Profile, error)
	UpdateUser(ctx context.Context, p *user.Profile) error
}

// Conversations stores chat messages.
type Conversations interface {
	SaveMessage(ctx context.Context, m *chat.Message) error
	// History returns up to limit messages of userID, newest first. An empty
	// conversationID spans every conversation; limit <= 0 means no limit.
	History(ctx context.Context, userID, conversationID string, limit int) ([]chat.Message, error)
}

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VectorStore holds the vector collections.
type VectorStore interface {
	ToneEmbeddings
	MessageEmbeddings
	Pinger
}

// DocumentStore holds the document collections.
type DocumentStore interface {
	Analyses
	Users
	Conversations
	Pinger
}

// Store is the full persistence surface used by the services.
type Store interface {
	VectorStore
	DocumentStore
}

// NewID returns a time-ordered UUIDv7 string.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Package memory 提供基于内存的 store.Store 实现，相似度检索为暴力余弦扫描。
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

// Store keeps every collection in process memory.
type Store struct {
	mu sync.RWMutex

	toneEmbeddings    []tone.Embedding
	messageEmbeddings map[string]tone.MessageEmbedding
	analyses          []tone.AnalysisRecord
	users             map[string]user.Profile
	phoneIndex        map[string]string
	messages          []chat.Message
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		messageEmbeddings: make(map[string]tone.MessageEmbedding),
		users:             make(map[string]user.Profile),
		phoneIndex:        make(map[string]string),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) InsertToneEmbedding(ctx context.Context, e *tone.Embedding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = store.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toneEmbeddings = append(s.toneEmbeddings, cloneEmbedding(*e))
	return nil
}

func (s *Store) SearchToneEmbeddings(ctx context.Context, f store.Filter, vector []float32, limit int) ([]tone.Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, goerr.Wrap(store.ErrInvalidVector, "empty query vector")
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	var out []tone.Scored
	for i := range s.toneEmbeddings {
		e := &s.toneEmbeddings[i]
		if !f.Match(e) || len(e.ToneVector) != len(vector) {
			continue
		}
		out = append(out, tone.Scored{Embedding: cloneEmbedding(*e), Similarity: embedding.Similarity(vector, e.ToneVector)})
	}
	s.mu.RUnlock()

	return store.TopK(out, limit), nil
}

func (s *Store) ListToneEmbeddings(ctx context.Context, f store.Filter, limit int) ([]tone.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []tone.Embedding
	for i := range s.toneEmbeddings {
		if f.Match(&s.toneEmbeddings[i]) {
			out = append(out, cloneEmbedding(s.toneEmbeddings[i]))
		}
	}
	s.mu.RUnlock()

	store.SortEmbeddings(out)
	return store.Limit(out, limit), nil
}

func (s *Store) InsertMessageEmbedding(ctx context.Context, e *tone.MessageEmbedding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = store.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageEmbeddings[e.ID] = *e
	return nil
}

// MessageEmbeddingCount is used by tests and the health report.
func (s *Store) MessageEmbeddingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messageEmbeddings)
}

func (s *Store) InsertAnalysis(ctx context.Context, r *tone.AnalysisRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = store.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses = append(s.analyses, *r)
	return nil
}

func (s *Store) ListAnalyses(ctx context.Context, userID string, limit int) ([]tone.AnalysisRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []tone.AnalysisRecord
	for _, r := range s.analyses {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	store.SortAnalyses(out)
	return store.Limit(out, limit), nil
}

func (s *Store) CreateUser(ctx context.Context, p *user.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = store.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[p.ID]; ok {
		return goerr.Wrap(store.ErrAlreadyExists, "user id taken", goerr.V("user_id", p.ID))
	}
	if p.PhoneNumber != "" {
		if _, ok := s.phoneIndex[p.PhoneNumber]; ok {
			return goerr.Wrap(store.ErrAlreadyExists, "phone number taken", goerr.V("phone", p.PhoneNumber))
		}
		s.phoneIndex[p.PhoneNumber] = p.ID
	}
	s.users[p.ID] = *p
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[id]
	if !ok {
		return nil, goerr.Wrap(store.ErrNotFound, "user not found", goerr.V("user_id", id))
	}
	return &p, nil
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*user.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.phoneIndex[phone]
	if !ok {
		return nil, goerr.Wrap(store.ErrNotFound, "user not found", goerr.V("phone", phone))
	}
	p := s.users[id]
	return &p, nil
}

func (s *Store) UpdateUser(ctx context.Context, p *user.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[p.ID]
	if !ok {
		return goerr.Wrap(store.ErrNotFound, "user not found", goerr.V("user_id", p.ID))
	}
	if old.PhoneNumber != p.PhoneNumber {
		if owner, taken := s.phoneIndex[p.PhoneNumber]; taken && owner != p.ID {
			return goerr.Wrap(store.ErrAlreadyExists, "phone number taken", goerr.V("phone", p.PhoneNumber))
		}
		delete(s.phoneIndex, old.PhoneNumber)
		if p.PhoneNumber != "" {
			s.phoneIndex[p.PhoneNumber] = p.ID
		}
	}
	s.users[p.ID] = *p
	return nil
}

func (s *Store) SaveMessage(ctx context.Context, m *chat.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = store.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *m)
	return nil
}

func (s *Store) History(ctx context.Context, userID, conversationID string, limit int) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []chat.Message
	for _, m := range s.messages {
		if m.UserID != userID || (conversationID != "" && m.ConversationID != conversationID) {
			continue
		}
		out = append(out, m)
	}
	s.mu.RUnlock()

	store.SortMessages(out)
	return store.Limit(out, limit), nil
}

func cloneEmbedding(e tone.Embedding) tone.Embedding {
	e.ToneVector = slices.Clone(e.ToneVector)
	e.MessageVector = slices.Clone(e.MessageVector)
	e.StyleVector = slices.Clone(e.StyleVector)
	return e
}

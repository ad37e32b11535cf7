// Package storetest 是 store.Store 实现共用的一致性测试集。
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises every collection of the store returned by newStore.
// newStore must return an empty store for each call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("ToneEmbeddings", func(t *testing.T) { testToneEmbeddings(t, newStore(t)) })
	t.Run("Analyses", func(t *testing.T) { testAnalyses(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Conversations", func(t *testing.T) { testConversations(t, newStore(t)) })
}

// RunVectors exercises only the vector collections.
func RunVectors(t *testing.T, newStore func(t *testing.T) store.VectorStore) {
	t.Run("ToneEmbeddings", func(t *testing.T) { testToneEmbeddings(t, newStore(t)) })
}

func emb(id, userID, rel string, tn tone.Tone, conf float64, vec []float32, at time.Time) *tone.Embedding {
	return &tone.Embedding{
		ID:              id,
		UserID:          userID,
		ToneVector:      vec,
		MessageVector:   vec,
		StyleVector:     vec,
		Tone:            tn,
		MessageSample:   "sample " + id,
		Confidence:      conf,
		Relationship:    rel,
		VectorModel:     "test",
		VectorDimension: len(vec),
		CreatedAt:       at,
	}
}

func testToneEmbeddings(t *testing.T, s store.VectorStore) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	rows := []*tone.Embedding{
		emb(store.NewID(), "u1", "friend", tone.Playful, 0.9, []float32{1, 0, 0}, base),
		emb(store.NewID(), "u1", "friend", tone.Casual, 0.6, []float32{0.8, 0.6, 0}, base.Add(time.Minute)),
		emb(store.NewID(), "u1", "business", tone.Business, 0.8, []float32{0, 1, 0}, base.Add(2*time.Minute)),
		emb(store.NewID(), "u2", "friend", tone.Formal, 0.7, []float32{1, 0, 0}, base.Add(3*time.Minute)),
	}
	for _, r := range rows {
		require.NoError(t, s.InsertToneEmbedding(ctx, r))
	}

	t.Run("search by user", func(t *testing.T) {
		got, err := s.SearchToneEmbeddings(ctx, store.Filter{UserID: "u1"}, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, rows[0].ID, got[0].ID)
		assert.InDelta(t, 1.0, got[0].Similarity, 1e-4)
		assert.Equal(t, rows[1].ID, got[1].ID)
		assert.InDelta(t, 0.9, got[1].Similarity, 1e-4)
		assert.Equal(t, rows[2].ID, got[2].ID)
		assert.InDelta(t, 0.5, got[2].Similarity, 1e-4)
		assert.Equal(t, tone.Playful, got[0].Tone)
		assert.Equal(t, 0.9, got[0].Confidence)
	})

	t.Run("search by user and relationship", func(t *testing.T) {
		got, err := s.SearchToneEmbeddings(ctx, store.Filter{UserID: "u1", Relationship: "business"}, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, tone.Business, got[0].Tone)
	})

	t.Run("search by relationship only", func(t *testing.T) {
		got, err := s.SearchToneEmbeddings(ctx, store.Filter{Relationship: "friend"}, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, g := range got {
			assert.Equal(t, "friend", g.Relationship)
			assert.InDelta(t, 1.0, g.Similarity, 1e-4)
		}
	})

	t.Run("search unknown user", func(t *testing.T) {
		got, err := s.SearchToneEmbeddings(ctx, store.Filter{UserID: "nobody"}, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("list newest first", func(t *testing.T) {
		got, err := s.ListToneEmbeddings(ctx, store.Filter{UserID: "u1"}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, rows[2].ID, got[0].ID)
		assert.Equal(t, rows[1].ID, got[1].ID)
	})

	t.Run("list since", func(t *testing.T) {
		got, err := s.ListToneEmbeddings(ctx, store.Filter{UserID: "u1", Since: base.Add(90 * time.Second)}, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, rows[2].ID, got[0].ID)
	})

	t.Run("append only", func(t *testing.T) {
		dup := *rows[0]
		dup.ID = store.NewID()
		require.NoError(t, s.InsertToneEmbedding(ctx, &dup))
		got, err := s.ListToneEmbeddings(ctx, store.Filter{UserID: "u1"}, 0)
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})

	require.NoError(t, s.InsertMessageEmbedding(ctx, &tone.MessageEmbedding{
		MessageID:     "m1",
		UserID:        "u1",
		ContentVector: []float32{1, 0, 0},
		Tone:          tone.Casual,
		CreatedAt:     base,
	}))
}

func testAnalyses(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := &tone.AnalysisRecord{Kind: tone.RecordMessage, UserID: "u1", PrimaryTone: tone.Formal, Confidence: 0.8, CreatedAt: base}
	second := &tone.AnalysisRecord{Kind: tone.RecordPattern, UserID: "u1", PrimaryTone: tone.Casual, Confidence: 0.5, CreatedAt: base.Add(time.Hour)}
	other := &tone.AnalysisRecord{Kind: tone.RecordMessage, UserID: "u2", CreatedAt: base}
	for _, r := range []*tone.AnalysisRecord{first, second, other} {
		require.NoError(t, s.InsertAnalysis(ctx, r))
		assert.NotEmpty(t, r.ID)
	}

	got, err := s.ListAnalyses(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, tone.RecordPattern, got[0].Kind)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, tone.Formal, got[1].PrimaryTone)

	t.Run("user id prefix of another user", func(t *testing.T) {
		require.NoError(t, s.InsertAnalysis(ctx, &tone.AnalysisRecord{Kind: tone.RecordMessage, UserID: "u3/x", CreatedAt: base}))

		got, err := s.ListAnalyses(ctx, "u3", 10)
		require.NoError(t, err)
		assert.Empty(t, got)

		nested, err := s.ListAnalyses(ctx, "u3/x", 10)
		require.NoError(t, err)
		require.Len(t, nested, 1)
		assert.Equal(t, "u3/x", nested[0].UserID)
	})
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	p := &user.Profile{PhoneNumber: "+15550001", Name: "Ann", Relationship: "friend", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.CreateUser(ctx, p))
	require.NotEmpty(t, p.ID)

	got, err := s.GetUser(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)

	byPhone, err := s.GetUserByPhone(ctx, "+15550001")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byPhone.ID)

	err = s.CreateUser(ctx, &user.Profile{PhoneNumber: "+15550001"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetUserByPhone(ctx, "+19999999")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got.InteractionCount = 3
	got.PhoneNumber = "+15550002"
	require.NoError(t, s.UpdateUser(ctx, got))

	updated, err := s.GetUserByPhone(ctx, "+15550002")
	require.NoError(t, err)
	assert.Equal(t, 3, updated.InteractionCount)
	_, err = s.GetUserByPhone(ctx, "+15550001")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.UpdateUser(ctx, &user.Profile{ID: "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testConversations(t *testing.T, s store.Store) {
	ctx := context.Background()

	msgs := []*chat.Message{
		{UserID: "u1", ConversationID: "c1", Sender: chat.SenderUser, Content: "hi", CreatedAt: base},
		{UserID: "u1", ConversationID: "c1", Sender: chat.SenderBot, Content: "hello", CreatedAt: base.Add(time.Second)},
		{UserID: "u1", ConversationID: "c2", Sender: chat.SenderUser, Content: "again", CreatedAt: base.Add(time.Minute)},
		{UserID: "u2", ConversationID: "c3", Sender: chat.SenderUser, Content: "other", CreatedAt: base},
	}
	for _, m := range msgs {
		require.NoError(t, s.SaveMessage(ctx, m))
	}

	all, err := s.History(ctx, "u1", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "again", all[0].Content)
	assert.Equal(t, "hi", all[2].Content)

	c1, err := s.History(ctx, "u1", "c1", 1)
	require.NoError(t, err)
	require.Len(t, c1, 1)
	assert.Equal(t, "hello", c1[0].Content)

	none, err := s.History(ctx, "nobody", "", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	t.Run("user id prefix of another user", func(t *testing.T) {
		require.NoError(t, s.SaveMessage(ctx, &chat.Message{UserID: "u3/x", ConversationID: "c4", Sender: chat.SenderUser, Content: "nested", CreatedAt: base}))

		got, err := s.History(ctx, "u3", "", 10)
		require.NoError(t, err)
		assert.Empty(t, got)

		nested, err := s.History(ctx, "u3/x", "", 10)
		require.NoError(t, err)
		require.Len(t, nested, 1)
		assert.Equal(t, "nested", nested[0].Content)
	})
}

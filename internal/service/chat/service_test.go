package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	chatmodel "github.com/zhouzirui/z-tone/backend/internal/model/chat"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/service/ai"
	chat "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/internal/service/reply"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
)

type fakeGenerator struct {
	reply string
	err   error
	got   []ai.ReplyRequest
}

func (f *fakeGenerator) GenerateReply(_ context.Context, req ai.ReplyRequest) (string, error) {
	f.got = append(f.got, req)
	return f.reply, f.err
}

type fakeStreamGenerator struct {
	fakeGenerator
	chunks []string
}

func (f *fakeStreamGenerator) StreamingEnabled() bool { return true }

func (f *fakeStreamGenerator) StreamReply(_ context.Context, req ai.ReplyRequest) (*schema.StreamReader[*schema.Message], error) {
	f.got = append(f.got, req)
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func newService(t *testing.T, gen chat.Generator, queue *tonesvc.Queue) (*chat.Service, *memory.Store) {
	t.Helper()
	s := memory.New()
	client := embedding.NewClient(embedding.NewHashEmbedder(0), embedding.HashModel, embedding.HashDimension, 0)
	analyzer := tonesvc.NewAnalyzer(tonesvc.AnalysisContext{Store: s, Embedder: client}, tonesvc.Options{Queue: queue})
	return chat.NewService(s, analyzer, nil, gen), s
}

func TestProcessMessageCreatesUser(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t, nil, nil)

	got, err := svc.ProcessMessage(ctx, chat.Inbound{SenderPhone: " +15550001 ", Text: "yo bro what's up"})
	require.NoError(t, err)

	assert.Equal(t, "canned", got.ModelUsed)
	assert.NotEmpty(t, got.ResponseID)
	assert.NotEmpty(t, got.ConversationID)
	assert.InDelta(t, 1.0, got.Scores.Sum(), 1e-9)
	assert.Contains(t, reply.DefaultTable().Options(model.RelationshipBrother, got.AppliedTone), got.Text)

	profile, err := s.GetUserByPhone(ctx, "+15550001")
	require.NoError(t, err)
	assert.Equal(t, got.UserID, profile.ID)
	assert.Equal(t, "Unknown User", profile.Name)
	assert.Equal(t, model.RelationshipBrother, profile.Relationship)
	assert.Equal(t, 1, profile.InteractionCount)
	assert.Equal(t, got.AppliedTone.String(), profile.PrimaryTone)

	history, err := s.History(ctx, profile.ID, got.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	senders := []string{history[0].Sender, history[1].Sender}
	assert.ElementsMatch(t, []string{chatmodel.SenderUser, chatmodel.SenderBot}, senders)
}

func TestProcessMessageReusesUser(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t, nil, nil)

	first, err := svc.ProcessMessage(ctx, chat.Inbound{SenderPhone: "+15550002", SenderName: "Ana", Text: "hello"})
	require.NoError(t, err)
	second, err := svc.ProcessMessage(ctx, chat.Inbound{SenderPhone: "+15550002", Text: "are you there?"})
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)

	profile, err := s.GetUser(ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", profile.Name)
	assert.Equal(t, 2, profile.InteractionCount)

	ctxResult, err := svc.GetContext(ctx, first.UserID, "", 0)
	require.NoError(t, err)
	assert.Len(t, ctxResult.Messages, 4)
	assert.Equal(t, chatmodel.StateActive, ctxResult.State)
	assert.NotEmpty(t, ctxResult.ConversationID)
}

func TestProcessMessageValidation(t *testing.T) {
	svc, _ := newService(t, nil, nil)

	_, err := svc.ProcessMessage(context.Background(), chat.Inbound{Text: "hi"})
	assert.ErrorIs(t, err, chat.ErrPhoneRequired)

	_, err = svc.ProcessMessage(context.Background(), chat.Inbound{SenderPhone: "+1", Text: "   "})
	assert.ErrorIs(t, err, chat.ErrTextRequired)
}

func TestProcessMessageUsesGenerator(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{reply: "Sounds great, talk soon!"}
	svc, _ := newService(t, gen, nil)

	_, err := svc.ProcessMessage(ctx, chat.Inbound{SenderPhone: "+15550003", Text: "first"})
	require.NoError(t, err)
	got, err := svc.ProcessMessage(ctx, chat.Inbound{SenderPhone: "+15550003", Text: "second"})
	require.NoError(t, err)

	assert.Equal(t, "llm", got.ModelUsed)
	assert.Equal(t, "Sounds great, talk soon!", got.Text)

	require.Len(t, gen.got, 2)
	assert.Empty(t, gen.got[0].History)
	// history of the second call holds the first exchange, oldest first, without the current message
	require.Len(t, gen.got[1].History, 2)
	assert.Equal(t, "second", gen.got[1].Text)
	for _, m := range gen.got[1].History {
		assert.NotEqual(t, "second", m.Content)
	}
	assert.False(t, gen.got[1].History[0].CreatedAt.After(gen.got[1].History[1].CreatedAt))
}

func TestProcessMessageFallsBackToCanned(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rate limited")}
	svc, _ := newService(t, gen, nil)

	got, err := svc.ProcessMessage(context.Background(), chat.Inbound{SenderPhone: "+15550004", Text: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "canned", got.ModelUsed)
	assert.NotEmpty(t, got.Text)
}

func TestGetContextUnknownUser(t *testing.T) {
	svc, _ := newService(t, nil, nil)

	_, err := svc.GetContext(context.Background(), "missing", "", 10)
	assert.ErrorIs(t, err, chat.ErrUserNotFound)

	_, err = svc.GetToneProfile(context.Background(), "missing", 30)
	assert.ErrorIs(t, err, chat.ErrUserNotFound)
}

func TestGetToneProfileAfterMessages(t *testing.T) {
	ctx := context.Background()
	queue := tonesvc.NewQueue(tonesvc.QueueConfig{Workers: 2, JobTimeout: time.Second})
	svc, s := newService(t, nil, queue)

	var userID string
	for _, text := range []string{"haha that's hilarious 😂", "lol so funny", "hey how are you"} {
		got, err := svc.ProcessMessage(ctx, chat.Inbound{SenderPhone: "+15550005", Text: text})
		require.NoError(t, err)
		userID = got.UserID
	}
	queue.Close()

	assert.Equal(t, 3, s.MessageEmbeddingCount())

	profile, err := svc.GetToneProfile(ctx, userID, 30)
	require.NoError(t, err)
	assert.Equal(t, userID, profile.User.ID)
	require.NotNil(t, profile.Report)
	assert.Equal(t, 3, profile.Report.TotalMessages)
}

func TestStreamMessageEmitsChunks(t *testing.T) {
	ctx := context.Background()
	gen := &fakeStreamGenerator{chunks: []string{"Hey ", "", "there!"}}
	svc, _ := newService(t, gen, nil)

	var deltas []string
	got, err := svc.StreamMessage(ctx, chat.Inbound{SenderPhone: "+15550009", Text: "hey"}, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hey ", "there!"}, deltas)
	assert.Equal(t, "Hey there!", got.Text)
	assert.Equal(t, "llm", got.ModelUsed)
	require.Len(t, gen.got, 1)
}

func TestStreamMessageCannedEmitsOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil, nil)

	var deltas []string
	got, err := svc.StreamMessage(ctx, chat.Inbound{SenderPhone: "+15550010", Text: "hello"}, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{got.Text}, deltas)
	assert.Equal(t, "canned", got.ModelUsed)
}

package chat

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/m-mizutani/goerr/v2"

	tonerules "github.com/zhouzirui/z-tone/backend/internal/analysis/tone"
	"github.com/zhouzirui/z-tone/backend/internal/logging"
	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
	"github.com/zhouzirui/z-tone/backend/internal/service/ai"
	"github.com/zhouzirui/z-tone/backend/internal/service/reply"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

var (
	ErrPhoneRequired = errors.New("sender phone is required")
	ErrTextRequired  = errors.New("message text is required")
	ErrUserNotFound  = errors.New("user not found")
)

const (
	// DefaultContextLimit bounds GetContext when the caller passes no limit.
	DefaultContextLimit = 10
	recentLimit         = 5
	patternLimit        = 3

	// fixed scores stored next to bot replies
	replySentiment = 0.8
	replyEmotional = 0.7
)

// Generator produces free-form replies; nil disables LLM replies.
type Generator interface {
	GenerateReply(ctx context.Context, req ai.ReplyRequest) (string, error)
}

// StreamGenerator is a Generator that can also stream reply chunks.
type StreamGenerator interface {
	Generator
	StreamingEnabled() bool
	StreamReply(ctx context.Context, req ai.ReplyRequest) (*schema.StreamReader[*schema.Message], error)
}

// Inbound is one WhatsApp message.
type Inbound struct {
	SenderPhone string
	SenderName  string
	Text        string
}

// Reply is the agent's answer to an inbound message.
type Reply struct {
	ResponseID     string        `json:"responseId"`
	Text           string        `json:"responseText"`
	AppliedTone    model.Tone    `json:"appliedTone"`
	Confidence     float64       `json:"confidenceScore"`
	Scores         model.Scores  `json:"toneScores"`
	ConversationID string        `json:"conversationId"`
	UserID         string        `json:"userId"`
	MessageID      string        `json:"messageId"`
	ModelUsed      string        `json:"modelUsed"`
	ProcessingTime time.Duration `json:"processingTimeNs"`
	GeneratedAt    time.Time     `json:"generatedAt"`
}

// ToneProfile is a user's tone history summary.
type ToneProfile struct {
	User   user.Profile         `json:"userProfile"`
	Report *model.PatternReport `json:"patterns"`
}

// Service encapsulates conversation handling around the tone analyzer.
type Service struct {
	store     store.Store
	analyzer  *tonesvc.Analyzer
	composer  *reply.Composer
	generator Generator
	now       func() time.Time
}

// NewService wires the conversation flow. generator may be nil.
func NewService(s store.Store, analyzer *tonesvc.Analyzer, composer *reply.Composer, generator Generator) *Service {
	if composer == nil {
		composer = reply.NewComposer(nil)
	}
	return &Service{
		store:     s,
		analyzer:  analyzer,
		composer:  composer,
		generator: generator,
		now:       time.Now,
	}
}

// ProcessMessage handles one inbound message end to end: user resolution, tone analysis,
// persistence of both turns and reply generation.
func (s *Service) ProcessMessage(ctx context.Context, in Inbound) (*Reply, error) {
	return s.process(ctx, in, nil)
}

// StreamMessage behaves like ProcessMessage and hands reply text to emit as it is produced.
// Canned replies arrive as a single chunk.
func (s *Service) StreamMessage(ctx context.Context, in Inbound, emit func(delta string)) (*Reply, error) {
	if emit == nil {
		emit = func(string) {}
	}
	return s.process(ctx, in, emit)
}

func (s *Service) process(ctx context.Context, in Inbound, emit func(string)) (*Reply, error) {
	start := s.now()
	in.SenderPhone = strings.TrimSpace(in.SenderPhone)
	if in.SenderPhone == "" {
		return nil, ErrPhoneRequired
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrTextRequired
	}

	processingID := store.NewID()
	logger := logging.From(ctx).With("processing_id", processingID)
	ctx = logging.With(ctx, logger)

	profile, err := s.getOrCreateUser(ctx, in)
	if err != nil {
		return nil, err
	}

	recent, err := s.store.History(ctx, profile.ID, "", recentLimit)
	if err != nil {
		logger.Warn("failed to load recent history", "user_id", profile.ID, "error", err)
		recent = nil
	}

	messageID := store.NewID()
	analysis := s.analyzer.Analyze(ctx, tonesvc.Request{
		UserID:    profile.ID,
		Text:      in.Text,
		MessageID: messageID,
		User:      profile,
	})

	if err := s.recordInteraction(ctx, profile, analysis.PrimaryTone); err != nil {
		logger.Warn("failed to record interaction", "user_id", profile.ID, "error", err)
	}

	conversationID := store.NewID()
	userMsg := &chat.Message{
		ID:             messageID,
		UserID:         profile.ID,
		ConversationID: conversationID,
		Sender:         chat.SenderUser,
		Content:        in.Text,
		Tone:           analysis.PrimaryTone.String(),
		ToneConfidence: analysis.Confidence,
		Metadata: map[string]string{
			"processing_id": processingID,
			"sender_phone":  in.SenderPhone,
		},
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, goerr.Wrap(err, "failed to save user message", goerr.V("user_id", profile.ID))
	}

	text, modelUsed := s.buildReply(ctx, in.Text, profile, analysis, recent, emit)

	botMsg := &chat.Message{
		ID:             store.NewID(),
		UserID:         profile.ID,
		ConversationID: conversationID,
		Sender:         chat.SenderBot,
		Content:        text,
		Tone:           analysis.PrimaryTone.String(),
		Metadata: map[string]string{
			"processing_id":       processingID,
			"original_message_id": messageID,
			"model":               modelUsed,
		},
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, botMsg); err != nil {
		return nil, goerr.Wrap(err, "failed to save bot message", goerr.V("user_id", profile.ID))
	}

	s.analyzer.EnqueueMessage(ctx, tonesvc.MessageObservation{
		MessageID:      botMsg.ID,
		UserID:         profile.ID,
		ConversationID: conversationID,
		Text:           text,
		Tone:           analysis.PrimaryTone,
		SentimentScore: replySentiment,
		EmotionalScore: replyEmotional,
		FormalityScore: s.analyzer.Params().Formality(text),
	})

	now := s.now()
	logger.Info("message processed",
		"user_id", profile.ID,
		"tone", analysis.PrimaryTone.String(),
		"confidence", analysis.Confidence,
		"model", modelUsed,
	)

	return &Reply{
		ResponseID:     store.NewID(),
		Text:           text,
		AppliedTone:    analysis.PrimaryTone,
		Confidence:     analysis.Confidence,
		Scores:         analysis.Scores,
		ConversationID: conversationID,
		UserID:         profile.ID,
		MessageID:      messageID,
		ModelUsed:      modelUsed,
		ProcessingTime: now.Sub(start),
		GeneratedAt:    now.UTC(),
	}, nil
}

func (s *Service) getOrCreateUser(ctx context.Context, in Inbound) (*user.Profile, error) {
	profile, err := s.store.GetUserByPhone(ctx, in.SenderPhone)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, goerr.Wrap(err, "failed to look up user", goerr.V("phone", in.SenderPhone))
	}

	name := strings.TrimSpace(in.SenderName)
	if name == "" {
		name = user.DefaultName
	}
	now := s.now().UTC()
	profile = &user.Profile{
		ID:           store.NewID(),
		PhoneNumber:  in.SenderPhone,
		Name:         name,
		Relationship: tonerules.DetectRelationship(in.Text),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, profile); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// 并发请求已创建同一手机号的用户
			return s.store.GetUserByPhone(ctx, in.SenderPhone)
		}
		return nil, goerr.Wrap(err, "failed to create user", goerr.V("phone", in.SenderPhone))
	}
	logging.From(ctx).Info("user created", "user_id", profile.ID, "relationship", profile.Relationship)
	return profile, nil
}

func (s *Service) recordInteraction(ctx context.Context, profile *user.Profile, detected model.Tone) error {
	now := s.now().UTC()
	profile.InteractionCount++
	profile.LastInteraction = now
	profile.PrimaryTone = detected.String()
	profile.UpdatedAt = now
	return s.store.UpdateUser(ctx, profile)
}

func (s *Service) buildReply(ctx context.Context, text string, profile *user.Profile, analysis model.Analysis, recent []chat.Message, emit func(string)) (string, string) {
	logger := logging.From(ctx)

	var pattern *model.Scored
	matches, err := s.analyzer.FindSimilar(ctx, tonesvc.SimilarQuery{
		Text:          text,
		UserID:        profile.ID,
		Limit:         patternLimit,
		MinSimilarity: reply.PatternMinSimilarity,
	})
	if err != nil {
		logger.Debug("pattern lookup failed", "user_id", profile.ID, "error", err)
	} else if len(matches) > 0 {
		pattern = &matches[0]
	}

	canned := s.composer.Compose(reply.Input{
		Text:         text,
		UserID:       profile.ID,
		Relationship: profile.Relationship,
		Tone:         analysis.PrimaryTone,
		Recent:       recent,
		Pattern:      pattern,
	})

	if s.generator != nil {
		history := slices.Clone(recent)
		slices.Reverse(history)
		req := ai.ReplyRequest{
			Text:         text,
			Relationship: profile.Relationship,
			Tone:         analysis.PrimaryTone,
			Confidence:   analysis.Confidence,
			History:      history,
		}

		generated, err := s.generate(ctx, req, emit)
		if err == nil {
			return generated, "llm"
		}
		logger.Warn("llm reply failed, using canned reply", "user_id", profile.ID, "error", err)
	}

	if emit != nil {
		emit(canned)
	}
	return canned, "canned"
}

func (s *Service) generate(ctx context.Context, req ai.ReplyRequest, emit func(string)) (string, error) {
	sg, ok := s.generator.(StreamGenerator)
	if emit == nil || !ok || !sg.StreamingEnabled() {
		text, err := s.generator.GenerateReply(ctx, req)
		if err != nil {
			return "", err
		}
		if emit != nil {
			emit(text)
		}
		return text, nil
	}

	stream, err := sg.StreamReply(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if b.Len() > 0 {
				// 已推送的片段无法撤回
				return b.String(), nil
			}
			return "", goerr.Wrap(err, "failed to receive reply chunk")
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		b.WriteString(chunk.Content)
		emit(chunk.Content)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", goerr.New("chat model streamed an empty reply")
	}
	return text, nil
}

// GetUser returns a stored profile.
func (s *Service) GetUser(ctx context.Context, userID string) (*user.Profile, error) {
	profile, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, goerr.Wrap(err, "failed to load user", goerr.V("user_id", userID))
	}
	return profile, nil
}

// GetContext returns the user's profile with up to limit recent messages, newest first.
// An empty conversationID spans every conversation of the user.
func (s *Service) GetContext(ctx context.Context, userID, conversationID string, limit int) (*chat.Context, error) {
	profile, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultContextLimit
	}

	messages, err := s.store.History(ctx, userID, conversationID, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load history", goerr.V("user_id", userID))
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	if conversationID == "" {
		conversationID = store.NewID()
	}
	return &chat.Context{
		ConversationID: conversationID,
		User:           *profile,
		Messages:       messages,
		State:          chat.StateActive,
	}, nil
}

// GetToneProfile summarises the user's tone history over the last days.
func (s *Service) GetToneProfile(ctx context.Context, userID string, days int) (*ToneProfile, error) {
	profile, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	report, err := s.analyzer.AnalyzePatterns(ctx, userID, days)
	if err != nil {
		return nil, err
	}
	return &ToneProfile{User: *profile, Report: report}, nil
}

// Analyzer exposes the tone analyzer used by the service.
func (s *Service) Analyzer() *tonesvc.Analyzer { return s.analyzer }

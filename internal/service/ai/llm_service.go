package ai

import (
	"context"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/m-mizutani/goerr/v2"

	"github.com/zhouzirui/z-tone/backend/internal/config"
	"github.com/zhouzirui/z-tone/backend/internal/logging"
	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

const historyLimit = 10

// ReplyRequest describes one tone-styled reply.
type ReplyRequest struct {
	Text         string
	Relationship string
	Tone         model.Tone
	Confidence   float64
	// History is oldest first.
	History []chat.Message
}

// Service encapsulates LLM-generated replies.
type Service struct {
	chatModel einomodel.BaseChatModel
	cfg       config.AIConfig
	prompts   *PromptBuilder
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the chat model from cfg and compiles the reply chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat model")
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel compiles the reply chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel einomodel.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compile reply chain")
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		prompts:   NewPromptBuilder(),
		chain:     runnable,
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s != nil && s.cfg.StreamResponse
}

// GenerateReply runs the chain once and returns the trimmed reply.
func (s *Service) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(req))
	if err != nil {
		return "", goerr.Wrap(err, "failed to run reply chain")
	}

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", goerr.New("chat model returned an empty reply")
	}

	logging.From(ctx).Debug("llm reply generated", "tone", req.Tone.String(), "length", len(text))
	return text, nil
}

// StreamReply streams reply chunks.
func (s *Service) StreamReply(ctx context.Context, req ReplyRequest) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, goerr.New("streaming disabled in configuration")
	}

	stream, err := s.chain.Stream(ctx, s.buildChainInput(req))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to stream reply chain output")
	}
	return stream, nil
}

func (s *Service) buildChainInput(req ReplyRequest) map[string]any {
	return map[string]any{
		"system":  s.prompts.BuildSystemPrompt(req.Relationship, req.Tone, req.Confidence),
		"history": buildHistoryMessages(req.History),
		"query":   req.Text,
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderBot:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

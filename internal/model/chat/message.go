package chat

import "time"

// Sender values stored on messages.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Message persists individual turns of a conversation.
type Message struct {
	ID             string            `json:"messageId"`
	UserID         string            `json:"userId"`
	ConversationID string            `json:"conversationId"`
	Sender         string            `json:"sender"`
	Content        string            `json:"content"`
	Tone           string            `json:"detectedTone,omitempty"`
	ToneConfidence float64           `json:"toneConfidence,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"timestamp"`
}

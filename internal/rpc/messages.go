package rpc

import (
	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	chatservice "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/internal/service/health"
)

// AnalyzeToneRequest asks for a synchronous tone analysis.
type AnalyzeToneRequest struct {
	UserID  string `json:"userId"`
	Text    string `json:"messageText"`
	Context string `json:"context,omitempty"`
}

// AnalyzeToneResponse wraps the analysis.
type AnalyzeToneResponse struct {
	Analysis model.Analysis `json:"analysis"`
}

// SimilarTonesRequest searches stored observations.
type SimilarTonesRequest struct {
	Text          string  `json:"messageText"`
	UserID        string  `json:"userId,omitempty"`
	Relationship  string  `json:"relationship,omitempty"`
	Limit         int     `json:"limit,omitempty"`
	MinSimilarity float64 `json:"minSimilarity,omitempty"`
}

// SimilarTonesResponse lists the matches, most similar first.
type SimilarTonesResponse struct {
	Matches []model.Match `json:"matches"`
}

// ToneProfileRequest asks for a user's pattern report.
type ToneProfileRequest struct {
	UserID string `json:"userId"`
	Days   int    `json:"days,omitempty"`
}

// ToneProfileResponse carries the report.
type ToneProfileResponse struct {
	Profile *chatservice.ToneProfile `json:"profile"`
}

// ProcessMessageRequest is one inbound WhatsApp message.
type ProcessMessageRequest struct {
	SenderPhone string `json:"senderPhone"`
	SenderName  string `json:"senderName,omitempty"`
	Text        string `json:"messageText"`
}

// ProcessMessageResponse carries the generated reply.
type ProcessMessageResponse struct {
	Reply *chatservice.Reply `json:"reply"`
}

// GetContextRequest fetches recent messages of a user.
type GetContextRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// GetContextResponse wraps the conversation context.
type GetContextResponse struct {
	Context *chat.Context `json:"context"`
}

// HealthCheckRequest is empty.
type HealthCheckRequest struct{}

// HealthCheckResponse mirrors the HTTP health report.
type HealthCheckResponse struct {
	Report health.Report `json:"report"`
}

package stream

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tone/backend/internal/logging"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	chatService "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/pkg/utils"
)

// Handler streams replies to a known user via Server-Sent Events.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a new stream handler
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册SSE路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{userID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event      string        `json:"event"`
	Content    string        `json:"content,omitempty"`
	UserID     string        `json:"userId,omitempty"`
	Tone       string        `json:"tone,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Scores     *model.Scores `json:"toneScores,omitempty"`
	Finished   bool          `json:"finished,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// handleStream processes one message and streams the reply
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	profile, err := h.chatSvc.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, chatService.ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		logging.From(ctx).Error("failed to load user for stream", "user_id", userID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "start", UserID: userID})

	reply, err := h.chatSvc.StreamMessage(ctx, chatService.Inbound{
		SenderPhone: profile.PhoneNumber,
		SenderName:  profile.Name,
		Text:        message,
	}, func(delta string) {
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "delta", UserID: userID, Content: delta})
	})
	if err != nil {
		logging.From(ctx).Error("stream processing failed", "user_id", userID, "error", err)
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "error", UserID: userID, Error: "processing failed"})
		return
	}

	// tone 与 end 以具名事件发送，客户端可单独监听
	utils.SendSSEEvent(w, flusher, "tone", StreamResponse{
		Event:      "tone",
		UserID:     userID,
		Tone:       reply.AppliedTone.String(),
		Confidence: reply.Confidence,
		Scores:     &reply.Scores,
	})
	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "message", UserID: userID, Content: reply.Text})
	utils.SendSSEEvent(w, flusher, "end", StreamResponse{Event: "end", UserID: userID, Finished: true})

	logging.From(ctx).Debug("stream completed", "user_id", userID, "model", reply.ModelUsed)
}

// Package socket 提供基于 WebSocket 的双向聊天通道。
package socket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-tone/backend/internal/logging"
	"github.com/zhouzirui/z-tone/backend/internal/metrics"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
	chatservice "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 64 << 10
)

// Handler WebSocket聊天处理器
type Handler struct {
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{userID}", h.handleWebSocket)
}

// Inbound is a client frame.
type Inbound struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// Outbound is a server frame.
type Outbound struct {
	Type      string `json:"type"`
	UserID    string `json:"userId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connection struct {
	conn    *websocket.Conn
	profile *user.Profile
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	profile, err := h.chatSvc.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, chatservice.ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	logger := logging.From(r.Context()).With("user_id", userID)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(logging.With(r.Context(), logger))
	defer cancel()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c := &connection{conn: conn, profile: profile}
	go h.pingLoop(ctx, conn)

	c.send("connected", map[string]any{"relationship": profile.Relationship})
	logger.Info("websocket connected")

	for {
		var msg Inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		metrics.RequestsTotal.WithLabelValues("websocket").Inc()

		h.handleMessage(ctx, c, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, msg Inbound) {
	switch msg.Type {
	case "ping":
		c.send("pong", nil)

	case "analyze":
		analysis := h.chatSvc.Analyzer().Analyze(ctx, tonesvc.Request{
			UserID:      c.profile.ID,
			Text:        msg.Text,
			ContextHint: msg.Context,
		})
		c.send("tone", analysis)

	case "text":
		if msg.Text == "" {
			c.sendError("text is required")
			return
		}
		reply, err := h.chatSvc.ProcessMessage(ctx, chatservice.Inbound{
			SenderPhone: c.profile.PhoneNumber,
			SenderName:  c.profile.Name,
			Text:        msg.Text,
		})
		if err != nil {
			logging.From(ctx).Error("websocket message failed", "error", err)
			c.sendError("processing failed")
			return
		}
		c.send("reply", reply)

	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// WriteControl 可与 WriteJSON 并发调用
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *connection) send(kind string, data any) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.conn.WriteJSON(Outbound{
		Type:      kind,
		UserID:    c.profile.ID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		logging.Default().Debug("websocket write failed", "type", kind, "error", err)
	}
}

func (c *connection) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

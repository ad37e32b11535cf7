package chat

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tone/backend/internal/logging"
	chatService "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/pkg/utils"
)

const (
	maxContextLimit = 100
	maxProfileDays  = 365
	defaultDays     = 30
)

// Handler 消息与用户查询的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建消息处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册消息与用户相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleProcessMessage)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", h.handleGetUser)
		r.Get("/context", h.handleGetContext)
		r.Get("/tone-profile", h.handleGetToneProfile)
	})
}

type messageRequest struct {
	SenderPhone string `json:"senderPhone" validate:"required,max=32"`
	SenderName  string `json:"senderName" validate:"max=128"`
	Text        string `json:"messageText" validate:"required,max=4096"`
}

// handleProcessMessage 处理一条入站消息并返回回复
func (h *Handler) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var payload messageRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.chatSvc.ProcessMessage(r.Context(), chatService.Inbound{
		SenderPhone: payload.SenderPhone,
		SenderName:  payload.SenderName,
		Text:        payload.Text,
	})
	if err != nil {
		respondServiceError(r, w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, reply)
}

// handleGetUser 查询用户资料
func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.chatSvc.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondServiceError(r, w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}

// handleGetContext 返回用户资料与最近消息
func (h *Handler) handleGetContext(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", chatService.DefaultContextLimit, maxContextLimit)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.chatSvc.GetContext(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("conversationId"), limit)
	if err != nil {
		respondServiceError(r, w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleGetToneProfile 返回用户一段时间内的语气统计
func (h *Handler) handleGetToneProfile(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultDays, maxProfileDays)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := h.chatSvc.GetToneProfile(r.Context(), chi.URLParam(r, "userID"), days)
	if err != nil {
		respondServiceError(r, w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}

func queryInt(r *http.Request, key string, def, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || v > max {
		return 0, errors.New(key + " must be between 1 and " + strconv.Itoa(max))
	}
	return v, nil
}

func respondServiceError(r *http.Request, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrUserNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrPhoneRequired), errors.Is(err, chatService.ErrTextRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		logging.From(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

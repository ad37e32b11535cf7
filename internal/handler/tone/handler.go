package tone

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tone/backend/internal/logging"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/pkg/utils"
)

// Handler 语气分析的HTTP处理器
type Handler struct {
	analyzer *tonesvc.Analyzer
}

// New 创建语气处理器
func New(analyzer *tonesvc.Analyzer) *Handler {
	return &Handler{analyzer: analyzer}
}

// RegisterRoutes 注册语气相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/tone/analyze", h.handleAnalyze)
	r.Post("/tone/similar", h.handleSimilar)
}

type analyzeRequest struct {
	UserID      string `json:"userId" validate:"max=64"`
	Text        string `json:"messageText" validate:"max=4096"`
	ContextHint string `json:"context" validate:"max=1024"`
}

// handleAnalyze 同步分析一段文本的语气，空文本也会得到结果
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var payload analyzeRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.analyzer.Analyze(r.Context(), tonesvc.Request{
		UserID:      payload.UserID,
		Text:        payload.Text,
		ContextHint: payload.ContextHint,
	})
	utils.RespondJSON(w, http.StatusOK, result)
}

type similarRequest struct {
	Text          string  `json:"messageText" validate:"required,max=4096"`
	UserID        string  `json:"userId" validate:"max=64"`
	Relationship  string  `json:"relationship" validate:"max=32"`
	Limit         int     `json:"limit" validate:"gte=0,lte=50"`
	MinSimilarity float64 `json:"minSimilarity" validate:"gte=0,lte=1"`
}

type similarResponse struct {
	Matches []model.Match `json:"matches"`
}

// handleSimilar 查找与文本相似的历史语气样本
func (h *Handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var payload similarRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hits, err := h.analyzer.FindSimilar(r.Context(), tonesvc.SimilarQuery{
		Text:          payload.Text,
		UserID:        payload.UserID,
		Relationship:  payload.Relationship,
		Limit:         payload.Limit,
		MinSimilarity: payload.MinSimilarity,
	})
	if err != nil {
		if errors.Is(err, tonesvc.ErrEmptyText) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.From(r.Context()).Error("similarity search failed", "error", err)
		utils.RespondError(w, http.StatusServiceUnavailable, "similarity search unavailable")
		return
	}

	resp := similarResponse{Matches: make([]model.Match, 0, len(hits))}
	for _, hit := range hits {
		resp.Matches = append(resp.Matches, hit.Match())
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	chatservice "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/internal/service/health"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
)

func newTestRouter(withChecker bool) http.Handler {
	s := memory.New()
	client := embedding.NewClient(embedding.NewHashEmbedder(0), embedding.HashModel, embedding.HashDimension, 0)
	analyzer := tonesvc.NewAnalyzer(tonesvc.AnalysisContext{Store: s, Embedder: client}, tonesvc.Options{})
	svc := chatservice.NewService(s, analyzer, nil, nil)

	var checker *health.Checker
	if withChecker {
		checker = health.NewChecker(s, client, map[string]string{"store": "memory"})
	}
	return NewRouter(svc, checker)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	r := newTestRouter(true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tone/analyze", strings.NewReader(`{"messageText":"hi"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.Healthy, report.Status)
	assert.EqualValues(t, 1, report.Details["total_requests"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ztone_requests_total")
}

func TestRouterWithoutChecker(t *testing.T) {
	r := newTestRouter(false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/messages", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

package tone

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
)

func setupRouter(t *testing.T) (*chi.Mux, *memory.Store, *embedding.Client) {
	t.Helper()
	s := memory.New()
	client := embedding.NewClient(embedding.NewHashEmbedder(0), embedding.HashModel, embedding.HashDimension, 0)
	analyzer := tonesvc.NewAnalyzer(tonesvc.AnalysisContext{Store: s, Embedder: client}, tonesvc.Options{})

	r := chi.NewRouter()
	New(analyzer).RegisterRoutes(r)
	return r, s, client
}

func post(r http.Handler, target string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestAnalyze(t *testing.T) {
	r, _, _ := setupRouter(t)

	resp := post(r, "/tone/analyze", map[string]string{"messageText": "I miss you baby, kiss 😘"})
	require.Equal(t, http.StatusOK, resp.Code)

	var got model.Analysis
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, model.Romantic, got.PrimaryTone)
	assert.InDelta(t, 1.0, got.Scores.Sum(), 1e-9)
}

func TestAnalyzeEmptyText(t *testing.T) {
	r, _, _ := setupRouter(t)

	resp := post(r, "/tone/analyze", map[string]string{"messageText": ""})
	require.Equal(t, http.StatusOK, resp.Code)

	var got model.Analysis
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.True(t, got.PrimaryTone.Valid())
}

func TestSimilar(t *testing.T) {
	r, s, client := setupRouter(t)

	text := "see you at the meeting tomorrow"
	vec, err := client.Embed(context.Background(), text)
	require.NoError(t, err)
	require.NoError(t, s.InsertToneEmbedding(context.Background(), &model.Embedding{
		ID:            store.NewID(),
		UserID:        "u1",
		ToneVector:    vec,
		MessageVector: vec,
		StyleVector:   vec,
		Tone:          model.Business,
		MessageSample: text,
		Confidence:    0.8,
		Relationship:  model.RelationshipBusiness,
		CreatedAt:     time.Now(),
	}))

	resp := post(r, "/tone/similar", map[string]any{"messageText": text, "userId": "u1"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "toneVector")

	var got similarResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	require.Len(t, got.Matches, 1)
	assert.Equal(t, model.Business, got.Matches[0].Tone)
	assert.InDelta(t, 1.0, got.Matches[0].Similarity, 1e-3)

	resp = post(r, "/tone/similar", map[string]any{"messageText": text, "userId": "someone-else"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"matches":[]}`, resp.Body.String())
}

func TestSimilarValidation(t *testing.T) {
	r, _, _ := setupRouter(t)

	resp := post(r, "/tone/similar", map[string]any{"messageText": ""})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = post(r, "/tone/similar", map[string]any{"messageText": "hi", "limit": 500})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "limit")
}

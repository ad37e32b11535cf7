package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	chatservice "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
)

func setup(t *testing.T) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	s := memory.New()
	client := embedding.NewClient(embedding.NewHashEmbedder(0), embedding.HashModel, embedding.HashDimension, 0)
	analyzer := tonesvc.NewAnalyzer(tonesvc.AnalysisContext{Store: s, Embedder: client}, tonesvc.Options{})
	svc := chatservice.NewService(s, analyzer, nil, nil)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r, svc
}

func readEvents(t *testing.T, body string) []StreamResponse {
	t.Helper()
	var events []StreamResponse
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev StreamResponse
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}
	return events
}

func TestStreamCannedReply(t *testing.T) {
	r, svc := setup(t)
	first, err := svc.ProcessMessage(context.Background(), chatservice.Inbound{SenderPhone: "+15550200", Text: "hello"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/stream/"+first.UserID+"?message="+url.QueryEscape("how are you?"), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: tone\ndata: ")
	assert.Contains(t, body, "event: end\ndata: ")
	assert.NotContains(t, body, "event: delta")

	events := readEvents(t, body)
	require.Len(t, events, 5)
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Event
	}
	assert.Equal(t, []string{"start", "delta", "tone", "message", "end"}, names)
	assert.Equal(t, events[1].Content, events[3].Content)
	assert.NotEmpty(t, events[2].Tone)
	require.NotNil(t, events[2].Scores)
	assert.True(t, events[4].Finished)
}

func TestStreamErrors(t *testing.T) {
	r, _ := setup(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/missing?message=hi", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/missing", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	chatservice "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
)

type frame struct {
	Type   string          `json:"type"`
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	s := memory.New()
	client := embedding.NewClient(embedding.NewHashEmbedder(0), embedding.HashModel, embedding.HashDimension, 0)
	analyzer := tonesvc.NewAnalyzer(tonesvc.AnalysisContext{Store: s, Embedder: client}, tonesvc.Options{})
	svc := chatservice.NewService(s, analyzer, nil, nil)

	first, err := svc.ProcessMessage(context.Background(), chatservice.Inbound{SenderPhone: "+15550300", Text: "hey sis"})
	require.NoError(t, err)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, first.UserID
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocketConversation(t *testing.T) {
	srv, userID := setup(t)
	conn := dial(t, srv, userID)

	hello := read(t, conn)
	assert.Equal(t, "connected", hello.Type)
	assert.Equal(t, userID, hello.UserID)
	assert.JSONEq(t, `{"relationship":"sister"}`, string(hello.Data))

	require.NoError(t, conn.WriteJSON(Inbound{Type: "ping"}))
	assert.Equal(t, "pong", read(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Inbound{Type: "analyze", Text: "I miss you baby, kiss 😘"}))
	tone := read(t, conn)
	require.Equal(t, "tone", tone.Type)
	var analysis model.Analysis
	require.NoError(t, json.Unmarshal(tone.Data, &analysis))
	assert.Equal(t, model.Romantic, analysis.PrimaryTone)

	require.NoError(t, conn.WriteJSON(Inbound{Type: "text", Text: "thanks for yesterday"}))
	reply := read(t, conn)
	require.Equal(t, "reply", reply.Type)
	var got chatservice.Reply
	require.NoError(t, json.Unmarshal(reply.Data, &got))
	assert.Equal(t, userID, got.UserID)
	assert.NotEmpty(t, got.Text)
}

func TestWebSocketErrors(t *testing.T) {
	srv, userID := setup(t)
	conn := dial(t, srv, userID)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(Inbound{Type: "video"}))
	f := read(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, string(f.Data), "unsupported message type")

	require.NoError(t, conn.WriteJSON(Inbound{Type: "text"}))
	assert.Equal(t, "error", read(t, conn).Type)

	resp, err := http.Get(srv.URL + "/ws/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

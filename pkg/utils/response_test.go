package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Phone string  `json:"senderPhone" validate:"required"`
	Text  string  `json:"messageText" validate:"max=5"`
	Score float64 `json:"score" validate:"gte=0,lte=1"`
}

func TestDecodeJSON(t *testing.T) {
	var ok sample
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"senderPhone":"+1","messageText":"hi"}`))
	require.NoError(t, DecodeJSON(req, &ok))
	assert.Equal(t, "+1", ok.Phone)

	var bad sample
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"messageText":"too long","score":2}`))
	err := DecodeJSON(req, &bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "senderPhone is required")
	assert.Contains(t, err.Error(), "messageText must be at most 5")
	assert.Contains(t, err.Error(), "score is out of range")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.EqualError(t, DecodeJSON(req, &bad), "invalid request body")
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound, "user not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "user not found", body["error"])
}

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	SendSSEEvent(rec, rec, "tone", map[string]string{"tone": "casual"})
	SendSSEChunk(rec, rec, map[string]int{"n": 1})

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "event: tone\ndata: {\"tone\":\"casual\"}\n\ndata: {\"n\":1}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

package weaviate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store"
	"github.com/zhouzirui/z-tone/backend/internal/store/storetest"
)

func TestParseToneResponse(t *testing.T) {
	resp := &models.GraphQLResponse{Data: map[string]models.JSONObject{
		"Get": map[string]any{
			"ToneEmbedding": []any{
				map[string]any{
					"userId":        "u1",
					"tone":          "playful",
					"messageSample": "haha",
					"confidence":    0.9,
					"relationship":  "friend",
					"createdAt":     "2025-03-01T12:00:00Z",
					"_additional": map[string]any{
						"id":        "0195a3c0-0000-7000-8000-000000000001",
						"certainty": 0.93,
						"vector":    []any{1.0, 0.0},
					},
				},
				map[string]any{
					"userId": "u1",
					"tone":   "grumpy",
				},
			},
		},
	}}

	got, err := parseToneResponse(resp)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "0195a3c0-0000-7000-8000-000000000001", got[0].ID)
	assert.Equal(t, tone.Playful, got[0].Tone)
	assert.Equal(t, 0.93, got[0].Similarity)
	assert.Equal(t, []float32{1, 0}, got[0].ToneVector)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), got[0].CreatedAt)
}

func TestParseToneResponseErrors(t *testing.T) {
	_, err := parseToneResponse(&models.GraphQLResponse{Errors: []*models.GraphQLError{{Message: "boom"}}})
	assert.Error(t, err)

	_, err = parseToneResponse(nil)
	assert.Error(t, err)
}

func TestToneProperties(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 5, time.UTC)
	props := toneProperties(&tone.Embedding{UserID: "u1", Tone: tone.Caring, Relationship: "mother", CreatedAt: at})

	assert.Equal(t, "caring", props["tone"])
	assert.Equal(t, "mother", props["relationship"])
	assert.Equal(t, at.UnixMilli(), props["createdAtMs"])
	assert.Equal(t, "2025-03-01T12:00:00.000000005Z", props["createdAt"])
}

func TestBuildWhere(t *testing.T) {
	assert.Nil(t, buildWhere(store.Filter{}))
	assert.NotNil(t, buildWhere(store.Filter{UserID: "u1"}))
	assert.NotNil(t, buildWhere(store.Filter{UserID: "u1", Relationship: "friend", Since: time.Now()}))
}

// Runs against a live instance, e.g. WEAVIATE_URL=http://localhost:8080.
func TestWeaviateStoreLive(t *testing.T) {
	url := os.Getenv("WEAVIATE_URL")
	if url == "" {
		t.Skip("WEAVIATE_URL not set")
	}

	storetest.RunVectors(t, func(t *testing.T) store.VectorStore {
		s, err := New(context.Background(), Config{URL: url})
		require.NoError(t, err)
		for _, class := range []string{ToneClass, MessageClass} {
			_ = s.client.Schema().ClassDeleter().WithClassName(class).Do(context.Background())
		}
		require.NoError(t, s.EnsureSchema(context.Background()))
		return s
	})
}

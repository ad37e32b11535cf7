package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeed(t *testing.T) {
	st := memory.New()
	client := embedding.NewClient(embedding.NewHashEmbedder(0), embedding.HashModel, embedding.HashDimension, 0)
	recorder := tonesvc.NewRecorder(st, client)

	path := writeFile(t, `
- text: "Dear Sir, please review the contract"
  tone: business
  relationship: colleague
- text: "miss you babe"
  tone: romantic
  confidence: 0.95
`)
	n, err := seed(context.Background(), recorder, path, "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := st.ListToneEmbeddings(context.Background(), store.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "tester", stored[0].UserID)

	tones := map[model.Tone]bool{}
	for _, e := range stored {
		tones[e.Tone] = true
	}
	assert.True(t, tones[model.Business])
	assert.True(t, tones[model.Romantic])
}

func TestSeedRejectsUnknownTone(t *testing.T) {
	st := memory.New()
	client := embedding.NewClient(embedding.NewHashEmbedder(0), embedding.HashModel, embedding.HashDimension, 0)

	path := writeFile(t, "- text: hi\n  tone: sarcastic\n")
	_, err := seed(context.Background(), tonesvc.NewRecorder(st, client), path, "tester")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tone")
}

func TestLoadParamsDefault(t *testing.T) {
	params, err := loadParams("")
	require.NoError(t, err)
	assert.NoError(t, params.Validate())
}

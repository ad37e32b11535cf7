package firestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store"
	"github.com/zhouzirui/z-tone/backend/internal/store/storetest"
)

func TestToneDocRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &tone.Embedding{
		UserID:       "u1",
		ToneVector:   []float32{0.6, 0.8},
		Tone:         tone.Business,
		Confidence:   0.7,
		Relationship: "business",
		CreatedAt:    at,
	}

	d := newToneDoc(e)
	assert.Nil(t, d.Distance)
	assert.Equal(t, "business", d.Tone)

	dist := 0.2
	d.Distance = &dist
	got := d.scored("id-1")
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, tone.Business, got.Tone)
	assert.Equal(t, []float32{0.6, 0.8}, got.ToneVector)
	assert.InDelta(t, 0.9, got.Similarity, 1e-9)
}

func TestMapErrKeepsOtherErrors(t *testing.T) {
	err := context.DeadlineExceeded
	assert.ErrorIs(t, mapErr(err), context.DeadlineExceeded)
	assert.NotErrorIs(t, mapErr(err), store.ErrNotFound)
}

func TestFirestoreStoreEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		// a fresh project per subtest isolates collections on the emulator
		s, err := New(context.Background(), "ztone-test-"+store.NewID()[24:], "")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

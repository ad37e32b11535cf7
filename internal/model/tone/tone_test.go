package tone_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

func TestParse(t *testing.T) {
	for _, tn := range tone.All() {
		got, ok := tone.Parse(strings.ToUpper(tn.String()))
		require.True(t, ok)
		assert.Equal(t, tn, got)
	}

	got, ok := tone.Parse("sarcastic")
	assert.False(t, ok)
	assert.Equal(t, tone.Casual, got)
}

func TestArgmaxTieBreaksByEnumerationOrder(t *testing.T) {
	var s tone.Scores
	s[tone.Playful] = 0.4
	s[tone.Business] = 0.4

	best, score := s.Argmax()
	assert.Equal(t, tone.Playful, best)
	assert.InDelta(t, 0.4, score, 1e-12)

	var empty tone.Scores
	best, _ = empty.Argmax()
	assert.Equal(t, tone.Casual, best)
}

func TestScoresJSON(t *testing.T) {
	var s tone.Scores
	s[tone.Romantic] = 0.65
	s[tone.Serious] = 0.05

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"romantic":0.65`)

	var back tone.Scores
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)

	assert.Error(t, json.Unmarshal([]byte(`{"grumpy":1}`), &back))
}

func TestToneText(t *testing.T) {
	data, err := json.Marshal(struct {
		T tone.Tone `json:"t"`
	}{T: tone.Friendly})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"friendly"}`, string(data))
}

func TestSample(t *testing.T) {
	long := strings.Repeat("é", tone.MaxSampleRunes+20)
	assert.Len(t, []rune(tone.Sample(long)), tone.MaxSampleRunes)
	assert.Equal(t, "short", tone.Sample("short"))
}

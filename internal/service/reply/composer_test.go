package reply

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

func TestSelectIsStable(t *testing.T) {
	opts := []string{"x", "y", "z"}

	// FNV-1a-64("a") = 0xaf63dc4c8601ec8c, mod 3 = 1
	assert.Equal(t, "y", Select(opts, "a"))
	assert.Equal(t, "x", Select(opts, "c"))
	assert.Equal(t, Select(opts, "same key"), Select(opts, "same key"))
	assert.Equal(t, "Hello!", Select(nil, "a"))
}

func TestOptionsFallbacks(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, table[model.RelationshipFriend][model.Casual], table.Options("coworker", model.Romantic))
	assert.Equal(t, table[model.RelationshipBusiness][model.Casual], table.Options(model.RelationshipBusiness, model.Playful))
	assert.Equal(t, table[model.RelationshipSister][model.Caring], table.Options(model.RelationshipSister, model.Caring))
	assert.Equal(t, []string{"Hello!"}, Table{}.Options("friend", model.Casual))
}

func TestCompose(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewComposer(nil)
	c.now = func() time.Time { return now }

	in := Input{Text: "hello", UserID: "u1", Relationship: model.RelationshipFriend, Tone: model.Casual}
	assert.Equal(t, "What's up?", c.Compose(in))

	recent := []chat.Message{
		{Sender: chat.SenderBot, CreatedAt: now.Add(-9 * time.Minute)},
		{Sender: chat.SenderUser, CreatedAt: now.Add(-10 * time.Minute)},
	}

	q := Input{Text: "how are you?", UserID: "u1", Relationship: model.RelationshipFriend, Tone: model.Casual, Recent: recent}
	assert.Equal(t, "Hey there! What would you like to know?", c.Compose(q))

	thanks := Input{Text: "thanks a lot", UserID: "u1", Relationship: model.RelationshipFriend, Tone: model.Casual, Recent: recent}
	assert.Equal(t, "Happy to help!", c.Compose(thanks))

	stale := []chat.Message{{Sender: chat.SenderUser, CreatedAt: now.Add(-2 * time.Hour)}}
	q.Recent = stale
	assert.Equal(t, "How's it going?", c.Compose(q))
}

func TestEnhance(t *testing.T) {
	strong := &model.Scored{Embedding: model.Embedding{Tone: model.Playful, Confidence: 0.95}, Similarity: 0.85}

	assert.Equal(t, "Nice one 😄", Enhance("Nice one", strong))
	assert.Equal(t, "Already happy 😊", Enhance("Already happy 😊", strong))
	assert.Equal(t, "Nice one", Enhance("Nice one", nil))

	weak := *strong
	weak.Confidence = 0.9
	assert.Equal(t, "Nice one", Enhance("Nice one", &weak))

	far := *strong
	far.Similarity = 0.8
	assert.Equal(t, "Nice one", Enhance("Nice one", &far))

	caring := *strong
	caring.Tone = model.Caring
	assert.Equal(t, "Take care ❤️", Enhance("Take care", &caring))

	formal := *strong
	formal.Tone = model.Formal
	assert.Equal(t, "Noted.", Enhance("Noted.", &formal))
}

// Package reply 根据关系、语气与最近对话挑选预置回复。
package reply

import (
	"hash/fnv"
	"strings"
	"time"

	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

// ContinuationWindow is how recent the user's previous message must be for the
// reply to treat the exchange as ongoing.
const ContinuationWindow = time.Hour

// Pattern enhancement thresholds.
const (
	PatternMinSimilarity = 0.7
	patternStrongMatch   = 0.8
	patternHighConf      = 0.9
)

var enthusiasm = []string{"😊", "😄", "🤣", "❤️", "💕"}

// Input is everything the composer looks at.
type Input struct {
	Text         string
	UserID       string
	Relationship string
	Tone         model.Tone
	// Recent holds earlier messages of the user, newest first, without the current one.
	Recent []chat.Message
	// Pattern is the closest stored observation of the same user, if any.
	Pattern *model.Scored
}

// Composer builds canned replies.
type Composer struct {
	table Table
	now   func() time.Time
}

// NewComposer uses DefaultTable when table is nil.
func NewComposer(table Table) *Composer {
	if table == nil {
		table = DefaultTable()
	}
	return &Composer{table: table, now: time.Now}
}

// Compose picks a reply for in and applies the pattern enhancement.
func (c *Composer) Compose(in Input) string {
	options := c.table.Options(in.Relationship, in.Tone)

	if c.isContinuation(in.Recent) {
		switch {
		case strings.Contains(in.Text, "?"):
			options = []string{options[0] + questionSuffix}
		case strings.Contains(strings.ToLower(in.Text), "thanks"):
			options = welcomeReplies
		}
	}

	text := Select(options, in.Text+"\x00"+in.UserID)
	return Enhance(text, in.Pattern)
}

func (c *Composer) isContinuation(recent []chat.Message) bool {
	for _, m := range recent {
		if m.Sender != chat.SenderUser {
			continue
		}
		return !m.CreatedAt.IsZero() && c.now().Sub(m.CreatedAt) < ContinuationWindow
	}
	return false
}

// Select deterministically picks options[FNV-1a-64(key) mod len(options)].
// The result depends only on key and the option order.
func Select(options []string, key string) string {
	if len(options) == 0 {
		return fallbackReply[0]
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return options[h.Sum64()%uint64(len(options))]
}

// Enhance appends an emoji matching a strong, confident past pattern unless the reply
// already carries one.
func Enhance(text string, pattern *model.Scored) string {
	if pattern == nil || pattern.Similarity <= patternStrongMatch || pattern.Confidence <= patternHighConf {
		return text
	}
	for _, e := range enthusiasm {
		if strings.Contains(text, e) {
			return text
		}
	}
	switch pattern.Tone {
	case model.Playful:
		return text + " 😄"
	case model.Caring:
		return text + " ❤️"
	case model.Casual:
		return text + " 😊"
	}
	return text
}

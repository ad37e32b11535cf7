package chat

import "github.com/zhouzirui/z-tone/backend/internal/model/user"

// StateActive is the only conversation state the agent reports today.
const StateActive = "active"

// Context bundles a user's profile with recent conversation turns, newest first.
type Context struct {
	ConversationID string       `json:"conversationId"`
	User           user.Profile `json:"userProfile"`
	Messages       []Message    `json:"messages"`
	State          string       `json:"state"`
}

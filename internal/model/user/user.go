package user

import "time"

// Profile 描述一个通过手机号识别的对话用户。
type Profile struct {
	ID               string    `json:"userId"`
	PhoneNumber      string    `json:"phoneNumber"`
	Name             string    `json:"name"`
	Relationship     string    `json:"relationship"`
	PrimaryTone      string    `json:"primaryTone,omitempty"`
	InteractionCount int       `json:"interactionCount"`
	LastInteraction  time.Time `json:"lastInteraction,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DefaultName is used when the sender did not share a display name.
const DefaultName = "Unknown User"

package models

import "time"

// Message is one entry in a chat transcript. Text stays mutable while the
// streaming flag is set and is frozen once the turn finalizes.

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Files     []UploadedFile `json:"files,omitempty"`
	Streaming bool           `json:"streaming"`
	CreatedAt time.Time      `json:"created_at"`
}

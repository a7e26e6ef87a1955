package models

import (
	"github.com/google/uuid"
)

// Conversation is one chat thread owned by a user. TotalTokens is the
// running session token counter the routing engine consults.
type Conversation struct {
	BaseModel
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Title       string    `json:"title"`
	Platform    string    `gorm:"size:16" json:"platform"`
	TotalTokens int       `gorm:"default:0" json:"total_tokens"`
}

// ChatMessage is one persisted turn. The user message is written before
// the response stream starts; the assistant message after it completes.
type ChatMessage struct {
	BaseModel
	ConversationID uuid.UUID `gorm:"type:uuid;index;not null" json:"conversation_id"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text" json:"content"`
	TokenCount     int       `json:"token_count"`
	ModelUsed      string    `gorm:"size:64" json:"model_used,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
}

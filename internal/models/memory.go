package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserMemory is one durable summary extracted from a conversation window.
// The (conversation_id, source_window_end_at) pair is the upsert key so a
// re-run over the same window never duplicates rows.
type UserMemory struct {
	BaseModel
	UserID            uuid.UUID      `gorm:"type:uuid;index;not null" json:"user_id"`
	ConversationID    *uuid.UUID     `gorm:"type:uuid;uniqueIndex:idx_memory_window" json:"conversation_id,omitempty"`
	SourceWindowEndAt time.Time      `gorm:"uniqueIndex:idx_memory_window;not null" json:"source_window_end_at"`
	SummaryText       string         `gorm:"type:text;not null" json:"summary_text"`
	Tags              datatypes.JSON `json:"tags"`
}

// ConversationMemoryState tracks how far summarization has progressed for
// one conversation, used to debounce the summarizer.
type ConversationMemoryState struct {
	ConversationID               uuid.UUID  `gorm:"type:uuid;primary_key" json:"conversation_id"`
	UserID                       uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	LastSummarizedAt             *time.Time `json:"last_summarized_at,omitempty"`
	LastSummarizedMessageCreated *time.Time `json:"last_summarized_message_created_at,omitempty"`
	LastSummarizedTotalTokens    int        `json:"last_summarized_total_tokens"`
	UpdatedAt                    time.Time  `json:"updated_at"`
}

package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prismgw/prism/internal/models"
)

// Ownership is the result of verifying a conversation against its caller.
type Ownership struct {
	Exists      bool
	Owned       bool
	TotalTokens int
}

// MessageRecord is one message write. Persistence is fire-and-forget from
// the handler's perspective; failures must never interrupt streaming.
type MessageRecord struct {
	ConversationID uuid.UUID
	Role           string
	Content        string
	TokenCount     int
	ModelUsed      string
	ImageURL       string
}

// Store is the conversation persistence surface the gateway consumes.
type Store interface {
	VerifyOwnership(ctx context.Context, conversationID, userID uuid.UUID) (Ownership, error)
	IncrementTokens(ctx context.Context, conversationID uuid.UUID, delta int) error
	RecordMessage(ctx context.Context, rec MessageRecord) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) VerifyOwnership(ctx context.Context, conversationID, userID uuid.UUID) (Ownership, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Select("id", "user_id", "total_tokens").
		First(&conv, "id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Ownership{}, nil
	}
	if err != nil {
		return Ownership{}, fmt.Errorf("failed to load conversation: %w", err)
	}

	return Ownership{
		Exists:      true,
		Owned:       conv.UserID == userID,
		TotalTokens: conv.TotalTokens,
	}, nil
}

func (s *gormStore) IncrementTokens(ctx context.Context, conversationID uuid.UUID, delta int) error {
	return s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumn("total_tokens", gorm.Expr("total_tokens + ?", delta)).Error
}

func (s *gormStore) RecordMessage(ctx context.Context, rec MessageRecord) error {
	msg := models.ChatMessage{
		ConversationID: rec.ConversationID,
		Role:           rec.Role,
		Content:        rec.Content,
		TokenCount:     rec.TokenCount,
		ModelUsed:      rec.ModelUsed,
		ImageURL:       rec.ImageURL,
	}
	return s.db.WithContext(ctx).Create(&msg).Error
}

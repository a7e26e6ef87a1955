package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prismgw/prism/internal/models"
)

// Store is the long-term memory persistence surface. Writes are
// at-least-once: upserts on the natural keys keep retries idempotent.
type Store interface {
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.UserMemory, error)
	UpsertMemory(ctx context.Context, row *models.UserMemory) error
	GetState(ctx context.Context, conversationID uuid.UUID) (*models.ConversationMemoryState, error)
	UpsertState(ctx context.Context, row *models.ConversationMemoryState) error
	ListMessagesSince(ctx context.Context, conversationID uuid.UUID, since *time.Time, limit int) ([]models.ChatMessage, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.UserMemory, error) {
	var rows []models.UserMemory
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *gormStore) UpsertMemory(ctx context.Context, row *models.UserMemory) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}, {Name: "source_window_end_at"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"summary_text", "tags", "updated_at",
		}),
	}).Create(row).Error
}

func (s *gormStore) GetState(ctx context.Context, conversationID uuid.UUID) (*models.ConversationMemoryState, error) {
	var state models.ConversationMemoryState
	err := s.db.WithContext(ctx).First(&state, "conversation_id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *gormStore) UpsertState(ctx context.Context, row *models.ConversationMemoryState) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_summarized_at", "last_summarized_message_created",
			"last_summarized_total_tokens", "updated_at",
		}),
	}).Create(row).Error
}

func (s *gormStore) ListMessagesSince(ctx context.Context, conversationID uuid.UUID, since *time.Time, limit int) ([]models.ChatMessage, error) {
	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	var rows []models.ChatMessage
	err := q.Order("created_at ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

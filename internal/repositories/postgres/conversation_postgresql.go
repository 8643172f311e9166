package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/repositories"
)

type ConversationPostgreSQL struct {
	db *gorm.DB
}

func NewConversationPostgreSQL(db *gorm.DB) repositories.ConversationRepository {
	return &ConversationPostgreSQL{db: db}
}

// RecentAssistantMessages returns the newest assistant messages first. Used
// only by the legacy completion fallback, always outside any row lock.
func (c *ConversationPostgreSQL) RecentAssistantMessages(ctx context.Context, attemptID uint, limit int) ([]*models.ConversationMessage, error) {
	var messages []*models.ConversationMessage
	if err := c.db.WithContext(ctx).
		Where("attempt_id = ? AND role = ?", attemptID, models.ConversationRoleAssistant).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to get conversation messages: %w", err)
	}
	return messages, nil
}

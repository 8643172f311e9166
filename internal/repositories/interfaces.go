package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlearn-io/quiz-attempt-service/internal/models"
)

// AttemptRepository owns the quiz_attempts table. The tx parameter carries an
// open transaction; nil means the repository's own connection.
type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)

	// GetByIDForUpdate reads the row under an exclusive lock (SELECT ... FOR
	// UPDATE). Only valid inside WithTransaction.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)

	Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error

	// GetActiveAttempt returns the user's incomplete attempt for the quiz, if any.
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.QuizAttempt, error)
	CountByQuizAndUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int64, error)

	// GetCompletedScored returns completed attempts with a non-null partial
	// credit score, ordered by started_at ascending (insertion order).
	GetCompletedScored(ctx context.Context, tx *gorm.DB, quizID uint, userID string) ([]*models.QuizAttempt, error)

	ListByQuizAndUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) ([]*models.QuizAttempt, error)
}

// QuizRepository is read-only from the attempt engine's perspective.
type QuizRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
}

// ConversationRepository reads the grading collaborator's message log for the
// legacy completion fallback.
type ConversationRepository interface {
	RecentAssistantMessages(ctx context.Context, attemptID uint, limit int) ([]*models.ConversationMessage, error)
}

package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openlearn-io/quiz-attempt-service/internal/cache"
	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	// Cache plain reads only; locked reads must always hit the database
	cacheKey := fmt.Sprintf("attempt:%d", id)
	var attempt models.QuizAttempt

	err := a.cacheManager.Fast.CacheOrExecute(ctx, cacheKey, &attempt, cache.FastCacheConfig.TTL, func() (interface{}, error) {
		var dbAttempt models.QuizAttempt
		if err := db.WithContext(ctx).First(&dbAttempt, id).Error; err != nil {
			return nil, err
		}
		return &dbAttempt, nil
	})
	if err != nil {
		return nil, err
	}

	return &attempt, nil
}

// GetByIDForUpdate acquires the row lock that serializes all mutating
// operations on one attempt. Must run inside a transaction.
func (a *AttemptPostgreSQL) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return err
	}

	a.invalidate(ctx, attempt.ID)
	return nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Where("quiz_id = ? AND user_id = ? AND completed_at IS NULL", quizID, userID).
		Order("started_at DESC").
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountByQuizAndUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int64, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (a *AttemptPostgreSQL) GetCompletedScored(ctx context.Context, tx *gorm.DB, quizID uint, userID string) ([]*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	if err := db.WithContext(ctx).
		Where("quiz_id = ? AND user_id = ? AND completed_at IS NOT NULL AND partial_credit_percentage IS NOT NULL", quizID, userID).
		Order("started_at ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get completed attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) ListByQuizAndUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) ([]*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	if err := db.WithContext(ctx).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Order("started_at DESC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) invalidate(ctx context.Context, id uint) {
	_ = a.cacheManager.Fast.Delete(ctx, fmt.Sprintf("attempt:%d", id))
}

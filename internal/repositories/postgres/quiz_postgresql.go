package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/openlearn-io/quiz-attempt-service/internal/cache"
	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/repositories"
)

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var quiz models.Quiz

	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).First(&dbQuiz, id).Error; err != nil {
			return nil, err
		}
		return &dbQuiz, nil
	})
	if err != nil {
		return nil, err
	}

	return &quiz, nil
}

package pkg

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openlearn-io/quiz-attempt-service/internal/config"
	"github.com/openlearn-io/quiz-attempt-service/internal/models"
)

// InitDatabase opens the Postgres connection, tunes the pool, and migrates
// the schema.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormLogLevel := logger.Warn
	if cfg.Environment == "development" {
		gormLogLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(
		&models.Quiz{},
		&models.QuizAttempt{},
		&models.ConversationMessage{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	slog.Info("Database initialized")
	return db, nil
}

package services

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/openlearn-io/quiz-attempt-service/internal/events"
	"github.com/openlearn-io/quiz-attempt-service/internal/repositories"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

// DefaultServiceManager wires the services over one repository and publisher.
type DefaultServiceManager struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger

	attempt AttemptService
	timing  TimingService
	result  ResultService
	grading GradingService
}

// ServiceConfig holds everything the services need.
type ServiceConfig struct {
	DB         *gorm.DB
	Repository repositories.Repository
	Logger     *slog.Logger
	Validator  *validator.Validator
	Publisher  events.EventPublisher

	// GapMinimum is the smallest absence charged by gap reconciliation.
	GapMinimum time.Duration
}

func NewServiceManager(cfg ServiceConfig) ServiceManager {
	sm := &DefaultServiceManager{
		repo:      cfg.Repository,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}
	sm.attempt = NewAttemptService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator, cfg.Publisher)
	sm.timing = NewTimingService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator, cfg.GapMinimum)
	sm.result = NewResultService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator)
	sm.grading = NewGradingService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator, cfg.Publisher)
	return sm
}

func (sm *DefaultServiceManager) Attempt() AttemptService {
	return sm.attempt
}

func (sm *DefaultServiceManager) Timing() TimingService {
	return sm.timing
}

func (sm *DefaultServiceManager) Result() ResultService {
	return sm.result
}

func (sm *DefaultServiceManager) Grading() GradingService {
	return sm.grading
}

func (sm *DefaultServiceManager) HealthCheck(ctx context.Context) error {
	return sm.repo.Ping(ctx)
}

func (sm *DefaultServiceManager) Shutdown(ctx context.Context) error {
	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}
	return nil
}

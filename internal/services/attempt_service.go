package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openlearn-io/quiz-attempt-service/internal/events"
	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/repositories"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

// attemptService guards attempt creation (tenant, concurrency, cap, publish
// state) and serves attempt reads.
type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// Create runs the eligibility checks in order: tenant, existing incomplete
// attempt, attempt cap, quiz publish state. Instructors skip everything after
// the tenant check. Refusals are successful responses, not errors.
func (s *attemptService) Create(ctx context.Context, req *CreateAttemptRequest, actor models.Actor) (*CreateAttemptResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	quiz, err := s.repo.Quiz().GetByID(ctx, nil, req.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", req.QuizID, err)
	}

	// Tenant check applies to every role. A cross-classroom quiz ID is a bug
	// or a probe either way.
	if quiz.ClassroomID != actor.ClassroomID {
		s.logger.Warn("Tenant mismatch on attempt creation",
			"quiz_id", quiz.ID, "quiz_classroom", quiz.ClassroomID,
			"user_id", actor.UserID, "actor_classroom", actor.ClassroomID)
		return nil, ErrTenantMismatch
	}

	if !actor.Role.IsPrivileged() {
		active, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, quiz.ID, actor.UserID)
		if err != nil && !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to check active attempt: %w", err)
		}
		if active != nil {
			return &CreateAttemptResult{
				Reason:            RefusalIncompleteExists,
				ExistingAttemptID: active.ID,
				CanResume:         true,
			}, nil
		}

		if quiz.MaxAttempts > 0 {
			count, err := s.repo.Attempt().CountByQuizAndUser(ctx, nil, quiz.ID, actor.UserID)
			if err != nil {
				return nil, fmt.Errorf("failed to count attempts: %w", err)
			}
			if count >= int64(quiz.MaxAttempts) {
				return &CreateAttemptResult{Reason: RefusalMaxAttempts}, nil
			}
		}

		if quiz.Status != models.QuizPublished {
			return &CreateAttemptResult{Reason: RefusalNotPublished}, nil
		}
	}

	attempt := &models.QuizAttempt{
		QuizID:          quiz.ID,
		UserID:          actor.UserID,
		Status:          models.AttemptInProgress,
		StartedAt:       time.Now(),
		QuestionResults: datatypes.JSON("[]"),
	}
	if err := s.repo.Attempt().Create(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("Attempt created",
		"attempt_id", attempt.ID, "quiz_id", quiz.ID,
		"user_id", actor.UserID, "role", actor.Role)
	s.publishCreated(ctx, attempt)

	return &CreateAttemptResult{Success: true, AttemptID: attempt.ID}, nil
}

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, actor models.Actor) (*models.QuizAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}

	if !actor.Role.IsPrivileged() && attempt.UserID != actor.UserID {
		return nil, NewPermissionError(actor.UserID, attemptID, "attempt", "read", "attempt belongs to another user")
	}

	return attempt, nil
}

func (s *attemptService) ListByQuizAndUser(ctx context.Context, quizID uint, userID string) ([]*models.QuizAttempt, error) {
	attempts, err := s.repo.Attempt().ListByQuizAndUser(ctx, nil, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for quiz %d: %w", quizID, err)
	}
	return attempts, nil
}

func (s *attemptService) publishCreated(ctx context.Context, attempt *models.QuizAttempt) {
	if s.publisher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.AttemptCreated,
		Source:    events.EventSource,
		Version:   events.EventVersion,
		Timestamp: time.Now(),
		Data: events.AttemptEventData{
			AttemptID: attempt.ID,
			QuizID:    attempt.QuizID,
			UserID:    attempt.UserID,
		},
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish attempt created event", "attempt_id", attempt.ID, "error", err)
	}
}

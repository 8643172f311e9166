package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/repositories"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

// emojiForKey maps the grading collaborator's outcome keys to display emoji.
// Unknown keys pass through unchanged so a collaborator can send a literal
// emoji directly.
var emojiForKey = map[string]string{
	"correct_first_try": "🎯",
	"correct":           "✅",
	"partial":           "🤏",
	"incorrect":         "❌",
	"retry":             "🔁",
}

// resultService owns the progressive per-question ledger stored in the
// attempt's JSONB column. Entries are unique by question number; a resubmit
// replaces the earlier entry wholesale.
type resultService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	now       func() time.Time
}

func NewResultService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator) ResultService {
	return &resultService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		now:       time.Now,
	}
}

func (s *resultService) AppendQuestionResult(ctx context.Context, attemptID uint, req *SubmitQuestionResultRequest) (*AppendResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	emoji := req.EmojiKey
	if mapped, ok := emojiForKey[req.EmojiKey]; ok {
		emoji = mapped
	}

	var out *AppendResult
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt, err := txRepo.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to lock attempt %d: %w", attemptID, err)
		}

		if attempt.IsCompleted() {
			out = &AppendResult{Skipped: SkipCompleted}
			return nil
		}

		results, err := attempt.Results()
		if err != nil {
			return err
		}

		entry := models.QuestionResult{
			QuestionNum:       req.QuestionNum,
			Attempts:          req.Attempts,
			EventuallyCorrect: req.EventuallyCorrect,
			CreditEarned:      req.CreditEarned,
			Emoji:             emoji,
			RecordedAt:        s.now(),
		}

		replaced := false
		for i := range results {
			if results[i].QuestionNum == req.QuestionNum {
				results[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			results = append(results, entry)
		}
		sort.Slice(results, func(i, j int) bool {
			return results[i].QuestionNum < results[j].QuestionNum
		})

		if err := attempt.SetResults(results); err != nil {
			return err
		}
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to store result for attempt %d: %w", attemptID, err)
		}

		s.logger.Debug("Question result recorded",
			"attempt_id", attemptID, "question_num", req.QuestionNum,
			"replaced", replaced, "credit", req.CreditEarned)
		out = &AppendResult{Entry: &entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *resultService) GetQuestionResults(ctx context.Context, attemptID uint) ([]models.QuestionResult, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}
	return attempt.Results()
}

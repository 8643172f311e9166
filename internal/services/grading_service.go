package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/openlearn-io/quiz-attempt-service/internal/events"
	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/repositories"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

// conversationLookback bounds how many recent assistant messages the legacy
// completion fallback scans.
const conversationLookback = 10

// gradingService derives attempt percentages, finalizes attempts, and
// aggregates quiz-level scores across attempts.
type gradingService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	now       func() time.Time
}

func NewGradingService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) GradingService {
	return &gradingService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
		now:       time.Now,
	}
}

// CalculatePercentagesFromResults derives the two completion scores from the
// ledger. Partial credit is the mean of credit_earned; first-attempt is the
// share of questions solved correctly on the first try. An empty ledger
// yields nil scores, never zeros.
func (s *gradingService) CalculatePercentagesFromResults(results []models.QuestionResult) Percentages {
	if len(results) == 0 {
		return Percentages{}
	}

	var creditSum float64
	firstCorrect := 0
	for _, r := range results {
		creditSum += r.CreditEarned
		if r.FirstAttemptCorrect() {
			firstCorrect++
		}
	}

	partial := round1(creditSum / float64(len(results)))
	first := round1(100 * float64(firstCorrect) / float64(len(results)))
	return Percentages{PartialCredit: &partial, FirstAttempt: &first}
}

// CompleteAttempt seals the attempt: merge any final duration report, derive
// percentages (ledger first, legacy conversation payload as fallback), and
// stamp completed_at in one update. Repeat calls return the sealed scores
// unchanged, applying only the duration delta.
func (s *gradingService) CompleteAttempt(ctx context.Context, attemptID uint, metrics *DurationMetrics) (*CompletionResult, error) {
	// Pre-read outside the lock to decide whether the conversation fallback
	// is needed. The ledger only grows, so a result appended between this
	// read and the locked one simply makes the fallback unnecessary.
	preview, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}

	var fallback *Percentages
	if !preview.IsCompleted() {
		previewResults, err := preview.Results()
		if err != nil {
			return nil, err
		}
		if len(previewResults) == 0 {
			fallback, err = s.conversationPercentages(ctx, attemptID)
			if err != nil {
				return nil, err
			}
		}
	}

	var result *CompletionResult
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt, err := txRepo.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to lock attempt %d: %w", attemptID, err)
		}

		changed := false
		if metrics != nil {
			changed = mergeDurations(attempt, *metrics)
		}

		// Idempotency guard: a sealed attempt keeps its scores forever.
		if attempt.IsCompleted() && attempt.PartialCreditPercentage != nil && attempt.FirstAttemptPercentage != nil {
			if changed {
				if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
					return fmt.Errorf("failed to apply duration delta for attempt %d: %w", attemptID, err)
				}
			}
			result = completionResultOf(attempt, true)
			return nil
		}

		results, err := attempt.Results()
		if err != nil {
			return err
		}

		var p Percentages
		switch {
		case len(results) > 0:
			p = s.CalculatePercentagesFromResults(results)
		case fallback != nil:
			p = *fallback
		default:
			return ErrMissingCompletionData
		}

		completedAt := s.now()
		attempt.CompletedAt = &completedAt
		attempt.Status = models.AttemptCompleted
		attempt.PartialCreditPercentage = p.PartialCredit
		attempt.FirstAttemptPercentage = p.FirstAttempt
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to finalize attempt %d: %w", attemptID, err)
		}

		result = completionResultOf(attempt, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyCompleted {
		s.logger.Info("Attempt completed",
			"attempt_id", result.AttemptID,
			"partial_credit", result.PartialCreditPercentage,
			"first_attempt", result.FirstAttemptPercentage)
		s.publishCompleted(ctx, preview, result)
	}
	return result, nil
}

// CalculateQuizScore selects the counting attempt per the quiz's grading
// strategy across the user's completed, scored attempts.
func (s *gradingService) CalculateQuizScore(ctx context.Context, quizID uint, userID string) (*QuizScoreResult, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", quizID, err)
	}

	attempts, err := s.repo.Attempt().GetCompletedScored(ctx, nil, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scored attempts for quiz %d: %w", quizID, err)
	}

	out := &QuizScoreResult{
		QuizID:    quizID,
		UserID:    userID,
		Strategy:  quiz.GradingStrategy,
		AllScores: make([]AttemptScore, 0, len(attempts)),
	}
	for _, a := range attempts {
		out.AllScores = append(out.AllScores, AttemptScore{
			AttemptID:   a.ID,
			Score:       *a.PartialCreditPercentage,
			StartedAt:   a.StartedAt,
			CompletedAt: a.CompletedAt,
		})
	}
	if len(attempts) == 0 {
		return out, nil
	}

	counting := attempts[0]
	switch quiz.GradingStrategy {
	case models.GradingMostRecent:
		for _, a := range attempts[1:] {
			if a.CompletedAt != nil && counting.CompletedAt != nil && a.CompletedAt.After(*counting.CompletedAt) {
				counting = a
			}
		}
	case models.GradingFirst:
		// attempts are ordered by started_at ascending
	default:
		// highest, ties broken by insertion order
		for _, a := range attempts[1:] {
			if *a.PartialCreditPercentage > *counting.PartialCreditPercentage {
				counting = a
			}
		}
	}

	score := *counting.PartialCreditPercentage
	out.Score = &score
	out.CountingAttemptID = counting.ID
	return out, nil
}

// ExportQuizScores renders a user's per-attempt scores and the strategy
// outcome as an XLSX workbook for instructor download.
func (s *gradingService) ExportQuizScores(ctx context.Context, quizID uint, userID string) (*excelize.File, error) {
	scores, err := s.CalculateQuizScore(ctx, quizID, userID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Scores"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Attempt ID", "Score (%)", "Started At", "Completed At", "Counting"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for row, a := range scores.AllScores {
		values := []interface{}{
			a.AttemptID,
			a.Score,
			a.StartedAt.Format(time.RFC3339),
			"",
			"",
		}
		if a.CompletedAt != nil {
			values[3] = a.CompletedAt.Format(time.RFC3339)
		}
		if a.AttemptID == scores.CountingAttemptID {
			values[4] = "yes"
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	summaryRow := len(scores.AllScores) + 3
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "Strategy")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow), string(scores.Strategy))
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow+1), "Final Score")
	if scores.Score != nil {
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow+1), *scores.Score)
	} else {
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow+1), "n/a")
	}

	return f, nil
}

// completionPayload is the structured message the legacy grading collaborator
// emitted instead of writing the ledger.
type completionPayload struct {
	QuizComplete            bool     `json:"quiz_complete"`
	PartialCreditPercentage *float64 `json:"partial_credit_percentage"`
	FirstAttemptPercentage  *float64 `json:"first_attempt_percentage"`
}

// conversationPercentages scans recent assistant messages for a completion
// payload. Returns nil when no payload exists; the caller decides whether
// that is fatal.
func (s *gradingService) conversationPercentages(ctx context.Context, attemptID uint) (*Percentages, error) {
	messages, err := s.repo.Conversation().RecentAssistantMessages(ctx, attemptID, conversationLookback)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation for attempt %d: %w", attemptID, err)
	}

	for _, msg := range messages {
		payload, ok := parseCompletionPayload(msg.Content)
		if !ok {
			continue
		}
		partial := clampPercent(payload.PartialCreditPercentage)
		first := clampPercent(payload.FirstAttemptPercentage)
		s.logger.Info("Using legacy conversation completion payload",
			"attempt_id", attemptID, "message_id", msg.ID,
			"partial_credit", partial, "first_attempt", first)
		return &Percentages{PartialCredit: &partial, FirstAttempt: &first}, nil
	}
	return nil, nil
}

// parseCompletionPayload extracts a quiz_complete JSON object from message
// content, which may carry surrounding prose.
func parseCompletionPayload(content string) (*completionPayload, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var payload completionPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, false
	}
	if !payload.QuizComplete {
		return nil, false
	}
	return &payload, true
}

func clampPercent(v *float64) float64 {
	if v == nil {
		return 0
	}
	return math.Min(100, math.Max(0, *v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func completionResultOf(attempt *models.QuizAttempt, replay bool) *CompletionResult {
	out := &CompletionResult{
		AttemptID:           attempt.ID,
		TotalDurationMs:     attempt.TotalDurationMs,
		UnfocusedDurationMs: attempt.UnfocusedDurationMs,
		AlreadyCompleted:    replay,
	}
	if attempt.PartialCreditPercentage != nil {
		out.PartialCreditPercentage = *attempt.PartialCreditPercentage
	}
	if attempt.FirstAttemptPercentage != nil {
		out.FirstAttemptPercentage = *attempt.FirstAttemptPercentage
	}
	return out
}

func (s *gradingService) publishCompleted(ctx context.Context, attempt *models.QuizAttempt, result *CompletionResult) {
	if s.publisher == nil {
		return
	}
	partial := result.PartialCreditPercentage
	first := result.FirstAttemptPercentage
	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.AttemptCompleted,
		Source:    events.EventSource,
		Version:   events.EventVersion,
		Timestamp: time.Now(),
		Data: events.AttemptEventData{
			AttemptID:               result.AttemptID,
			QuizID:                  attempt.QuizID,
			UserID:                  attempt.UserID,
			PartialCreditPercentage: &partial,
			FirstAttemptPercentage:  &first,
		},
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish attempt completed event", "attempt_id", result.AttemptID, "error", err)
	}
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/openlearn-io/quiz-attempt-service/internal/events"
	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

func newGradingForTest(repo *mockRepository, publisher events.EventPublisher) *gradingService {
	return &gradingService{
		repo:      repo,
		logger:    newTestLogger(),
		validator: validator.New(),
		publisher: publisher,
		now:       time.Now,
	}
}

func TestGradingService_CalculatePercentagesFromResults(t *testing.T) {
	svc := newGradingForTest(newMockRepository(), nil)

	t.Run("mean credit and first-attempt share", func(t *testing.T) {
		results := []models.QuestionResult{
			{QuestionNum: 1, Attempts: 1, EventuallyCorrect: true, CreditEarned: 100},
			{QuestionNum: 2, Attempts: 3, EventuallyCorrect: true, CreditEarned: 40},
		}
		p := svc.CalculatePercentagesFromResults(results)
		if p.PartialCredit == nil || *p.PartialCredit != 70.0 {
			t.Errorf("Expected partial 70.0, got %v", p.PartialCredit)
		}
		if p.FirstAttempt == nil || *p.FirstAttempt != 50.0 {
			t.Errorf("Expected first-attempt 50.0, got %v", p.FirstAttempt)
		}
	})

	t.Run("empty ledger yields nil, not zero", func(t *testing.T) {
		p := svc.CalculatePercentagesFromResults(nil)
		if p.PartialCredit != nil || p.FirstAttempt != nil {
			t.Errorf("Expected nil percentages, got %v/%v", p.PartialCredit, p.FirstAttempt)
		}
	})

	t.Run("rounds to one decimal place", func(t *testing.T) {
		results := []models.QuestionResult{
			{QuestionNum: 1, Attempts: 1, EventuallyCorrect: true, CreditEarned: 100},
			{QuestionNum: 2, Attempts: 2, EventuallyCorrect: false, CreditEarned: 0},
			{QuestionNum: 3, Attempts: 2, EventuallyCorrect: false, CreditEarned: 0},
		}
		p := svc.CalculatePercentagesFromResults(results)
		if *p.PartialCredit != 33.3 {
			t.Errorf("Expected partial 33.3, got %v", *p.PartialCredit)
		}
	})
}

func TestGradingService_CompleteAttempt(t *testing.T) {
	ctx := context.Background()

	seedWithLedger := func(repo *mockRepository) {
		attempt := models.QuizAttempt{
			ID: 1, QuizID: 1, UserID: "student-1",
			Status: models.AttemptInProgress, StartedAt: time.Now().Add(-5 * time.Minute),
			TotalDurationMs: 240000, UnfocusedDurationMs: 12000,
		}
		_ = attempt.SetResults([]models.QuestionResult{
			{QuestionNum: 1, Attempts: 1, EventuallyCorrect: true, CreditEarned: 100},
			{QuestionNum: 2, Attempts: 3, EventuallyCorrect: true, CreditEarned: 40},
		})
		repo.attempts.seed(attempt)
	}

	t.Run("derives percentages from ledger and seals", func(t *testing.T) {
		repo := newMockRepository()
		seedWithLedger(repo)
		publisher := events.NewMockEventPublisher(newTestLogger())
		svc := newGradingForTest(repo, publisher)

		result, err := svc.CompleteAttempt(ctx, 1, nil)
		if err != nil {
			t.Fatalf("CompleteAttempt failed: %v", err)
		}
		if result.AlreadyCompleted {
			t.Error("First completion flagged as replay")
		}
		if result.PartialCreditPercentage != 70.0 || result.FirstAttemptPercentage != 50.0 {
			t.Errorf("Expected 70.0/50.0, got %v/%v",
				result.PartialCreditPercentage, result.FirstAttemptPercentage)
		}

		stored, _ := repo.attempts.GetByID(ctx, nil, 1)
		if stored.CompletedAt == nil || stored.Status != models.AttemptCompleted {
			t.Error("Attempt not sealed")
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.AttemptCompleted {
			t.Errorf("Expected one %s event, got %+v", events.AttemptCompleted, published)
		}
	})

	t.Run("repeat completion returns sealed scores unchanged", func(t *testing.T) {
		repo := newMockRepository()
		seedWithLedger(repo)
		publisher := events.NewMockEventPublisher(newTestLogger())
		svc := newGradingForTest(repo, publisher)

		first, err := svc.CompleteAttempt(ctx, 1, nil)
		if err != nil {
			t.Fatalf("First completion failed: %v", err)
		}

		// Replay with a larger duration report: the delta lands, the scores don't move.
		second, err := svc.CompleteAttempt(ctx, 1, &DurationMetrics{TotalMs: float64Ptr(300000)})
		if err != nil {
			t.Fatalf("Replay failed: %v", err)
		}
		if !second.AlreadyCompleted {
			t.Error("Replay not flagged")
		}
		if second.PartialCreditPercentage != first.PartialCreditPercentage ||
			second.FirstAttemptPercentage != first.FirstAttemptPercentage {
			t.Errorf("Scores changed on replay: %v/%v vs %v/%v",
				second.PartialCreditPercentage, second.FirstAttemptPercentage,
				first.PartialCreditPercentage, first.FirstAttemptPercentage)
		}
		if second.TotalDurationMs != 300000 {
			t.Errorf("Duration delta not applied: %d", second.TotalDurationMs)
		}

		if got := len(publisher.GetPublishedEvents()); got != 1 {
			t.Errorf("Replay must not publish again, got %d events", got)
		}
	})

	t.Run("empty ledger falls back to conversation payload", func(t *testing.T) {
		repo := newMockRepository()
		repo.attempts.seed(models.QuizAttempt{
			ID: 1, QuizID: 1, UserID: "student-1",
			Status: models.AttemptInProgress, StartedAt: time.Now().Add(-5 * time.Minute),
		})
		repo.conversations.seed(models.ConversationMessage{
			ID: 10, AttemptID: 1, Role: models.ConversationRoleAssistant,
			Content:   `Great work! {"quiz_complete": true, "partial_credit_percentage": 85.5, "first_attempt_percentage": 60} See you next time.`,
			CreatedAt: time.Now(),
		})
		svc := newGradingForTest(repo, nil)

		result, err := svc.CompleteAttempt(ctx, 1, nil)
		if err != nil {
			t.Fatalf("CompleteAttempt failed: %v", err)
		}
		if result.PartialCreditPercentage != 85.5 || result.FirstAttemptPercentage != 60 {
			t.Errorf("Expected 85.5/60, got %v/%v",
				result.PartialCreditPercentage, result.FirstAttemptPercentage)
		}
	})

	t.Run("fallback clamps out-of-range payload values", func(t *testing.T) {
		repo := newMockRepository()
		repo.attempts.seed(models.QuizAttempt{
			ID: 1, QuizID: 1, UserID: "student-1",
			Status: models.AttemptInProgress, StartedAt: time.Now(),
		})
		repo.conversations.seed(models.ConversationMessage{
			ID: 10, AttemptID: 1, Role: models.ConversationRoleAssistant,
			Content:   `{"quiz_complete": true, "partial_credit_percentage": 150, "first_attempt_percentage": -10}`,
			CreatedAt: time.Now(),
		})
		svc := newGradingForTest(repo, nil)

		result, err := svc.CompleteAttempt(ctx, 1, nil)
		if err != nil {
			t.Fatalf("CompleteAttempt failed: %v", err)
		}
		if result.PartialCreditPercentage != 100 || result.FirstAttemptPercentage != 0 {
			t.Errorf("Expected clamped 100/0, got %v/%v",
				result.PartialCreditPercentage, result.FirstAttemptPercentage)
		}
	})

	t.Run("non-completion chatter is ignored", func(t *testing.T) {
		repo := newMockRepository()
		repo.attempts.seed(models.QuizAttempt{
			ID: 1, QuizID: 1, UserID: "student-1",
			Status: models.AttemptInProgress, StartedAt: time.Now(),
		})
		repo.conversations.seed(models.ConversationMessage{
			ID: 10, AttemptID: 1, Role: models.ConversationRoleAssistant,
			Content:   `{"quiz_complete": false, "hint": "keep going"}`,
			CreatedAt: time.Now(),
		})
		svc := newGradingForTest(repo, nil)

		_, err := svc.CompleteAttempt(ctx, 1, nil)
		if err != ErrMissingCompletionData {
			t.Errorf("Expected ErrMissingCompletionData, got %v", err)
		}
	})

	t.Run("no ledger and no payload is fatal", func(t *testing.T) {
		repo := newMockRepository()
		repo.attempts.seed(models.QuizAttempt{
			ID: 1, QuizID: 1, UserID: "student-1",
			Status: models.AttemptInProgress, StartedAt: time.Now(),
		})
		svc := newGradingForTest(repo, nil)

		_, err := svc.CompleteAttempt(ctx, 1, nil)
		if err != ErrMissingCompletionData {
			t.Errorf("Expected ErrMissingCompletionData, got %v", err)
		}

		stored, _ := repo.attempts.GetByID(ctx, nil, 1)
		if stored.CompletedAt != nil {
			t.Error("Attempt must not be sealed on missing completion data")
		}
	})
}

func TestGradingService_CalculateQuizScore(t *testing.T) {
	ctx := context.Background()

	seedScored := func(repo *mockRepository, id uint, score float64, startOffset, completeOffset time.Duration) {
		started := time.Now().Add(startOffset)
		completed := time.Now().Add(completeOffset)
		repo.attempts.seed(models.QuizAttempt{
			ID: id, QuizID: 1, UserID: "student-1",
			Status: models.AttemptCompleted, StartedAt: started, CompletedAt: &completed,
			PartialCreditPercentage: float64Ptr(score),
			FirstAttemptPercentage:  float64Ptr(score),
		})
	}

	seedQuiz := func(repo *mockRepository, strategy models.GradingStrategy) {
		repo.quizzes.seed(models.Quiz{
			ID: 1, Title: "Fractions", ClassroomID: 7,
			Status: models.QuizPublished, GradingStrategy: strategy,
		})
	}

	t.Run("highest strategy", func(t *testing.T) {
		repo := newMockRepository()
		seedQuiz(repo, models.GradingHighest)
		seedScored(repo, 1, 80, -3*time.Hour, -170*time.Minute)
		seedScored(repo, 2, 95, -2*time.Hour, -110*time.Minute)
		seedScored(repo, 3, 60, -1*time.Hour, -50*time.Minute)
		svc := newGradingForTest(repo, nil)

		result, err := svc.CalculateQuizScore(ctx, 1, "student-1")
		if err != nil {
			t.Fatalf("CalculateQuizScore failed: %v", err)
		}
		if result.Score == nil || *result.Score != 95 {
			t.Errorf("Expected 95, got %v", result.Score)
		}
		if result.CountingAttemptID != 2 {
			t.Errorf("Expected attempt 2 to count, got %d", result.CountingAttemptID)
		}
		if len(result.AllScores) != 3 {
			t.Errorf("Expected 3 attempt scores, got %d", len(result.AllScores))
		}
	})

	t.Run("highest breaks ties by insertion order", func(t *testing.T) {
		repo := newMockRepository()
		seedQuiz(repo, models.GradingHighest)
		seedScored(repo, 1, 90, -3*time.Hour, -170*time.Minute)
		seedScored(repo, 2, 90, -2*time.Hour, -110*time.Minute)
		svc := newGradingForTest(repo, nil)

		result, err := svc.CalculateQuizScore(ctx, 1, "student-1")
		if err != nil {
			t.Fatalf("CalculateQuizScore failed: %v", err)
		}
		if result.CountingAttemptID != 1 {
			t.Errorf("Expected first-started attempt to win the tie, got %d", result.CountingAttemptID)
		}
	})

	t.Run("most recent strategy", func(t *testing.T) {
		repo := newMockRepository()
		seedQuiz(repo, models.GradingMostRecent)
		seedScored(repo, 1, 80, -3*time.Hour, -170*time.Minute)
		seedScored(repo, 2, 95, -2*time.Hour, -110*time.Minute)
		seedScored(repo, 3, 60, -1*time.Hour, -50*time.Minute)
		svc := newGradingForTest(repo, nil)

		result, err := svc.CalculateQuizScore(ctx, 1, "student-1")
		if err != nil {
			t.Fatalf("CalculateQuizScore failed: %v", err)
		}
		if result.Score == nil || *result.Score != 60 {
			t.Errorf("Expected 60, got %v", result.Score)
		}
	})

	t.Run("first strategy", func(t *testing.T) {
		repo := newMockRepository()
		seedQuiz(repo, models.GradingFirst)
		seedScored(repo, 1, 80, -3*time.Hour, -170*time.Minute)
		seedScored(repo, 2, 95, -2*time.Hour, -110*time.Minute)
		svc := newGradingForTest(repo, nil)

		result, err := svc.CalculateQuizScore(ctx, 1, "student-1")
		if err != nil {
			t.Fatalf("CalculateQuizScore failed: %v", err)
		}
		if result.Score == nil || *result.Score != 80 {
			t.Errorf("Expected 80, got %v", result.Score)
		}
	})

	t.Run("no completed attempts yields nil score", func(t *testing.T) {
		repo := newMockRepository()
		seedQuiz(repo, models.GradingHighest)
		svc := newGradingForTest(repo, nil)

		result, err := svc.CalculateQuizScore(ctx, 1, "student-1")
		if err != nil {
			t.Fatalf("CalculateQuizScore failed: %v", err)
		}
		if result.Score != nil {
			t.Errorf("Expected nil score, got %v", *result.Score)
		}
		if result.CountingAttemptID != 0 {
			t.Errorf("Expected no counting attempt, got %d", result.CountingAttemptID)
		}
	})

	t.Run("unknown quiz", func(t *testing.T) {
		repo := newMockRepository()
		svc := newGradingForTest(repo, nil)

		_, err := svc.CalculateQuizScore(ctx, 9, "student-1")
		if err != ErrQuizNotFound {
			t.Errorf("Expected ErrQuizNotFound, got %v", err)
		}
	})
}

func TestGradingService_ExportQuizScores(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	repo.quizzes.seed(models.Quiz{
		ID: 1, Title: "Fractions", ClassroomID: 7,
		Status: models.QuizPublished, GradingStrategy: models.GradingHighest,
	})
	started := time.Now().Add(-time.Hour)
	completed := time.Now().Add(-50 * time.Minute)
	repo.attempts.seed(models.QuizAttempt{
		ID: 1, QuizID: 1, UserID: "student-1",
		Status: models.AttemptCompleted, StartedAt: started, CompletedAt: &completed,
		PartialCreditPercentage: float64Ptr(88.5),
	})
	svc := newGradingForTest(repo, nil)

	f, err := svc.ExportQuizScores(ctx, 1, "student-1")
	if err != nil {
		t.Fatalf("ExportQuizScores failed: %v", err)
	}

	score, err := f.GetCellValue("Scores", "B2")
	if err != nil {
		t.Fatalf("GetCellValue failed: %v", err)
	}
	if score != "88.5" {
		t.Errorf("Expected score cell 88.5, got %q", score)
	}
}

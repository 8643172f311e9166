package services

import (
	"context"
	"testing"
	"time"

	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

func newResultForTest(repo *mockRepository) *resultService {
	return &resultService{
		repo:      repo,
		logger:    newTestLogger(),
		validator: validator.New(),
		now:       time.Now,
	}
}

func TestResultService_AppendQuestionResult(t *testing.T) {
	ctx := context.Background()

	t.Run("appends new entries in question order", func(t *testing.T) {
		repo := newMockRepository()
		seedInProgressAttempt(repo, 1, 0, 0)
		svc := newResultForTest(repo)

		for _, q := range []int{3, 1, 2} {
			_, err := svc.AppendQuestionResult(ctx, 1, &SubmitQuestionResultRequest{
				QuestionNum:       q,
				Attempts:          1,
				EventuallyCorrect: true,
				CreditEarned:      100,
			})
			if err != nil {
				t.Fatalf("AppendQuestionResult(%d) failed: %v", q, err)
			}
		}

		results, err := svc.GetQuestionResults(ctx, 1)
		if err != nil {
			t.Fatalf("GetQuestionResults failed: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("Expected 3 entries, got %d", len(results))
		}
		for i, r := range results {
			if r.QuestionNum != i+1 {
				t.Errorf("Entry %d has question_num %d", i, r.QuestionNum)
			}
		}
	})

	t.Run("resubmit replaces the earlier entry", func(t *testing.T) {
		repo := newMockRepository()
		seedInProgressAttempt(repo, 1, 0, 0)
		svc := newResultForTest(repo)

		first := &SubmitQuestionResultRequest{
			QuestionNum: 2, Attempts: 1, EventuallyCorrect: false, CreditEarned: 0,
		}
		if _, err := svc.AppendQuestionResult(ctx, 1, first); err != nil {
			t.Fatalf("First append failed: %v", err)
		}

		second := &SubmitQuestionResultRequest{
			QuestionNum: 2, Attempts: 3, EventuallyCorrect: true, CreditEarned: 40,
		}
		if _, err := svc.AppendQuestionResult(ctx, 1, second); err != nil {
			t.Fatalf("Resubmit failed: %v", err)
		}

		results, err := svc.GetQuestionResults(ctx, 1)
		if err != nil {
			t.Fatalf("GetQuestionResults failed: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("Expected 1 entry after resubmit, got %d", len(results))
		}
		r := results[0]
		if r.Attempts != 3 || !r.EventuallyCorrect || r.CreditEarned != 40 {
			t.Errorf("Resubmit did not replace: %+v", r)
		}
	})

	t.Run("maps known emoji keys", func(t *testing.T) {
		repo := newMockRepository()
		seedInProgressAttempt(repo, 1, 0, 0)
		svc := newResultForTest(repo)

		result, err := svc.AppendQuestionResult(ctx, 1, &SubmitQuestionResultRequest{
			QuestionNum: 1, Attempts: 1, EventuallyCorrect: true,
			CreditEarned: 100, EmojiKey: "correct_first_try",
		})
		if err != nil {
			t.Fatalf("AppendQuestionResult failed: %v", err)
		}
		if result.Entry.Emoji != "🎯" {
			t.Errorf("Expected mapped emoji, got %q", result.Entry.Emoji)
		}
	})

	t.Run("stamps recorded_at server-side", func(t *testing.T) {
		repo := newMockRepository()
		seedInProgressAttempt(repo, 1, 0, 0)
		svc := newResultForTest(repo)
		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return fixed }

		result, err := svc.AppendQuestionResult(ctx, 1, &SubmitQuestionResultRequest{
			QuestionNum: 1, Attempts: 1, EventuallyCorrect: true, CreditEarned: 100,
		})
		if err != nil {
			t.Fatalf("AppendQuestionResult failed: %v", err)
		}
		if !result.Entry.RecordedAt.Equal(fixed) {
			t.Errorf("Expected server timestamp %v, got %v", fixed, result.Entry.RecordedAt)
		}
	})

	t.Run("sealed attempt is not touched", func(t *testing.T) {
		repo := newMockRepository()
		completedAt := time.Now()
		attempt := models.QuizAttempt{
			ID: 1, QuizID: 1, UserID: "student-1",
			Status: models.AttemptCompleted, CompletedAt: &completedAt,
		}
		_ = attempt.SetResults([]models.QuestionResult{
			{QuestionNum: 1, Attempts: 1, EventuallyCorrect: true, CreditEarned: 100},
		})
		repo.attempts.seed(attempt)
		svc := newResultForTest(repo)

		result, err := svc.AppendQuestionResult(ctx, 1, &SubmitQuestionResultRequest{
			QuestionNum: 1, Attempts: 2, EventuallyCorrect: false, CreditEarned: 0,
		})
		if err != nil {
			t.Fatalf("AppendQuestionResult failed: %v", err)
		}
		if result.Skipped != SkipCompleted {
			t.Errorf("Expected skip %q, got %q", SkipCompleted, result.Skipped)
		}

		results, _ := svc.GetQuestionResults(ctx, 1)
		if len(results) != 1 || results[0].CreditEarned != 100 {
			t.Errorf("Sealed ledger changed: %+v", results)
		}
	})

	t.Run("rejects out-of-range credit", func(t *testing.T) {
		repo := newMockRepository()
		seedInProgressAttempt(repo, 1, 0, 0)
		svc := newResultForTest(repo)

		_, err := svc.AppendQuestionResult(ctx, 1, &SubmitQuestionResultRequest{
			QuestionNum: 1, Attempts: 1, CreditEarned: 150,
		})
		if err == nil {
			t.Error("Expected validation error for credit_earned=150")
		}
	})

	t.Run("unknown attempt", func(t *testing.T) {
		repo := newMockRepository()
		svc := newResultForTest(repo)

		_, err := svc.AppendQuestionResult(ctx, 9, &SubmitQuestionResultRequest{
			QuestionNum: 1, Attempts: 1, CreditEarned: 50,
		})
		if err != ErrAttemptNotFound {
			t.Errorf("Expected ErrAttemptNotFound, got %v", err)
		}
	})
}

func TestQuestionResult_FirstAttemptCorrect(t *testing.T) {
	cases := []struct {
		attempts int
		correct  bool
		want     bool
	}{
		{1, true, true},
		{1, false, false},
		{2, true, false},
		{3, false, false},
	}
	for _, c := range cases {
		r := models.QuestionResult{Attempts: c.attempts, EventuallyCorrect: c.correct}
		if got := r.FirstAttemptCorrect(); got != c.want {
			t.Errorf("attempts=%d correct=%v: got %v, want %v", c.attempts, c.correct, got, c.want)
		}
	}
}

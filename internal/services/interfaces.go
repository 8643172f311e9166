package services

import (
	"context"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/openlearn-io/quiz-attempt-service/internal/models"
)

// SkipReason marks a mutation that was intentionally not applied. Skips are
// successful responses, not errors: the client stops retrying either way.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipCompleted    SkipReason = "completed"
	SkipGapPending   SkipReason = "gap_pending"
	SkipClosePending SkipReason = "close_pending"
	SkipStale        SkipReason = "stale"
)

// Refusal reasons for attempt creation. Like skips, these are successful
// responses describing why no attempt was started.
const (
	RefusalIncompleteExists = "incomplete_attempt_exists"
	RefusalMaxAttempts      = "max_attempts_reached"
	RefusalNotPublished     = "quiz_not_published"
)

// CreateAttemptRequest starts a new attempt for the calling user.
type CreateAttemptRequest struct {
	QuizID uint `json:"quiz_id" validate:"required"`
}

// CreateAttemptResult reports either the new attempt or the refusal reason.
type CreateAttemptResult struct {
	Success   bool   `json:"success"`
	AttemptID uint   `json:"attempt_id,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// Set when Reason is incomplete_attempt_exists so the client can resume.
	ExistingAttemptID uint `json:"existing_attempt_id,omitempty"`
	CanResume         bool `json:"can_resume,omitempty"`
}

// DurationMetrics carries client-reported cumulative durations. Both fields
// are optional; absent fields leave the stored value alone.
type DurationMetrics struct {
	TotalMs     *float64 `json:"total_ms"`
	UnfocusedMs *float64 `json:"unfocused_ms"`
}

// DurationState is the stored timing after a mutation (or skip).
type DurationState struct {
	AttemptID           uint       `json:"attempt_id"`
	TotalDurationMs     int64      `json:"total_duration_ms"`
	UnfocusedDurationMs int64      `json:"unfocused_duration_ms"`
	ModalClosedAt       *time.Time `json:"modal_closed_at,omitempty"`
	Skipped             SkipReason `json:"skipped,omitempty"`
}

// GapResult reports a gap reconciliation outcome.
type GapResult struct {
	DurationState
	GapApplied bool  `json:"gap_applied"`
	GapMs      int64 `json:"gap_ms"`
}

// SubmitQuestionResultRequest records one question outcome in the attempt's
// ledger. Resubmitting a question_num replaces the earlier entry.
type SubmitQuestionResultRequest struct {
	QuestionNum       int     `json:"question_num" validate:"required,min=1"`
	Attempts          int     `json:"attempts" validate:"required,min=1"`
	EventuallyCorrect bool    `json:"eventually_correct"`
	CreditEarned      float64 `json:"credit_earned" validate:"credit_range"`
	EmojiKey          string  `json:"emoji_key"`
}

// AppendResult is the stored ledger entry, or a skip marker when the attempt
// is already sealed.
type AppendResult struct {
	Entry   *models.QuestionResult `json:"entry,omitempty"`
	Skipped SkipReason             `json:"skipped,omitempty"`
}

// Percentages are the two scores sealed at completion. Both are nil when
// derived from an empty ledger.
type Percentages struct {
	PartialCredit *float64 `json:"partial_credit_percentage"`
	FirstAttempt  *float64 `json:"first_attempt_percentage"`
}

// CompletionResult reports a finalized attempt. AlreadyCompleted means the
// call was an idempotent replay and the stored scores are returned untouched.
type CompletionResult struct {
	AttemptID               uint    `json:"attempt_id"`
	PartialCreditPercentage float64 `json:"partial_credit_percentage"`
	FirstAttemptPercentage  float64 `json:"first_attempt_percentage"`
	TotalDurationMs         int64   `json:"total_duration_ms"`
	UnfocusedDurationMs     int64   `json:"unfocused_duration_ms"`
	AlreadyCompleted        bool    `json:"already_completed"`
}

// AttemptScore is one completed attempt's contribution to the quiz score.
type AttemptScore struct {
	AttemptID   uint       `json:"attempt_id"`
	Score       float64    `json:"score"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// QuizScoreResult is the strategy-selected score across a user's completed
// attempts. Score is nil when no completed scored attempt exists.
type QuizScoreResult struct {
	QuizID            uint                   `json:"quiz_id"`
	UserID            string                 `json:"user_id"`
	Strategy          models.GradingStrategy `json:"strategy"`
	Score             *float64               `json:"score"`
	CountingAttemptID uint                   `json:"counting_attempt_id,omitempty"`
	AllScores         []AttemptScore         `json:"all_scores"`
}

// AttemptService guards attempt creation and serves reads.
type AttemptService interface {
	Create(ctx context.Context, req *CreateAttemptRequest, actor models.Actor) (*CreateAttemptResult, error)
	GetByID(ctx context.Context, attemptID uint, actor models.Actor) (*models.QuizAttempt, error)
	ListByQuizAndUser(ctx context.Context, quizID uint, userID string) ([]*models.QuizAttempt, error)
}

// TimingService owns duration accumulation and absence-gap reconciliation.
type TimingService interface {
	UpdateDurations(ctx context.Context, attemptID uint, metrics DurationMetrics) (*DurationState, error)
	RecordModalClosed(ctx context.Context, attemptID uint, metrics *DurationMetrics) (*DurationState, error)
	ReconcileGap(ctx context.Context, attemptID uint) (*GapResult, error)
}

// ResultService owns the progressive question-result ledger.
type ResultService interface {
	AppendQuestionResult(ctx context.Context, attemptID uint, req *SubmitQuestionResultRequest) (*AppendResult, error)
	GetQuestionResults(ctx context.Context, attemptID uint) ([]models.QuestionResult, error)
}

// GradingService derives percentages, finalizes attempts, and aggregates
// scores across attempts.
type GradingService interface {
	CalculatePercentagesFromResults(results []models.QuestionResult) Percentages
	CompleteAttempt(ctx context.Context, attemptID uint, metrics *DurationMetrics) (*CompletionResult, error)
	CalculateQuizScore(ctx context.Context, quizID uint, userID string) (*QuizScoreResult, error)
	ExportQuizScores(ctx context.Context, quizID uint, userID string) (*excelize.File, error)
}

// ServiceManager wires and exposes all services.
type ServiceManager interface {
	Attempt() AttemptService
	Timing() TimingService
	Result() ResultService
	Grading() GradingService
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

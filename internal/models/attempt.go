package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// QuizAttempt is one student's session taking a quiz, from start to completion.
// Duration fields are monotonically non-decreasing; ModalClosedAt marks a pending
// absence gap that suppresses heartbeats until reconciled.
type QuizAttempt struct {
	ID     uint          `json:"id" gorm:"primaryKey"`
	QuizID uint          `json:"quiz_id" gorm:"not null;index:idx_quiz_user"`
	UserID string        `json:"user_id" gorm:"not null;index:idx_quiz_user;size:255"`
	Status AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Accumulated client-reported durations, milliseconds
	TotalDurationMs     int64 `json:"total_duration_ms" gorm:"not null;default:0"`
	UnfocusedDurationMs int64 `json:"unfocused_duration_ms" gorm:"not null;default:0"`

	// Set when the client reported the view closed while the attempt was open;
	// cleared when the resulting gap is reconciled or dismissed.
	ModalClosedAt *time.Time `json:"modal_closed_at"`

	// Progressive per-question outcomes, unique by question_num (last write wins).
	QuestionResults datatypes.JSON `json:"question_results" gorm:"type:jsonb"`

	// Sealed exactly once at completion, immutable afterwards.
	PartialCreditPercentage *float64 `json:"partial_credit_percentage"`
	FirstAttemptPercentage  *float64 `json:"first_attempt_percentage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Quiz Quiz `json:"quiz" gorm:"foreignKey:QuizID"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// IsCompleted reports whether the attempt has been sealed.
func (a *QuizAttempt) IsCompleted() bool {
	return a.CompletedAt != nil
}

// Results decodes the question_results ledger. A null/empty column is an empty ledger.
func (a *QuizAttempt) Results() ([]QuestionResult, error) {
	if len(a.QuestionResults) == 0 {
		return []QuestionResult{}, nil
	}
	var results []QuestionResult
	if err := json.Unmarshal(a.QuestionResults, &results); err != nil {
		return nil, fmt.Errorf("failed to decode question results for attempt %d: %w", a.ID, err)
	}
	return results, nil
}

// SetResults encodes the ledger back into the JSONB column.
func (a *QuizAttempt) SetResults(results []QuestionResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode question results: %w", err)
	}
	a.QuestionResults = data
	return nil
}

// QuestionResult is one ledger entry. first_attempt_correct is intentionally not
// stored: it is always Attempts == 1 && EventuallyCorrect.
type QuestionResult struct {
	QuestionNum       int       `json:"question_num"`
	Attempts          int       `json:"attempts"`
	EventuallyCorrect bool      `json:"eventually_correct"`
	CreditEarned      float64   `json:"credit_earned"`
	Emoji             string    `json:"emoji"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// FirstAttemptCorrect is the derived form of the field the ledger never persists.
func (r QuestionResult) FirstAttemptCorrect() bool {
	return r.Attempts == 1 && r.EventuallyCorrect
}

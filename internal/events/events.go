package events

import (
	"context"
	"time"
)

const (
	EventSource  = "quiz-attempt-service"
	EventVersion = "1.0"

	AttemptCreated   = "attempt.created"
	AttemptCompleted = "attempt.completed"
)

// Event is the envelope published for attempt lifecycle changes. Consumers
// (notifications, analytics) key on Type.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// AttemptEventData is the payload for attempt lifecycle events.
type AttemptEventData struct {
	AttemptID uint   `json:"attempt_id"`
	QuizID    uint   `json:"quiz_id"`
	UserID    string `json:"user_id"`

	// Completion-only fields
	PartialCreditPercentage *float64 `json:"partial_credit_percentage,omitempty"`
	FirstAttemptPercentage  *float64 `json:"first_attempt_percentage,omitempty"`
}

// EventPublisher publishes lifecycle events. Publishing is fire-and-forget
// from the caller's perspective: failures are logged, never propagated into
// the attempt transaction.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/repositories"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

// timingService accumulates client-reported durations and reconciles absence
// gaps. Every mutation locks the attempt row first, so concurrent heartbeats
// and the completion path serialize in the database.
type timingService struct {
	repo       repositories.Repository
	db         *gorm.DB
	logger     *slog.Logger
	validator  *validator.Validator
	gapMinimum time.Duration
	now        func() time.Time
}

func NewTimingService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, gapMinimum time.Duration) TimingService {
	return &timingService{
		repo:       repo,
		db:         db,
		logger:     logger,
		validator:  v,
		gapMinimum: gapMinimum,
		now:        time.Now,
	}
}

// UpdateDurations merges a heartbeat into the stored durations. Stored values
// only ever grow: a report lower than what is stored (late-arriving, reset
// client) leaves the row alone. Heartbeats are skipped while a modal-closed
// gap is pending so the gap charge is not double counted.
func (s *timingService) UpdateDurations(ctx context.Context, attemptID uint, metrics DurationMetrics) (*DurationState, error) {
	var state *DurationState
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt, err := txRepo.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to lock attempt %d: %w", attemptID, err)
		}

		if attempt.IsCompleted() {
			state = stateOf(attempt, SkipCompleted)
			return nil
		}
		if attempt.ModalClosedAt != nil {
			state = stateOf(attempt, SkipGapPending)
			return nil
		}

		if mergeDurations(attempt, metrics) {
			if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
				return fmt.Errorf("failed to update durations for attempt %d: %w", attemptID, err)
			}
		}
		state = stateOf(attempt, SkipNone)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// RecordModalClosed handles the close beacon: merge the final durations and
// mark the close time so later heartbeats pause until the gap reconciles.
// A beacon whose total is below the stored total is stale (delivered late,
// after fresher heartbeats) and ignored entirely.
func (s *timingService) RecordModalClosed(ctx context.Context, attemptID uint, metrics *DurationMetrics) (*DurationState, error) {
	var state *DurationState
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt, err := txRepo.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to lock attempt %d: %w", attemptID, err)
		}

		if attempt.IsCompleted() {
			state = stateOf(attempt, SkipCompleted)
			return nil
		}
		if attempt.ModalClosedAt != nil {
			state = stateOf(attempt, SkipClosePending)
			return nil
		}
		if metrics != nil {
			if total, ok := sanitizeMs(metrics.TotalMs); ok && total < attempt.TotalDurationMs {
				s.logger.Debug("Stale close beacon ignored",
					"attempt_id", attemptID, "reported_ms", total, "stored_ms", attempt.TotalDurationMs)
				state = stateOf(attempt, SkipStale)
				return nil
			}
			mergeDurations(attempt, *metrics)
		}

		closedAt := s.now()
		attempt.ModalClosedAt = &closedAt
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to record modal close for attempt %d: %w", attemptID, err)
		}
		state = stateOf(attempt, SkipNone)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ReconcileGap charges the wall-clock absence since the close beacon (or the
// last write, when the beacon never arrived) to both duration counters, then
// clears the pending marker. Gaps below the configured minimum are dismissed
// without charging: short absences are already covered by heartbeats.
func (s *timingService) ReconcileGap(ctx context.Context, attemptID uint) (*GapResult, error) {
	var result *GapResult
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt, err := txRepo.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to lock attempt %d: %w", attemptID, err)
		}

		if attempt.IsCompleted() {
			result = &GapResult{DurationState: *stateOf(attempt, SkipCompleted)}
			return nil
		}

		reference := attempt.UpdatedAt
		if attempt.ModalClosedAt != nil {
			reference = *attempt.ModalClosedAt
		}
		gap := s.now().Sub(reference)

		if gap < s.gapMinimum {
			if attempt.ModalClosedAt != nil {
				attempt.ModalClosedAt = nil
				if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
					return fmt.Errorf("failed to clear modal close for attempt %d: %w", attemptID, err)
				}
			}
			result = &GapResult{DurationState: *stateOf(attempt, SkipNone)}
			return nil
		}

		gapMs := gap.Milliseconds()
		attempt.TotalDurationMs += gapMs
		attempt.UnfocusedDurationMs += gapMs
		attempt.ModalClosedAt = nil
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to apply gap for attempt %d: %w", attemptID, err)
		}

		s.logger.Info("Absence gap charged", "attempt_id", attemptID, "gap_ms", gapMs)
		result = &GapResult{
			DurationState: *stateOf(attempt, SkipNone),
			GapApplied:    true,
			GapMs:         gapMs,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func stateOf(attempt *models.QuizAttempt, skipped SkipReason) *DurationState {
	return &DurationState{
		AttemptID:           attempt.ID,
		TotalDurationMs:     attempt.TotalDurationMs,
		UnfocusedDurationMs: attempt.UnfocusedDurationMs,
		ModalClosedAt:       attempt.ModalClosedAt,
		Skipped:             skipped,
	}
}

// mergeDurations applies the monotonic max-merge and reports whether anything
// changed.
func mergeDurations(attempt *models.QuizAttempt, metrics DurationMetrics) bool {
	changed := false
	if v, ok := sanitizeMs(metrics.TotalMs); ok && v > attempt.TotalDurationMs {
		attempt.TotalDurationMs = v
		changed = true
	}
	if v, ok := sanitizeMs(metrics.UnfocusedMs); ok && v > attempt.UnfocusedDurationMs {
		attempt.UnfocusedDurationMs = v
		changed = true
	}
	return changed
}

// sanitizeMs rejects absent and non-finite values, rounds to whole
// milliseconds, and floors negatives at zero.
func sanitizeMs(v *float64) (int64, bool) {
	if v == nil {
		return 0, false
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f < 0 {
		return 0, true
	}
	return int64(math.Round(f)), true
}

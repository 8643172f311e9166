package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository aggregates the per-domain repositories. WithTransaction yields a
// Repository whose operations share one transaction; every mutating attempt
// operation must run inside it and begin with Attempt().GetByIDForUpdate so
// writes to the same attempt serialize on the row lock.
type Repository interface {
	Attempt() AttemptRepository
	Quiz() QuizRepository
	Conversation() ConversationRepository

	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager owns repository lifecycle: connect at startup, close on shutdown.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// IsNotFoundError reports whether err means the row does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

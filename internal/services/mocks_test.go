package services

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/repositories"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// mockRepository is an in-memory repositories.Repository. WithTransaction
// holds one mutex for the whole transaction, which gives the same
// serialization the row lock provides in Postgres.
type mockRepository struct {
	txMu sync.Mutex

	attempts      *mockAttemptRepo
	quizzes       *mockQuizRepo
	conversations *mockConversationRepo
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		attempts:      &mockAttemptRepo{attempts: make(map[uint]models.QuizAttempt)},
		quizzes:       &mockQuizRepo{quizzes: make(map[uint]models.Quiz)},
		conversations: &mockConversationRepo{},
	}
}

func (r *mockRepository) Attempt() repositories.AttemptRepository { return r.attempts }
func (r *mockRepository) Quiz() repositories.QuizRepository       { return r.quizzes }
func (r *mockRepository) Conversation() repositories.ConversationRepository {
	return r.conversations
}

func (r *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(r)
}

func (r *mockRepository) Ping(ctx context.Context) error { return nil }
func (r *mockRepository) Close() error                   { return nil }

type mockAttemptRepo struct {
	mu       sync.Mutex
	nextID   uint
	attempts map[uint]models.QuizAttempt
}

// seed stores an attempt verbatim, timestamps included.
func (m *mockAttemptRepo) seed(a models.QuizAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID > m.nextID {
		m.nextID = a.ID
	}
	m.attempts[a.ID] = a
}

func (m *mockAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	attempt.ID = m.nextID
	attempt.CreatedAt = time.Now()
	attempt.UpdatedAt = time.Now()
	m.attempts[attempt.ID] = *attempt
	return nil
}

func (m *mockAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (m *mockAttemptRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	return m.GetByID(ctx, tx, id)
}

func (m *mockAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[attempt.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	attempt.UpdatedAt = time.Now()
	m.attempts[attempt.ID] = *attempt
	return nil
}

func (m *mockAttemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.QuizAttempt
	for _, a := range m.attempts {
		if a.QuizID != quizID || a.UserID != userID || a.CompletedAt != nil {
			continue
		}
		a := a
		if found == nil || a.StartedAt.After(found.StartedAt) {
			found = &a
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (m *mockAttemptRepo) CountByQuizAndUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *mockAttemptRepo) GetCompletedScored(ctx context.Context, tx *gorm.DB, quizID uint, userID string) ([]*models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QuizAttempt
	for _, a := range m.attempts {
		if a.QuizID != quizID || a.UserID != userID {
			continue
		}
		if a.CompletedAt == nil || a.PartialCreditPercentage == nil {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *mockAttemptRepo) ListByQuizAndUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) ([]*models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QuizAttempt
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

type mockQuizRepo struct {
	mu      sync.Mutex
	quizzes map[uint]models.Quiz
}

func (m *mockQuizRepo) seed(q models.Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
}

func (m *mockQuizRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &q, nil
}

type mockConversationRepo struct {
	mu       sync.Mutex
	messages []models.ConversationMessage
}

func (m *mockConversationRepo) seed(msg models.ConversationMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockConversationRepo) RecentAssistantMessages(ctx context.Context, attemptID uint, limit int) ([]*models.ConversationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ConversationMessage
	for _, msg := range m.messages {
		if msg.AttemptID == attemptID && msg.Role == models.ConversationRoleAssistant {
			msg := msg
			out = append(out, &msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func float64Ptr(v float64) *float64 { return &v }

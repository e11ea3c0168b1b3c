package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizforge/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizRepository, used in
// tests and when the server runs without Postgres.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore() *QuizStore {
	return &QuizStore{quizzes: make(map[string]domain.Quiz)}
}

func (s *QuizStore) Insert(_ context.Context, quiz domain.Quiz) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz.ID = uuid.NewString()
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return quiz.ID, nil
}

func (s *QuizStore) Get(_ context.Context, id string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *QuizStore) ListByOwner(_ context.Context, ownerID string) ([]domain.Quiz, error) {
	return s.list(func(q domain.Quiz) bool {
		return q.CreatedBy == ownerID
	}), nil
}

func (s *QuizStore) ListByOwnerCreatedBefore(_ context.Context, ownerID string, cutoff time.Time) ([]domain.Quiz, error) {
	return s.list(func(q domain.Quiz) bool {
		return q.CreatedBy == ownerID && q.CreatedAt.Before(cutoff)
	}), nil
}

func (s *QuizStore) ListByOwnerMaxResponses(_ context.Context, ownerID string, maxResponses int) ([]domain.Quiz, error) {
	return s.list(func(q domain.Quiz) bool {
		return q.CreatedBy == ownerID && q.Responses <= maxResponses
	}), nil
}

func (s *QuizStore) Update(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quiz.ID]; !ok {
		return domain.ErrQuizNotFound
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *QuizStore) IncrementResponses(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Responses += delta
	s.quizzes[id] = quiz
	return nil
}

// Delete is idempotent: removing an absent quiz is not an error, so sweeps can
// be re-run after partial failure.
func (s *QuizStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quizzes, id)
	return nil
}

func (s *QuizStore) list(match func(domain.Quiz) bool) []domain.Quiz {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0)
	for _, quiz := range s.quizzes {
		if match(quiz) {
			out = append(out, cloneQuiz(quiz))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneQuiz(quiz domain.Quiz) domain.Quiz {
	questions := make([]domain.Question, len(quiz.Questions))
	for i, question := range quiz.Questions {
		question.Options = append([]string(nil), question.Options...)
		questions[i] = question
	}
	quiz.Questions = questions
	return quiz
}

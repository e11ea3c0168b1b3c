package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"quizforge/internal/domain"
)

// SubmissionStore is an in-memory implementation of app.SubmissionRepository.
type SubmissionStore struct {
	mu          sync.RWMutex
	submissions map[string]domain.QuizSubmission
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{submissions: make(map[string]domain.QuizSubmission)}
}

func (s *SubmissionStore) Insert(_ context.Context, submission domain.QuizSubmission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	submission.ID = uuid.NewString()
	submission.Answers = append([]domain.StudentAnswer(nil), submission.Answers...)
	s.submissions[submission.ID] = submission
	return submission.ID, nil
}

func (s *SubmissionStore) ListByQuiz(_ context.Context, quizID string) ([]domain.QuizSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizSubmission, 0)
	for _, submission := range s.submissions {
		if submission.QuizID == quizID {
			submission.Answers = append([]domain.StudentAnswer(nil), submission.Answers...)
			out = append(out, submission)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

// Delete is idempotent, matching the quiz store.
func (s *SubmissionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissions, id)
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizforge/internal/domain"
)

// SubmissionStore keeps submission documents as JSONB rows keyed by quiz.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

func (s *SubmissionStore) Insert(ctx context.Context, submission domain.QuizSubmission) (string, error) {
	submission.ID = uuid.NewString()
	data, err := json.Marshal(submission)
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO submissions (id, quiz_id, submitted_at, data) VALUES ($1, $2, $3, $4)`,
		submission.ID, submission.QuizID, submission.SubmittedAt, data)
	if err != nil {
		return "", fmt.Errorf("insert submission: %w", err)
	}
	return submission.ID, nil
}

func (s *SubmissionStore) ListByQuiz(ctx context.Context, quizID string) ([]domain.QuizSubmission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM submissions WHERE quiz_id=$1 ORDER BY submitted_at`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QuizSubmission, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		var submission domain.QuizSubmission
		if err := json.Unmarshal(raw, &submission); err != nil {
			return nil, fmt.Errorf("unmarshal submission: %w", err)
		}
		out = append(out, submission)
	}
	return out, rows.Err()
}

// Delete is idempotent, like the quiz store.
func (s *SubmissionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM submissions WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return nil
}

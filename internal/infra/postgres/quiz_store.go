package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizforge/internal/domain"
)

// QuizStore keeps quiz documents as JSONB rows. The columns the sweeps filter
// on (owner, creation time, response counter) are mirrored out of the document
// so selection happens in SQL.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) Insert(ctx context.Context, quiz domain.Quiz) (string, error) {
	quiz.ID = uuid.NewString()
	data, err := json.Marshal(quiz)
	if err != nil {
		return "", fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, owner_id, created_at, responses, is_published, data)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		quiz.ID, quiz.CreatedBy, quiz.CreatedAt, quiz.Responses, quiz.IsPublished, data)
	if err != nil {
		return "", fmt.Errorf("insert quiz: %w", err)
	}
	return quiz.ID, nil
}

func (s *QuizStore) Get(ctx context.Context, id string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return decodeQuiz(raw)
}

func (s *QuizStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	return s.query(ctx,
		`SELECT data FROM quizzes WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
}

func (s *QuizStore) ListByOwnerCreatedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]domain.Quiz, error) {
	return s.query(ctx,
		`SELECT data FROM quizzes WHERE owner_id=$1 AND created_at < $2 ORDER BY created_at DESC`,
		ownerID, cutoff)
}

func (s *QuizStore) ListByOwnerMaxResponses(ctx context.Context, ownerID string, maxResponses int) ([]domain.Quiz, error) {
	return s.query(ctx,
		`SELECT data FROM quizzes WHERE owner_id=$1 AND responses <= $2 ORDER BY created_at DESC`,
		ownerID, maxResponses)
}

func (s *QuizStore) Update(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE quizzes SET owner_id=$2, created_at=$3, responses=$4, is_published=$5, data=$6 WHERE id=$1`,
		quiz.ID, quiz.CreatedBy, quiz.CreatedAt, quiz.Responses, quiz.IsPublished, data)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// IncrementResponses bumps the counter column and its mirror inside the
// document in one statement, so both stay consistent with each other.
func (s *QuizStore) IncrementResponses(ctx context.Context, id string, delta int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quizzes
		 SET responses = responses + $2,
		     data = jsonb_set(data, '{responses}', to_jsonb(responses + $2))
		 WHERE id=$1`,
		id, delta)
	if err != nil {
		return fmt.Errorf("increment responses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// Delete is idempotent so sweeps can be re-run after partial failure.
func (s *QuizStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	return nil
}

func (s *QuizStore) query(ctx context.Context, sql string, args ...interface{}) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Quiz, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quiz, err := decodeQuiz(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, quiz)
	}
	return out, rows.Err()
}

// decodeQuiz rejects malformed documents instead of trusting row shape.
func decodeQuiz(raw []byte) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	if quiz.ID == "" {
		return domain.Quiz{}, fmt.Errorf("quiz document missing id")
	}
	return quiz, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizforge/internal/domain"
)

// UserStore persists creator accounts. Unlike quizzes and submissions the user
// record is flat, so it gets plain columns instead of a JSONB document.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Insert(ctx context.Context, user domain.User) (string, error) {
	user.ID = uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return user.ID, nil
}

func (s *UserStore) Get(ctx context.Context, id string) (domain.User, error) {
	return s.get(ctx, `SELECT id, email, display_name, password_hash, created_at FROM users WHERE id=$1`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.get(ctx, `SELECT id, email, display_name, password_hash, created_at FROM users WHERE email=$1`, email)
}

func (s *UserStore) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) get(ctx context.Context, sql string, arg interface{}) (domain.User, error) {
	var user domain.User
	err := s.pool.QueryRow(ctx, sql, arg).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

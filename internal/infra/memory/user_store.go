package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"quizforge/internal/domain"
)

// UserStore is an in-memory implementation of auth.UserStore.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]domain.User)}
}

func (s *UserStore) Insert(_ context.Context, user domain.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = uuid.NewString()
	s.users[user.ID] = user
	return user.ID, nil
}

func (s *UserStore) Get(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *UserStore) UpdatePassword(_ context.Context, id string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.PasswordHash = hash
	s.users[id] = user
	return nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"quizforge/internal/domain"
)

// ErrInvalidToken covers malformed, expired, and revoked bearer tokens.
var ErrInvalidToken = errors.New("invalid token")

// UserStore persists creator accounts.
type UserStore interface {
	Insert(ctx context.Context, user domain.User) (string, error)
	Get(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	UpdatePassword(ctx context.Context, id string, hash []byte) error
}

// Claims are the JWT claims carried by a signed-in creator's bearer token.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Session is the explicit acting-user object handed to callers on sign-in.
type Session struct {
	Token  string      `json:"token"`
	UserID string      `json:"userId"`
	Email  string      `json:"email"`
	User   domain.User `json:"user"`
}

// Service implements sign-up/sign-in/sign-out, password resets, and the
// auth-state feed. Tokens are HS256 JWTs; sign-out revokes the token id until
// its natural expiry.
type Service struct {
	store    UserStore
	secret   []byte
	tokenTTL time.Duration
	resetTTL time.Duration
	now      func() time.Time
	feed     *StateFeed

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
	resets  map[string]resetGrant
}

type resetGrant struct {
	userID    string
	expiresAt time.Time
}

func NewService(store UserStore, secret string, tokenTTL time.Duration) *Service {
	return NewServiceWithClock(store, secret, tokenTTL, time.Now)
}

// NewServiceWithClock is for tests needing deterministic expiry.
func NewServiceWithClock(store UserStore, secret string, tokenTTL time.Duration, now func() time.Time) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		store:    store,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		resetTTL: time.Hour,
		now:      now,
		feed:     NewStateFeed(),
		revoked:  make(map[string]time.Time),
		resets:   make(map[string]resetGrant),
	}
}

// Feed exposes the auth-state feed for transport subscriptions.
func (s *Service) Feed() *StateFeed {
	return s.feed
}

// SignUp registers a creator account and signs them in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return Session{}, &domain.ValidationError{Problems: []string{"email and password are required"}}
	}
	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return Session{}, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return Session{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	id, err := s.store.Insert(ctx, user)
	if err != nil {
		return Session{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return s.openSession(user)
}

// SignIn verifies credentials and issues a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return Session{}, domain.ErrInvalidCredentials
	}
	return s.openSession(user)
}

// SignInWithProvider is part of the identity surface but no federated provider
// is configured in this deployment.
func (s *Service) SignInWithProvider(_ context.Context, provider string) (Session, error) {
	return Session{}, fmt.Errorf("provider %q not supported", provider)
}

// SignOut revokes the token until its natural expiry and notifies watchers.
func (s *Service) SignOut(_ context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.revoked[claims.ID] = claims.ExpiresAt.Time
	s.pruneLocked()
	s.mu.Unlock()

	s.feed.publish(Event{Type: EventSignedOut, UserID: claims.UID, Email: claims.Email})
	return nil
}

// Verify resolves a bearer token to its user record.
func (s *Service) Verify(ctx context.Context, token string) (domain.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.store.Get(ctx, claims.UID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// SendPasswordReset issues a single-use reset token for the account. Delivery
// of the token to the user is out of scope; the caller gets it back directly.
// An unknown email still succeeds, returning an empty token, so the endpoint
// does not leak which addresses are registered.
func (s *Service) SendPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup email: %w", err)
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.resets[token] = resetGrant{userID: user.ID, expiresAt: s.now().Add(s.resetTTL)}
	s.mu.Unlock()
	return token, nil
}

// ResetPassword consumes a reset token and replaces the account password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return &domain.ValidationError{Problems: []string{"password must not be empty"}}
	}

	s.mu.Lock()
	grant, ok := s.resets[token]
	if ok {
		delete(s.resets, token)
	}
	s.mu.Unlock()
	if !ok || grant.expiresAt.Before(s.now()) {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, grant.userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *Service) openSession(user domain.User) (Session, error) {
	now := s.now()
	claims := Claims{
		UID:   user.ID,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			ID:        uuid.NewString(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}

	s.feed.publish(Event{Type: EventSignedIn, UserID: user.ID, Email: user.Email})
	return Session{Token: token, UserID: user.ID, Email: user.Email, User: user}, nil
}

func (s *Service) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// pruneLocked drops revocations for tokens that have expired on their own.
func (s *Service) pruneLocked() {
	now := s.now()
	for jti, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, jti)
		}
	}
}

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizforge/internal/auth"
	"quizforge/internal/domain"
	"quizforge/internal/infra/memory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newService() *auth.Service {
	return auth.NewServiceWithClock(memory.NewUserStore(), "test-secret", time.Hour,
		func() time.Time { return testNow })
}

func TestSignUpAndVerify(t *testing.T) {
	ctx := context.Background()
	service := newService()

	session, err := service.SignUp(ctx, "Alice@Example.com", "hunter22", "Alice")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if session.Token == "" || session.UserID == "" {
		t.Fatalf("expected token and user id, got %+v", session)
	}
	if session.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", session.Email)
	}

	user, err := service.Verify(ctx, session.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.ID != session.UserID {
		t.Fatalf("expected token to resolve to the same user")
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	service := newService()

	if _, err := service.SignUp(ctx, "alice@example.com", "pw", "Alice"); err != nil {
		t.Fatalf("first sign up: %v", err)
	}
	if _, err := service.SignUp(ctx, "alice@example.com", "pw2", "Other"); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignInChecksCredentials(t *testing.T) {
	ctx := context.Background()
	service := newService()

	if _, err := service.SignUp(ctx, "alice@example.com", "hunter22", "Alice"); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	if _, err := service.SignIn(ctx, "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := service.SignIn(ctx, "alice@example.com", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials on bad password, got %v", err)
	}
	// Unknown email is indistinguishable from a bad password.
	if _, err := service.SignIn(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials on unknown email, got %v", err)
	}
}

func TestSignOutRevokesToken(t *testing.T) {
	ctx := context.Background()
	service := newService()

	session, err := service.SignUp(ctx, "alice@example.com", "hunter22", "Alice")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := service.SignOut(ctx, session.Token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := service.Verify(ctx, session.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected revoked token rejected, got %v", err)
	}

	// A fresh sign-in issues a usable token again.
	fresh, err := service.SignIn(ctx, "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := service.Verify(ctx, fresh.Token); err != nil {
		t.Fatalf("expected new token valid, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	service := newService()

	if _, err := service.SignUp(ctx, "alice@example.com", "oldpw", "Alice"); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	token, err := service.SendPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("reset request: %v", err)
	}
	if token == "" {
		t.Fatalf("expected reset token for known email")
	}

	if err := service.ResetPassword(ctx, token, "newpw"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := service.SignIn(ctx, "alice@example.com", "oldpw"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected old password dead, got %v", err)
	}
	if _, err := service.SignIn(ctx, "alice@example.com", "newpw"); err != nil {
		t.Fatalf("expected new password to work, got %v", err)
	}

	// The token is single-use.
	if err := service.ResetPassword(ctx, token, "again"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected consumed token rejected, got %v", err)
	}
}

func TestPasswordResetDoesNotLeakAccounts(t *testing.T) {
	ctx := context.Background()
	service := newService()

	token, err := service.SendPasswordReset(ctx, "ghost@example.com")
	if err != nil {
		t.Fatalf("reset request must not fail for unknown email: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for unknown email")
	}
}

func TestSignInWithProviderUnsupported(t *testing.T) {
	service := newService()
	if _, err := service.SignInWithProvider(context.Background(), "google"); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestStateFeedResolvesThenStreams(t *testing.T) {
	ctx := context.Background()
	service := newService()

	events, cancel := service.Feed().Subscribe()
	defer cancel()

	first := <-events
	if first.Type != auth.EventResolved {
		t.Fatalf("expected resolved event first, got %+v", first)
	}

	session, err := service.SignUp(ctx, "alice@example.com", "pw", "Alice")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	signedIn := <-events
	if signedIn.Type != auth.EventSignedIn || signedIn.UserID != session.UserID {
		t.Fatalf("expected signed_in for the new user, got %+v", signedIn)
	}

	if err := service.SignOut(ctx, session.Token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	signedOut := <-events
	if signedOut.Type != auth.EventSignedOut || signedOut.UserID != session.UserID {
		t.Fatalf("expected signed_out, got %+v", signedOut)
	}
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuizNotFound indicates the quiz does not exist or is not visible to the caller.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSubmissionNotFound indicates a submission record is missing.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrNotOwner is returned when the acting user is not the quiz's creator.
	// Kept distinct from ErrQuizNotFound so callers can message it differently.
	ErrNotOwner = errors.New("not the quiz owner")
	// ErrIncompleteAttempt blocks finalizing an attempt with unanswered questions.
	ErrIncompleteAttempt = errors.New("attempt has unanswered questions")
	// ErrNoSubmissions is the explicit "no stats yet" state for analytics.
	ErrNoSubmissions = errors.New("quiz has no submissions")
	// ErrEmailTaken is returned on sign-up with an already registered email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers unknown email or wrong password on sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound indicates no user record for the given id or email.
	ErrUserNotFound = errors.New("user not found")
)

// ValidationError reports why an input was rejected. No partial save happens
// when validation fails.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// Validate checks the authoring invariants: non-empty title, at least one
// question, non-empty prompts, 2-6 non-empty options, correct index in range.
func (q *Quiz) Validate() error {
	var problems []string
	if strings.TrimSpace(q.Title) == "" {
		problems = append(problems, "title must not be empty")
	}
	if len(q.Questions) == 0 {
		problems = append(problems, "quiz needs at least one question")
	}
	for i, question := range q.Questions {
		if strings.TrimSpace(question.Text) == "" {
			problems = append(problems, fmt.Sprintf("question %d has no text", i+1))
		}
		if len(question.Options) < MinOptions || len(question.Options) > MaxOptions {
			problems = append(problems, fmt.Sprintf("question %d must have between %d and %d options", i+1, MinOptions, MaxOptions))
		}
		for j, option := range question.Options {
			if strings.TrimSpace(option) == "" {
				problems = append(problems, fmt.Sprintf("question %d option %d is empty", i+1, j+1))
			}
		}
		if question.CorrectOption < 0 || question.CorrectOption >= len(question.Options) {
			problems = append(problems, fmt.Sprintf("question %d correct option out of range", i+1))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quizforge/internal/domain"
)

const (
	// DefaultSweepDays is the age threshold for the delete-old sweep.
	DefaultSweepDays = 90
	// DefaultMinResponses is the response-count threshold for the delete-inactive sweep.
	DefaultMinResponses = 5
)

// QuizRepository abstracts how quiz documents are stored (in-memory, Postgres,
// Redis-cached, etc). The store assigns ids on insert.
type QuizRepository interface {
	Insert(ctx context.Context, quiz domain.Quiz) (string, error)
	Get(ctx context.Context, id string) (domain.Quiz, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error)
	ListByOwnerCreatedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]domain.Quiz, error)
	ListByOwnerMaxResponses(ctx context.Context, ownerID string, maxResponses int) ([]domain.Quiz, error)
	Update(ctx context.Context, quiz domain.Quiz) error
	IncrementResponses(ctx context.Context, id string, delta int) error
	Delete(ctx context.Context, id string) error
}

// SubmissionRepository stores completed attempts. Submissions are immutable:
// insert, list by quiz, delete — never update.
type SubmissionRepository interface {
	Insert(ctx context.Context, submission domain.QuizSubmission) (string, error)
	ListByQuiz(ctx context.Context, quizID string) ([]domain.QuizSubmission, error)
	Delete(ctx context.Context, id string) error
}

// QuizService contains the quiz lifecycle, attempt, analytics, and sweep use cases.
type QuizService struct {
	quizzes     QuizRepository
	submissions SubmissionRepository
	feed        *StatsFeed
	log         *zap.Logger
	now         func() time.Time
	newID       func() string
}

func NewQuizService(quizzes QuizRepository, submissions SubmissionRepository, feed *StatsFeed, log *zap.Logger) *QuizService {
	return NewQuizServiceWithClock(quizzes, submissions, feed, log, time.Now)
}

// NewQuizServiceWithClock is for tests needing deterministic timestamps.
func NewQuizServiceWithClock(quizzes QuizRepository, submissions SubmissionRepository, feed *StatsFeed, log *zap.Logger, now func() time.Time) *QuizService {
	if log == nil {
		log = zap.NewNop()
	}
	if feed == nil {
		feed = NewStatsFeed()
	}
	return &QuizService{
		quizzes:     quizzes,
		submissions: submissions,
		feed:        feed,
		log:         log,
		now:         now,
		newID:       uuid.NewString,
	}
}

// Feed exposes the live stats feed for transport subscriptions.
func (s *QuizService) Feed() *StatsFeed {
	return s.feed
}

// CreateQuiz validates and inserts a new quiz with a zeroed response counter.
// Nothing is persisted when validation fails.
func (s *QuizService) CreateQuiz(ctx context.Context, creatorID, title, description string, questions []domain.Question, publish bool) (domain.Quiz, error) {
	quiz := domain.Quiz{
		CreatedBy:   creatorID,
		Title:       title,
		Description: description,
		CreatedAt:   s.now(),
		Questions:   questions,
		IsPublished: publish,
		Responses:   0,
	}
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == "" {
			quiz.Questions[i].ID = s.newID()
		}
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}

	id, err := s.quizzes.Insert(ctx, quiz)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("insert quiz: %w", err)
	}
	quiz.ID = id
	return quiz, nil
}

// GetQuiz is the respondent-facing read: drafts are invisible to anyone but
// their creator, surfacing as not-found rather than hinting they exist.
func (s *QuizService) GetQuiz(ctx context.Context, quizID, actorID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !quiz.IsPublished && quiz.CreatedBy != actorID {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

// GetForOwner fetches a quiz for creator-only operations. A quiz that exists
// but belongs to someone else is ErrNotOwner, never ErrQuizNotFound.
func (s *QuizService) GetForOwner(ctx context.Context, actorID, quizID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.CreatedBy != actorID {
		return domain.Quiz{}, domain.ErrNotOwner
	}
	return quiz, nil
}

// ListQuizzes returns every quiz owned by the user, drafts included.
func (s *QuizService) ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	return s.quizzes.ListByOwner(ctx, ownerID)
}

// UpdateQuiz replaces the editable fields of an owned quiz. Creation metadata
// and the response counter survive the edit.
func (s *QuizService) UpdateQuiz(ctx context.Context, actorID string, quiz domain.Quiz) (domain.Quiz, error) {
	existing, err := s.GetForOwner(ctx, actorID, quiz.ID)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.CreatedBy = existing.CreatedBy
	quiz.CreatedAt = existing.CreatedAt
	quiz.Responses = existing.Responses
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == "" {
			quiz.Questions[i].ID = s.newID()
		}
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.quizzes.Update(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("update quiz: %w", err)
	}
	return quiz, nil
}

// SetPublished flips the published flag on an owned quiz.
func (s *QuizService) SetPublished(ctx context.Context, actorID, quizID string, published bool) (domain.Quiz, error) {
	quiz, err := s.GetForOwner(ctx, actorID, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.IsPublished = published
	if err := s.quizzes.Update(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("update quiz: %w", err)
	}
	return quiz, nil
}

// DeleteQuiz removes an owned quiz and every submission referencing it, same
// cascade as the sweeps.
func (s *QuizService) DeleteQuiz(ctx context.Context, actorID, quizID string) error {
	if _, err := s.GetForOwner(ctx, actorID, quizID); err != nil {
		return err
	}
	return s.cascadeDelete(ctx, quizID)
}

// SubmitAttempt scores a respondent's selections against a published quiz,
// persists the submission, and bumps the quiz's response counter. The counter
// increment is a separate best-effort call: if it fails the submission still
// stands and the counter under-counts until the next successful bump.
func (s *QuizService) SubmitAttempt(ctx context.Context, quizID, studentName string, selections []int) (domain.QuizSubmission, error) {
	if strings.TrimSpace(studentName) == "" {
		return domain.QuizSubmission{}, &domain.ValidationError{Problems: []string{"student name must not be empty"}}
	}
	quiz, err := s.GetQuiz(ctx, quizID, "")
	if err != nil {
		return domain.QuizSubmission{}, err
	}

	answers, score, err := ScoreAttempt(quiz.Questions, selections)
	if err != nil {
		return domain.QuizSubmission{}, err
	}

	submission := domain.QuizSubmission{
		QuizID:         quiz.ID,
		SubmittedAt:    s.now(),
		StudentName:    studentName,
		Answers:        answers,
		Score:          score,
		TotalQuestions: len(quiz.Questions),
	}
	id, err := s.submissions.Insert(ctx, submission)
	if err != nil {
		return domain.QuizSubmission{}, fmt.Errorf("insert submission: %w", err)
	}
	submission.ID = id

	if err := s.quizzes.IncrementResponses(ctx, quiz.ID, 1); err != nil {
		s.log.Warn("response counter increment failed",
			zap.String("quizId", quiz.ID), zap.Error(err))
	}

	s.publishStats(ctx, quiz)
	return submission, nil
}

// GetStats derives the aggregate analytics for an owned quiz from its raw
// submission set. Zero submissions surfaces domain.ErrNoSubmissions.
func (s *QuizService) GetStats(ctx context.Context, actorID, quizID string) (domain.QuizStats, error) {
	quiz, err := s.GetForOwner(ctx, actorID, quizID)
	if err != nil {
		return domain.QuizStats{}, err
	}
	submissions, err := s.submissions.ListByQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizStats{}, fmt.Errorf("list submissions: %w", err)
	}
	return ComputeStats(quiz, submissions)
}

// SweepOldQuizzes deletes the caller's quizzes created strictly before
// now-daysOld, cascading to their submissions. Returns how many quizzes went.
// The threshold is taken as given; callers that allow omitting it substitute
// DefaultSweepDays themselves, so an explicit zero keeps its meaning.
func (s *QuizService) SweepOldQuizzes(ctx context.Context, ownerID string, daysOld int) (int, error) {
	cutoff := s.now().AddDate(0, 0, -daysOld)
	quizzes, err := s.quizzes.ListByOwnerCreatedBefore(ctx, ownerID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("select old quizzes: %w", err)
	}
	return s.sweep(ctx, quizzes), nil
}

// SweepInactiveQuizzes deletes the caller's quizzes with at most minResponses
// responses, regardless of age, with the same cascade. A threshold of zero
// sweeps exactly the quizzes nobody has answered.
func (s *QuizService) SweepInactiveQuizzes(ctx context.Context, ownerID string, minResponses int) (int, error) {
	quizzes, err := s.quizzes.ListByOwnerMaxResponses(ctx, ownerID, minResponses)
	if err != nil {
		return 0, fmt.Errorf("select inactive quizzes: %w", err)
	}
	return s.sweep(ctx, quizzes), nil
}

// sweep fans the cascade out per quiz. A failure on one quiz skips it and the
// sweep continues; re-running after a partial failure finishes the job.
func (s *QuizService) sweep(ctx context.Context, quizzes []domain.Quiz) int {
	var deleted atomic.Int64
	var group errgroup.Group
	for _, quiz := range quizzes {
		quiz := quiz
		group.Go(func() error {
			if err := s.cascadeDelete(ctx, quiz.ID); err != nil {
				s.log.Warn("sweep: skipping quiz",
					zap.String("quizId", quiz.ID), zap.Error(err))
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	_ = group.Wait()
	return int(deleted.Load())
}

// cascadeDelete removes a quiz's submissions, then the quiz itself. The quiz
// document only goes once every submission is gone, so a crash in between
// leaves a retryable state, never a half-visible quiz.
func (s *QuizService) cascadeDelete(ctx context.Context, quizID string) error {
	submissions, err := s.submissions.ListByQuiz(ctx, quizID)
	if err != nil {
		return fmt.Errorf("list submissions for %s: %w", quizID, err)
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, submission := range submissions {
		submission := submission
		group.Go(func() error {
			if err := s.submissions.Delete(gctx, submission.ID); err != nil {
				return fmt.Errorf("delete submission %s: %w", submission.ID, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if err := s.quizzes.Delete(ctx, quizID); err != nil {
		return fmt.Errorf("delete quiz %s: %w", quizID, err)
	}
	return nil
}

func (s *QuizService) publishStats(ctx context.Context, quiz domain.Quiz) {
	if !s.feed.HasWatchers(quiz.ID) {
		return
	}
	submissions, err := s.submissions.ListByQuiz(ctx, quiz.ID)
	if err != nil {
		s.log.Warn("stats feed refresh failed", zap.String("quizId", quiz.ID), zap.Error(err))
		return
	}
	stats, err := ComputeStats(quiz, submissions)
	if err != nil {
		return
	}
	s.feed.Publish(quiz.ID, stats)
}

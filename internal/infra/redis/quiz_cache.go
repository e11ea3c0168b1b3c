package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizforge/internal/app"
	"quizforge/internal/domain"
)

// QuizCache is a read-through layer over a QuizRepository. Published quizzes
// are cached as JSON (key quiz:{id}) with TTL so respondent reads skip the
// primary store; writes pass through and drop the key. Drafts are never
// cached: they are owner-only and rarely read.
type QuizCache struct {
	client *redis.Client
	next   app.QuizRepository
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizCache(client *redis.Client, next app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client: client,
		next:   next,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) Get(ctx context.Context, id string) (domain.Quiz, error) {
	key := c.key(id)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err == nil && quiz.ID != "" {
			return quiz, nil
		}
		// Malformed cache entry; fall through to the store.
		_ = c.client.Del(ctx, key).Err()
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var quiz domain.Quiz
			if err := json.Unmarshal(raw, &quiz); err == nil && quiz.ID != "" {
				return quiz, nil
			}
		}

		quiz, err := c.next.Get(ctx, id)
		if err != nil {
			return domain.Quiz{}, err
		}
		if quiz.IsPublished {
			if raw, err := json.Marshal(quiz); err == nil {
				_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	// Every caller deduped into the same flight gets the same result value, so
	// hand each one its own copy of the question slices.
	return cloneQuiz(result.(domain.Quiz)), nil
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

func (c *QuizCache) Insert(ctx context.Context, quiz domain.Quiz) (string, error) {
	return c.next.Insert(ctx, quiz)
}

func (c *QuizCache) ListByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	return c.next.ListByOwner(ctx, ownerID)
}

func (c *QuizCache) ListByOwnerCreatedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]domain.Quiz, error) {
	return c.next.ListByOwnerCreatedBefore(ctx, ownerID, cutoff)
}

func (c *QuizCache) ListByOwnerMaxResponses(ctx context.Context, ownerID string, maxResponses int) ([]domain.Quiz, error) {
	return c.next.ListByOwnerMaxResponses(ctx, ownerID, maxResponses)
}

func (c *QuizCache) Update(ctx context.Context, quiz domain.Quiz) error {
	if err := c.next.Update(ctx, quiz); err != nil {
		return err
	}
	_ = c.client.Del(ctx, c.key(quiz.ID)).Err()
	return nil
}

func (c *QuizCache) IncrementResponses(ctx context.Context, id string, delta int) error {
	if err := c.next.IncrementResponses(ctx, id, delta); err != nil {
		return err
	}
	_ = c.client.Del(ctx, c.key(id)).Err()
	return nil
}

func (c *QuizCache) Delete(ctx context.Context, id string) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	_ = c.client.Del(ctx, c.key(id)).Err()
	return nil
}

func (c *QuizCache) key(id string) string {
	return "quiz:" + id
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"quizforge/internal/app"
	"quizforge/internal/auth"
	"quizforge/internal/domain"
	"quizforge/internal/infra/postgres"
	pgmigrations "quizforge/internal/infra/postgres/migrations"
	infraredis "quizforge/internal/infra/redis"
)

func TestQuizLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	applyMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizzes := infraredis.NewQuizCache(redisClient, postgres.NewQuizStore(pool), 5*time.Minute)
	submissions := postgres.NewSubmissionStore(pool)
	service := app.NewQuizService(quizzes, submissions, app.NewStatsFeed(), zap.NewNop())
	authService := auth.NewService(postgres.NewUserStore(pool), "integration-secret", time.Hour)

	session, err := authService.SignUp(ctx, "creator@example.com", "hunter22", "Creator")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	quiz, err := service.CreateQuiz(ctx, session.UserID, "European Capitals", "", []domain.Question{
		{Text: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectOption: 0},
		{Text: "Capital of Spain?", Options: []string{"Seville", "Madrid"}, CorrectOption: 1},
		{Text: "Capital of Italy?", Options: []string{"Milan", "Naples", "Rome"}, CorrectOption: 2},
	}, true)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	// A cached read followed by a cache-invalidating write must stay coherent.
	if _, err := service.GetQuiz(ctx, quiz.ID, ""); err != nil {
		t.Fatalf("public read: %v", err)
	}

	if _, err := service.SubmitAttempt(ctx, quiz.ID, "Dana", []int{0, 1, 0}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := service.SubmitAttempt(ctx, quiz.ID, "Evan", []int{0, 1, 2}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	reloaded, err := service.GetQuiz(ctx, quiz.ID, "")
	if err != nil {
		t.Fatalf("reload quiz: %v", err)
	}
	if reloaded.Responses != 2 {
		t.Fatalf("expected response counter 2 after invalidation, got %d", reloaded.Responses)
	}

	stats, err := service.GetStats(ctx, session.UserID, quiz.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalResponses != 2 || stats.AverageScore != 2.5 || stats.HighestScore != 3 || stats.LowestScore != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// The inactive sweep (threshold 5) takes the quiz and cascades.
	deleted, err := service.SweepInactiveQuizzes(ctx, session.UserID, 5)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 quiz swept, got %d", deleted)
	}
	if _, err := service.GetQuiz(ctx, quiz.ID, session.UserID); err != domain.ErrQuizNotFound {
		t.Fatalf("expected quiz gone, got %v", err)
	}
	leftovers, err := submissions.ListByQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("expected cascade, %d submissions left", len(leftovers))
	}
}

func TestAuthRoundTripAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	applyMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	service := auth.NewService(postgres.NewUserStore(pool), "integration-secret", time.Hour)

	session, err := service.SignUp(ctx, "Creator@Example.com", "hunter22", "Creator")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	user, err := service.Verify(ctx, session.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.Email != "creator@example.com" {
		t.Fatalf("expected normalized email persisted, got %q", user.Email)
	}

	resetToken, err := service.SendPasswordReset(ctx, "creator@example.com")
	if err != nil || resetToken == "" {
		t.Fatalf("reset request: token=%q err=%v", resetToken, err)
	}
	if err := service.ResetPassword(ctx, resetToken, "newpw"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := service.SignIn(ctx, "creator@example.com", "newpw"); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

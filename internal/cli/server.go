package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizforge/internal/app"
	"quizforge/internal/auth"
	"quizforge/internal/config"
	"quizforge/internal/infra/memory"
	"quizforge/internal/infra/postgres"
	rediscache "quizforge/internal/infra/redis"
	transport "quizforge/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	service, authService, cleanup, err := buildServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	handler := transport.NewHandler(service, authService, log)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quizforge", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildServices assembles repositories and use-case services from config.
// Without Postgres the server runs fully in memory, which is enough for
// local development and tests.
func buildServices(ctx context.Context, cfg config.Config, log *zap.Logger) (*app.QuizService, *auth.Service, func(), error) {
	var (
		quizzes     app.QuizRepository
		submissions app.SubmissionRepository
		users       auth.UserStore
		cleanup     = func() {}
	)

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup = pool.Close
		quizzes = postgres.NewQuizStore(pool)
		submissions = postgres.NewSubmissionStore(pool)
		users = postgres.NewUserStore(pool)
	} else {
		quizzes = memory.NewQuizStore()
		submissions = memory.NewSubmissionStore()
		users = memory.NewUserStore()
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		quizTTL := config.TTLDuration(cfg.Redis.QuizTTL, 10*time.Minute)
		quizzes = rediscache.NewQuizCache(client, quizzes, quizTTL)
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = os.Getenv("QUIZFORGE_JWT_SECRET")
	}
	if secret == "" {
		secret = "quizforge-dev-secret"
	}
	tokenTTL := config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour)
	authService := auth.NewService(users, secret, tokenTTL)

	service := app.NewQuizService(quizzes, submissions, app.NewStatsFeed(), log)
	return service, authService, cleanup, nil
}

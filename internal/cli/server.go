package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/chypac/olimpiafa/internal/app"
	"github.com/chypac/olimpiafa/internal/config"
	"github.com/chypac/olimpiafa/internal/domain"
	"github.com/chypac/olimpiafa/internal/infra/file"
	"github.com/chypac/olimpiafa/internal/infra/memory"
	pginfra "github.com/chypac/olimpiafa/internal/infra/postgres"
	redisinfra "github.com/chypac/olimpiafa/internal/infra/redis"
	"github.com/chypac/olimpiafa/internal/question"
	"github.com/chypac/olimpiafa/internal/scoring"
	transport "github.com/chypac/olimpiafa/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", configPath).Msg("config not loaded, using defaults")
		cfg = config.Config{}
	}

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

	clock := clockwork.NewRealClock()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, app.DefaultStalenessHorizon)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader question.Loader
	switch {
	case cfg.Questions.File != "":
		loader = question.NewFileLoader(cfg.Questions.File)
	case pool != nil:
		loader = pginfra.NewQuestionLoader(pool, cfg.Questions.SetID)
	default:
		loader = question.NewStaticLoader(sampleQuestions())
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionRepository
	var source scoring.QuestionSource
	if redisClient != nil {
		cache := redisinfra.NewQuestionCache(redisClient, loader, questionTTL)
		questions, source = cache, cache
	} else {
		cache := memory.NewQuestionCache(loader, questionTTL)
		questions, source = cache, cache
	}

	claimTTL := config.TTLDuration(cfg.Identity.ClaimTTL, memory.DefaultClaimTTL)
	validIDs, err := loadValidIDs(cfg.Identity.ValidIDsFile)
	if err != nil {
		return err
	}

	var registry app.IdentityRegistry
	if redisClient != nil {
		r := redisinfra.NewIdentityRegistry(redisClient, claimTTL)
		if len(validIDs) > 0 {
			if err := r.SeedValidIDs(ctx, validIDs); err != nil {
				return err
			}
		}
		registry = r
	} else {
		registry = memory.NewIdentityRegistry(validIDs, claimTTL, clock)
	}
	gate := app.NewIdentityGate(registry, logger)

	progressPath := cfg.Session.ProgressFile
	if progressPath == "" {
		progressPath = file.DefaultPath
	}
	var mirror app.Mirror
	if redisClient != nil {
		mirror = redisinfra.NewSnapshotMirror(redisClient, redisTTL)
	}
	horizon := config.TTLDuration(cfg.Session.StalenessHorizon, app.DefaultStalenessHorizon)
	store := app.NewPersistence(file.NewSnapshotStore(progressPath), mirror, horizon, clock, logger)

	var sink scoring.ResultSink
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		sink = pginfra.NewResultSink(db)
	}
	scorer := scoring.NewScorer(source, sink, registry, clock, logger)

	retry := app.RetryPolicy{
		Attempts: cfg.Session.FinalizeAttempts,
		Backoff:  config.TTLDuration(cfg.Session.FinalizeBackoff, 500*time.Millisecond),
		Timeout:  config.TTLDuration(cfg.Session.FinalizeTimeout, 10*time.Second),
	}
	if retry.Attempts < 1 {
		retry.Attempts = 3
	}

	service := app.NewQuizService(gate, questions, scorer, store, clock, retry, logger)
	wsHandler := transport.NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting quiz session service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadValidIDs reads one participant identifier per line; blank lines and
// lines starting with # are skipped. An empty path yields the sample roster.
func loadValidIDs(path string) ([]string, error) {
	if path == "" {
		return []string{"demo-1", "demo-2", "demo-3"}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}

// sampleQuestions provides a minimal question set for running without a
// questions file or database.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:        "q1",
			Title:     "Question 1",
			Text:      "What is 2 + 2?",
			Hint:      "Count on your fingers.",
			Answer:    "4",
			Score:     1,
			TimeLimit: 60,
		},
		{
			ID:        "q2",
			Title:     "Question 2",
			Text:      "What is the capital of France?",
			Hint:      "The city of lights.",
			Answer:    "paris",
			Score:     2,
			TimeLimit: 60,
		},
		{
			ID:        "q3",
			Title:     "Question 3",
			Text:      "Solve: 1.5 * 2",
			Hint:      "Half of six.",
			Answer:    "3",
			Score:     2,
			TimeLimit: 90,
		},
	}
}

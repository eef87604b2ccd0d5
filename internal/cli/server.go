package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"competition-session-service/internal/app"
	"competition-session-service/internal/config"
	"competition-session-service/internal/domain"
	"competition-session-service/internal/infra/memory"
	pgstore "competition-session-service/internal/infra/postgres"
	redisstore "competition-session-service/internal/infra/redis"
	"competition-session-service/internal/infra/scoring"
	"competition-session-service/internal/logger"
	"competition-session-service/internal/mathsplit"
	"competition-session-service/internal/submission"
	transport "competition-session-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the competition server",
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
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	progress, err := progressStore(cfg, redisClient, pool)
	if err != nil {
		return err
	}

	var backing app.PayloadStore
	if pool != nil {
		backing = pgstore.NewPayloadStore(pool)
	}
	payloadTTL := config.TTLDuration(cfg.Payload.TTL, time.Hour)
	var payloads app.PayloadStore
	if redisClient != nil {
		payloads = redisstore.NewPayloadStore(redisClient, backing, payloadTTL)
	} else {
		payloads = memory.NewPayloadStore(backing, payloadTTL)
	}

	var registry app.EngineRegistry
	if redisClient != nil {
		registry = redisstore.NewEngineRegistry(redisClient, cfg.Server.Instance, redisTTL)
	} else {
		registry = memory.NewEngineRegistry()
	}

	var (
		submitter submission.Submitter
		reporter  app.Reporter
	)
	if cfg.Scoring.BaseURL != "" {
		client := scoring.NewClient(cfg.Scoring.BaseURL, cfg.Scoring.Token, config.TTLDuration(cfg.Scoring.Timeout, 15*time.Second))
		submitter, reporter = client, client
	} else {
		log.Warn().Msg("scoring.baseURL not set, submissions are kept in memory")
		scorer := memory.NewScorer()
		submitter, reporter = scorer, scorer
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	var violations app.ViolationSink = logSink{log: log}
	if redisClient != nil && pool != nil {
		violations = redisstore.NewViolationQueue(redisClient)
		worker := pgstore.NewViolationWorker(pool, redisClient, log)
		go worker.Start(workerCtx)
	}

	service := app.NewCompetitionService(registry, app.Deps{
		Progress:    progress,
		Payloads:    payloads,
		Submitter:   submitter,
		Reporter:    reporter,
		Violations:  violations,
		Renderer:    mathsplit.HTMLRenderer{},
		Logger:      log,
		ExemptField: cfg.Guard.ReportField,
	})
	wsHandler := transport.NewWSHandler(service, log, cfg.Server.AllowedOrigins...)

	mux := http.NewServeMux()
	transport.NewAPIHandler(service, log).Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Str("progress", cfg.Progress.Backend).Msg("Starting competition service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("Shutting down server")
	case <-ctx.Done():
		log.Info().Msg("Context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	service.Shutdown()
	stopWorker()
	return err
}

func progressStore(cfg config.Config, client *redis.Client, pool *pgxpool.Pool) (app.ProgressStore, error) {
	ttl := config.TTLDuration(cfg.Progress.TTL, 24*time.Hour)
	switch cfg.Progress.Backend {
	case "memory":
		return memory.NewProgressStore(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("progress backend redis needs redis.addr")
		}
		return redisstore.NewProgressStore(client, ttl), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("progress backend postgres needs postgres.url")
		}
		return pgstore.NewProgressStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown progress backend %q", cfg.Progress.Backend)
	}
}

// logSink records violations in the log when no queue is configured.
type logSink struct {
	log zerolog.Logger
}

func (s logSink) Record(_ context.Context, v domain.Violation) error {
	s.log.Warn().
		Str("competition_id", v.CompetitionID).
		Str("kind", v.Kind).
		Str("target", v.Target).
		Msg("Suppressed input")
	return nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"example.com/stravahub/internal/api"
	"example.com/stravahub/internal/auth"
	"example.com/stravahub/internal/config"
	"example.com/stravahub/internal/domain"
	"example.com/stravahub/internal/observability"
	"example.com/stravahub/internal/outbox"
	persistence "example.com/stravahub/internal/persistence/postgres"
	"example.com/stravahub/internal/strava"
	"example.com/stravahub/internal/syncer"
	httptransport "example.com/stravahub/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logger, err := observability.NewLogger(os.Stdout, cfg.LogLevel, "stravahub-api")
	if err != nil {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger.Warn().Err(err).Msg("falling back to default log level")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	applied, err := persistence.Migrate(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}
	if len(applied) > 0 {
		logger.Info().Strs("migrations", applied).Msg("schema migrated")
	}

	repo := persistence.NewRepository(pool)
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithProducerLogger(logger.With().Str("component", "kafka").Logger()))
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithLogger(logger.With().Str("component", "outbox").Logger()))

	go dispatcher.Start(ctx)

	client := strava.NewClient(
		strava.WithAuthURL(cfg.Strava.AuthURL),
		strava.WithBaseURL(cfg.Strava.APIURL),
		strava.WithHTTPClient(&http.Client{Timeout: cfg.Strava.HTTPTimeout}),
		strava.WithLogger(logger.With().Str("component", "strava").Logger()),
	)
	engine := syncer.NewEngine(client,
		syncer.WithMaxPages(cfg.Sync.MaxPages),
		syncer.WithPageSize(cfg.Sync.PageSize),
		syncer.WithRunRecorder(repo),
		syncer.WithLogger(logger.With().Str("component", "syncer").Logger()),
	)

	service := domain.NewService(repo)

	handler := api.NewHandler(service, engine, func() domain.ActivityStore { return repo.Session() }, repo, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Simple CORS middleware for local dev
	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:5173")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	requestLogger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("request")
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	// The write timeout has to outlast a 20-page sync.
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}, requestLogger(cors(authMiddleware.Wrap(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).Msg("stravahub api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	dispatcher.Wait()
}

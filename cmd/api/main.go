package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/stepcause/internal/api"
	"example.com/stepcause/internal/attribution"
	"example.com/stepcause/internal/auth"
	"example.com/stepcause/internal/causes"
	"example.com/stepcause/internal/config"
	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/integrity"
	"example.com/stepcause/internal/lock"
	"example.com/stepcause/internal/messages"
	"example.com/stepcause/internal/observability"
	"example.com/stepcause/internal/outbox"
	"example.com/stepcause/internal/persistence/memory"
	"example.com/stepcause/internal/persistence/postgres"
	"example.com/stepcause/internal/similarity"
	httptransport "example.com/stepcause/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stepcause: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store domain.Store
		pool  *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.NewStore()
	default:
		pool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		store = postgres.NewRepository(pool)
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		locker = lock.NewRedisLocker(client, lock.RedisOptions{})
		logger.Info("per-user lock backed by redis", zap.String("addr", cfg.RedisAddr))
	}

	var generator similarity.Generator
	if cfg.SimilarityEnabled() {
		gemini, err := similarity.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return err
		}
		generator = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set; duplicate cause detection disabled")
	}
	classifier := similarity.NewClassifier(generator,
		similarity.WithTimeout(cfg.SimilarityTimeout),
		similarity.WithRetries(cfg.SimilarityRetries),
		similarity.WithLogger(logger.Named("similarity")),
	)

	validator := integrity.NewValidator(integrity.Config{
		MaxStepsPerMinute: cfg.MaxStepsPerMinute,
		MaxSpeedKmh:       cfg.MaxSpeedKmh,
	})

	stepService := attribution.NewService(store, validator, locker, logger.Named("attribution"),
		attribution.WithMaxSteps(cfg.MaxStepsPerRequest))
	causeService := causes.NewService(store, classifier, locker, logger.Named("causes"))
	messageService := messages.NewService(store, logger.Named("messages"))

	handler := api.NewHandler(stepService, causeService, messageService, logger.Named("api"), cfg.GeminiModel)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	var root http.Handler = authMiddleware.Wrap(mux)
	if cfg.RateLimitRPS > 0 {
		root = httptransport.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware(root)
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.SimilarityTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.RequestLogger(logger)(httptransport.CORS(cfg.CORSOrigin)(root)))

	g, gctx := errgroup.WithContext(ctx)

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 && pool != nil {
		producer := outbox.NewKafkaProducer(brokers)
		defer producer.Close()

		dispatcher := outbox.NewDispatcher(outbox.NewPostgresStore(pool), producer, logger.Named("outbox"), cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		g.Go(func() error {
			dispatcher.Start(gctx)
			return nil
		})
	} else {
		logger.Info("outbox dispatcher disabled", zap.Bool("postgres", pool != nil), zap.Int("brokers", len(brokers)))
	}

	g.Go(func() error {
		logger.Info("stepcause listening", zap.String("addr", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

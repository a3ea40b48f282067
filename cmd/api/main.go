package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"monositi/internal/api"
	"monositi/internal/auth"
	"monositi/internal/config"
	"monositi/internal/database"
	"monositi/internal/docstore"
	"monositi/internal/domain"
	"monositi/internal/events"
	"monositi/internal/logging"
	"monositi/internal/metrics"
	"monositi/internal/notify"
	"monositi/internal/repository"
	"monositi/internal/service"
	"monositi/internal/storage"
	"monositi/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	bus := events.NewEventBus()
	if cfg.Kafka.Enabled {
		forwarder := events.NewKafkaForwarder(events.NewKafkaWriter(cfg.Kafka), logging.Component(logger, "kafka"))
		forwarder.Attach(bus)
		defer forwarder.Close()
	}
	if notifier := initTelegram(cfg, bus, logger); notifier != nil {
		go notifier.Run(ctx)
	}

	mongoClient, index := initListingIndex(ctx, cfg, logger)
	if mongoClient != nil {
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	}

	svc, err := buildServices(ctx, cfg, db, redisClient, index, bus, logger)
	if err != nil {
		return err
	}

	var indexWorker *worker.IndexWorker
	if index != nil {
		indexWorker = worker.NewIndexWorker(db, index, redisClient, worker.Backoff{
			Attempts: cfg.Indexer.MaxRetries,
			Base:     cfg.Indexer.InitialDelay,
			Ceiling:  cfg.Indexer.MaxDelay,
		}, cfg.Indexer.PollInterval, logging.Component(logger, "index_worker"))
		indexWorker.Attach(bus)
		go indexWorker.Start(ctx)
	}

	httpServer := api.NewHTTPServer(cfg.API, svc, logger)

	scheduler, err := initScheduler(ctx, cfg, db, indexWorker, httpServer, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	startMetrics(ctx, cfg, logger)

	return startServer(ctx, httpServer, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		// The failover store keeps probing; the worker falls back to its local queue.
		logger.Warn().Err(err).Msg("redis unreachable at startup")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func initTelegram(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *notify.AdminNotifier {
	if !cfg.Telegram.Enabled {
		return nil
	}
	client := &http.Client{Timeout: cfg.Telegram.Timeout}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, admin alerts disabled")
		return nil
	}
	bot.Debug = cfg.Telegram.Debug
	notifier := notify.NewAdminNotifier(bot, cfg.Telegram.AdminChatIDs, cfg.Telegram.QueueSize, logging.Component(logger, "telegram"))
	notifier.Attach(bus)
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram admin alerts enabled")
	return notifier
}

// initListingIndex connects the Mongo geospatial index. Without it, nearby
// search falls back to the SQLite bounding-box scan.
func initListingIndex(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*mongo.Client, *docstore.ListingIndex) {
	if !cfg.Mongo.Enabled {
		return nil, nil
	}
	client, err := docstore.NewMongoClient(ctx, cfg.Mongo)
	if err != nil {
		logger.Warn().Err(err).Msg("mongo unavailable, nearby search uses sqlite")
		return nil, nil
	}
	index := docstore.NewListingIndex(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
	if err := index.EnsureIndexes(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure mongo indexes")
	}
	logger.Info().Str("database", cfg.Mongo.Database).Msg("mongo listing index connected")
	return client, index
}

func buildServices(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	index *docstore.ListingIndex,
	bus *events.EventBus,
	logger *zerolog.Logger,
) (api.Services, error) {
	var codes domain.CodeStore = repository.NewMemoryCodeStore()
	if redisClient != nil {
		codes = repository.NewFailoverCodeStore(repository.NewRedisCodeStore(redisClient), codes, logging.Component(logger, "code_store"))
	}

	var sender domain.CodeSender = notify.NewLogSender(logging.Component(logger, "code_sender"))
	if cfg.SMS.Enabled {
		sender = notify.NewSMSGateway(cfg.SMS, logging.Component(logger, "sms"))
	}

	var uploader domain.Uploader
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3Uploader(ctx, cfg.Storage)
		if err != nil {
			return api.Services{}, fmt.Errorf("init s3 uploader: %w", err)
		}
		uploader = s3
	}

	var primary domain.ListingLocator
	if index != nil {
		primary = index
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	ratings := service.NewRatingService(db, db, logging.Component(logger, "ratings"))

	return api.Services{
		Identity:   service.NewIdentityService(db, codes, sender, tokens, cfg.Auth, cfg.SMS.Timeout, logging.Component(logger, "identity")),
		Users:      service.NewUserService(db, logging.Component(logger, "users")),
		Listings:   service.NewListingService(db, db, uploader, bus, int64(cfg.Storage.MaxUploadMB)<<20, logging.Component(logger, "listings")),
		Catalog:    service.NewCatalogService(db, db, logging.Component(logger, "catalog")),
		Onboarding: service.NewOnboardingService(db, db, bus, logging.Component(logger, "onboarding")),
		Bookings:   service.NewBookingService(db, db, ratings, bus, logging.Component(logger, "bookings")),
		Enquiries:  service.NewEnquiryService(db, db, db, db, bus, logging.Component(logger, "enquiries")),
		Search:     service.NewSearchService(primary, db, db, logging.Component(logger, "search")),
		Ready:      db.PingContext,
	}, nil
}

func initScheduler(ctx context.Context, cfg *config.Config, db *database.DB, indexWorker *worker.IndexWorker, httpServer *api.HTTPServer, logger *zerolog.Logger) (*worker.Scheduler, error) {
	scheduler := worker.NewScheduler(ctx, 0, logger)
	if indexWorker != nil {
		if err := scheduler.Register("index_reconcile", cfg.Indexer.ReconcileSchedule, indexWorker.Reconcile); err != nil {
			return nil, fmt.Errorf("schedule index reconcile: %w", err)
		}
	}
	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
		if err := scheduler.Register("sqlite_backup", cfg.Backup.Schedule, backups.Run); err != nil {
			return nil, fmt.Errorf("schedule sqlite backup: %w", err)
		}
	}
	if httpServer != nil && cfg.API.RateLimit.RPS > 0 {
		if err := scheduler.Register("rate_limiter_sweep", cfg.API.RateLimit.SweepSchedule, httpServer.SweepRateLimiters); err != nil {
			return nil, fmt.Errorf("schedule rate limiter sweep: %w", err)
		}
	}
	return scheduler, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

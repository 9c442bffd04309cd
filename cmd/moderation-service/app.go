package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"chatguard/internal/aggregator"
	"chatguard/internal/api"
	"chatguard/internal/broker"
	"chatguard/internal/classifier"
	"chatguard/internal/config"
	"chatguard/internal/config_handler"
	"chatguard/internal/constants"
	"chatguard/internal/deduplication"
	"chatguard/internal/exemption"
	"chatguard/internal/logger"
	"chatguard/internal/notifier"
	"chatguard/internal/orchestrator"
	"chatguard/internal/pipeline"
	"chatguard/internal/registration"
	"chatguard/internal/store"
	"chatguard/internal/telegram"
	"chatguard/internal/webfetch"
	"chatguard/pkg/bootstrap"
	"chatguard/pkg/health"
	"chatguard/pkg/logging"
	"chatguard/pkg/metrics"
	"chatguard/pkg/middleware"
	"chatguard/pkg/migrations"
	"chatguard/pkg/models"
	"chatguard/pkg/ratelimit"
	"chatguard/pkg/retry"
	"chatguard/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	mongoClient    *mongo.Client
	postgresDB     *sql.DB
	dedup          *deduplication.Service
	exemption      *exemption.Service
	notifier       *notifier.Notifier
	chat           *telegram.Sender
	controller     *pipeline.Controller
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return err
	}

	if err := a.InitBroker(constants.ServiceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterModerationMetrics()
	metrics.RegisterDedupMetrics()
	metrics.RegisterHTTPMetrics()
	if a.Producer != nil {
		metrics.RegisterBrokerMetrics()
	}
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	a.initHTTPServer(ctx)
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	a.redis = rdb

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.mongoClient = mongoClient

	postgresDB, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	a.postgresDB = postgresDB

	if !a.Config.Database.RunMigrations {
		return nil
	}
	if a.postgresDB != nil {
		if err := migrations.RunPostgres(a.postgresDB); err != nil {
			return err
		}
	}
	if db := a.dbConnector.MongoDatabase(a.mongoClient); db != nil {
		if err := migrations.EnsureMongoIndexes(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initPipeline(ctx context.Context) error {
	clients, err := classifier.Build(a.Config, a.redis, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to build classifiers: %w", err)
	}
	orch := orchestrator.New(clients, a.Logger)

	dedupRepo, err := deduplication.NewRepository(a.Config, a.redis)
	if err != nil {
		return err
	}
	a.dedup = deduplication.NewService(dedupRepo, a.Config.Deduplication, a.Logger)

	exemptRepo, err := exemption.NewRepository(a.Config.Exemption, a.postgresDB)
	if err != nil {
		return err
	}
	a.exemption, err = exemption.NewService(exemptRepo, a.Config.Exemption, a.Logger)
	if err != nil {
		return err
	}
	if err := a.exemption.ReloadRules(ctx, true); err != nil {
		a.Logger.WarnwCtx(logging.WithServiceName(ctx, constants.ServiceName), "Failed to load exemption rules",
			"error", err,
		)
	}

	mongoDB := a.dbConnector.MongoDatabase(a.mongoClient)
	regRepo, err := a.registrationRepository(mongoDB)
	if err != nil {
		return err
	}

	st, err := store.New(a.Config.Storage, mongoDB, a.postgresDB)
	if err != nil {
		return err
	}

	if err := a.initNotifier(); err != nil {
		return err
	}

	var events pipeline.EventPublisher
	if a.Config.Notification.KafkaEvents && a.Producer != nil {
		events = notifier.NewEventPublisher(a.Producer, a.Config.Broker.Kafka.OutputTopic)
	}

	deps := pipeline.Dependencies{
		Dedup:        a.dedup,
		Exemption:    a.exemption,
		Registration: registration.NewGate(regRepo, a.Logger),
		Classifier:   orch,
		Aggregator:   aggregator.New(a.Config.Aggregation.SentimentPolicy, orch.Descriptors()),
		Store:        st,
		Notifier:     a.notifier,
		Events:       events,
		Fetcher:      webfetch.NewFetcher(a.Config.WebFetch),
	}
	a.controller = pipeline.New(deps, a.Logger)
	return nil
}

func (a *App) registrationRepository(mongoDB *mongo.Database) (registration.Repository, error) {
	switch a.Config.Storage.Type {
	case constants.StorageMongoDB:
		if mongoDB == nil {
			return nil, fmt.Errorf("mongodb registrations require a mongodb connection")
		}
		return registration.NewMongoRepository(mongoDB), nil
	case constants.StoragePostgres:
		if a.postgresDB == nil {
			return nil, fmt.Errorf("postgres registrations require a postgres connection")
		}
		return registration.NewPostgresRepository(a.postgresDB), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", a.Config.Storage.Type)
	}
}

// initNotifier builds the bot sender and the alert transports. SMTP is used
// when a host is configured; the debug chat mirror needs a bot token.
func (a *App) initNotifier() error {
	var transports []notifier.Transport

	if a.Config.Notification.SMTP.Host != "" {
		transports = append(transports, notifier.NewSMTPTransport(a.Config.Notification.SMTP))
	}

	if a.Config.Telegram.BotToken != "" {
		sender, err := telegram.NewSender(a.Config.Telegram)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
		a.chat = sender

		if a.Config.Notification.DebugChatID != 0 {
			transports = append(transports, notifier.NewTelegramTransport(sender, a.Config.Notification.DebugChatID))
		}
	}

	if len(transports) == 0 {
		a.Logger.Warn("No notification transport configured, alerts will not be delivered")
	}

	a.notifier = notifier.New(a.Logger, transports...)
	return nil
}

func (a *App) initHTTPServer(ctx context.Context) {
	healthRegistry := health.NewCheckerRegistry()
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	if a.postgresDB != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.postgresDB))
	}
	if a.Producer != nil {
		healthRegistry.RegisterOptional(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))
	if a.Config.RateLimit.Enabled {
		router.Use(ratelimit.RateLimitMiddleware(ctx, ratelimit.FromConfig(a.Config.RateLimit)))
	}

	opts := api.Options{
		Mailer:      a.notifier,
		Health:      healthRegistry,
		DebugChatID: a.Config.Notification.DebugChatID,
	}
	if a.chat != nil {
		opts.Chat = a.chat
	}
	api.NewHandler(a.controller, opts, a.Logger).RegisterRoutes(router)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeoutSeconds) * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		// ListenAndServe only returns once Shutdown is called.
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	if a.exemption != nil {
		g.Go(func() error {
			return a.exemption.StartReloader(gCtx)
		})
	}

	if a.Producer != nil && a.Config.Broker.Kafka.ConfigUpdateTopic != "" && a.exemption != nil {
		configConsumer, err := broker.NewConsumer(a.Config.Broker, a.Logger)
		if err != nil {
			a.Logger.WarnwCtx(logging.WithServiceName(ctx, constants.ServiceName), "Failed to create config event consumer, event-driven reload disabled",
				"error", err,
			)
		} else {
			configConsumer.SetServiceName(constants.ServiceName)
			defer configConsumer.Close()
			configEventHandler := config_handler.NewHandler(constants.ConfigTargetExemption, a.exemption, a.Logger)

			g.Go(func() error {
				a.Logger.InfowCtx(gCtx, "Starting config update event consumer",
					"topic", a.Config.Broker.Kafka.ConfigUpdateTopic,
				)
				return configConsumer.Consume(gCtx, a.Config.Broker.Kafka.ConfigUpdateTopic, configEventHandler.HandleConfigUpdateEvent)
			})
		}
	}

	if a.Consumer != nil {
		inputTopic := a.Config.Broker.Kafka.InputTopic
		if inputTopic == "" {
			inputTopic = constants.DefaultInputTopic
		}

		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Consuming chat updates", "topic", inputTopic)
			return a.Consumer.Consume(gCtx, inputTopic, handleChatUpdate(a.controller, a.Logger))
		})
	}

	return g.Wait()
}

type chatProcessor interface {
	ProcessChatMessage(ctx context.Context, msg models.Message) (models.Outcome, error)
}

// handleChatUpdate feeds broker envelopes into the pipeline. Undecodable
// payloads are fatal so the consumer sends them to the DLQ without retries.
func handleChatUpdate(p chatProcessor, log logger.Logger) broker.HandlerFunc {
	return func(ctx context.Context, env models.MessageEnvelope) error {
		msg, err := env.DecodeMessage()
		if err != nil {
			return retry.NewFatalError(fmt.Errorf("decoding chat message %s: %w", env.ID, err))
		}

		outcome, err := p.ProcessChatMessage(ctx, msg)
		if err != nil {
			return err
		}

		log.InfowCtx(ctx, "Chat update processed",
			"message_id", msg.ID,
			"status", outcome.Status,
		)
		return nil
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down moderation service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.dedup != nil {
			a.dedup.StopCacheMetricsUpdater()
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.postgresDB, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}

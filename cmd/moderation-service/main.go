package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "chatguard/cmd/moderation-service/docs"
	"chatguard/internal/config"
	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/pkg/bootstrap"
	"chatguard/pkg/logging"
	"chatguard/pkg/migrations"
)

var (
	configFile string
)

// @title           Chatguard Moderation Service API
// @version         1.0
// @description     Classifies chat messages, free text and web pages and alerts chat owners about violations

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceName,
		Short: "Moderation service for group chats",
		Long:  "Moderation service classifies chat messages, texts and pages and notifies chat owners about violations",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(earlyLog *logging.EarlyLog) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		earlyLog.Warn("Failed to read .env file: %v", err)
	}

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the moderation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog(constants.ServiceName)

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting moderation service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				if shutdownErr := app.Shutdown(context.Background()); shutdownErr != nil {
					log.ErrorwCtx(ctx, "Cleanup after failed start", "error", shutdownErr)
				}
				return err
			}

			log.InfowCtx(ctx, "Moderation service running")
			runErr := app.Run(ctx)

			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "Shutdown finished with errors", "error", err)
			}

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
				return runErr
			}
			log.InfowCtx(ctx, "Shutdown complete")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL migrations and MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog(constants.ServiceName)

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			return runMigrations(ctx, bootstrap.NewDatabaseConnector(cfg, log), log)
		},
	}
}

// runMigrations applies schema changes to every configured database.
func runMigrations(ctx context.Context, dc *bootstrap.DatabaseConnector, log logger.Logger) error {
	pg, err := dc.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	mongoClient, err := dc.InitMongoDB(ctx)
	if err != nil {
		if pg != nil {
			pg.Close()
		}
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer dc.ShutdownDatabases(ctx, nil, pg, mongoClient)

	if pg != nil {
		if err := migrations.RunPostgres(pg); err != nil {
			return err
		}
		version, dirty, err := migrations.PostgresVersion(pg)
		if err != nil {
			return err
		}
		log.Infow("PostgreSQL migrations applied", "version", version, "dirty", dirty)
	}

	if db := dc.MongoDatabase(mongoClient); db != nil {
		if err := migrations.EnsureMongoIndexes(ctx, db); err != nil {
			return err
		}
		log.Infow("MongoDB indexes ensured", "database", db.Name())
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/event-scheduler/internal/api/handler"
	"github.com/cuongbtq/event-scheduler/internal/api/router"
	"github.com/cuongbtq/event-scheduler/internal/config"
	"github.com/cuongbtq/event-scheduler/internal/executor"
	"github.com/cuongbtq/event-scheduler/internal/lifecycle"
	"github.com/cuongbtq/event-scheduler/internal/quota"
	"github.com/cuongbtq/event-scheduler/internal/scheduler"
	"github.com/cuongbtq/event-scheduler/internal/store"
	"github.com/cuongbtq/event-scheduler/shared/logger"
	"github.com/cuongbtq/event-scheduler/shared/postgresql"
	"github.com/cuongbtq/event-scheduler/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("EVENT_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/event-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateEventConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting event service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// RabbitMQ is only needed when tasks are submitted through the queue
	var rabbitClient *rabbitmq.Client
	if cfg.Executor.Kind == config.BackendQueue {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}

		appLogger.Info("RabbitMQ connection established")
	}

	// Stores
	jobStore := store.NewJobStore(dbClient.GetDB(), appLogger.Logger)
	eventLog := store.NewEventLog(dbClient.GetDB(), appLogger.Logger)
	settingsStore := store.NewSettingsStore(dbClient.GetDB())

	// Execution backend
	registry, err := initRegistry(cfg, rabbitClient, eventLog, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize execution backend: %w", err)
	}
	dispatcher := executor.NewDispatcher(registry, appLogger.Logger)

	// Trigger engine
	engine := scheduler.NewEngine(jobStore, eventLog, dispatcher, scheduler.Config{
		TickInterval:        cfg.Scheduler.TickInterval,
		MisfireGraceSeconds: cfg.Scheduler.MisfireGraceSeconds,
		Coalesce:            cfg.Scheduler.Coalesce,
		EnqueuedRunTTL:      cfg.Scheduler.EnqueuedRunTTL,
	}, appLogger.Logger)

	// Admission gate and lifecycle controller
	gate := quota.NewGate(eventLog, settingsStore, cfg.Quota, appLogger.Logger)
	controller := lifecycle.NewController(engine, eventLog, gate, dispatcher, registry, appLogger.Logger)

	// Start firing scheduled jobs
	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()
	engine.Start(engineCtx)

	appLogger.Info("Trigger engine started",
		slog.Duration("tick_interval", cfg.Scheduler.TickInterval),
	)

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, controller)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Event service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Stop the trigger engine before the HTTP surface so no new runs open
	// during drain
	engine.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRegistry builds the backend registry with the configured execution
// backend wired in
func initRegistry(cfg *config.Config, rabbitClient *rabbitmq.Client, eventLog *store.EventLog, logger *slog.Logger) (*executor.Registry, error) {
	var backends []executor.Backend

	switch cfg.Executor.Kind {
	case config.BackendQueue:
		if rabbitClient == nil {
			return nil, fmt.Errorf("queue backend selected but rabbitmq client is nil")
		}
		backends = append(backends, executor.NewQueueAdaptor(rabbitClient, logger))
	case config.BackendFaaS:
		backends = append(backends, executor.NewFaaSAdaptor(cfg.Executor.FaaS, logger))
	case config.BackendSubprocess:
		backends = append(backends, executor.NewSubprocessAdaptor(cfg.Executor.Subprocess, eventLog, logger))
	}

	return executor.NewRegistry(cfg.Executor.Kind, backends...), nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, controller *lifecycle.Controller) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:        logger,
		Controller:    controller,
		CallbackToken: cfg.Worker.CallbackToken,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}

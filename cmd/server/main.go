package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storyplay-server/internal/config"
	"storyplay-server/internal/handler"
	"storyplay-server/internal/messaging"
	"storyplay-server/internal/repository"
	"storyplay-server/internal/service"
	"storyplay-server/internal/story"
	"storyplay-server/migrations"
	"storyplay-server/pkg/migration"
	"storyplay-server/shared/database"
	"storyplay-server/shared/interfaces"
	sharedLogger "storyplay-server/shared/logger"
	sharedMiddleware "storyplay-server/shared/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// Загрузка переменных окружения (.env опционален в production)
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := sharedLogger.New(sharedLogger.Config{Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("Starting storyplay server",
		zap.String("env", cfg.Env),
		zap.String("storageBackend", cfg.StorageBackend),
		zap.String("port", cfg.Port),
	)

	// --- Хранилище ---
	var (
		storyRepo      interfaces.StoryRepository
		sessionRepo    interfaces.SessionRepository
		checkpointRepo interfaces.CheckpointRepository
		analyticsRepo  interfaces.AnalyticsRepository
		graphCache     interfaces.GraphCache
		dbPool         *pgxpool.Pool
	)

	if cfg.StorageBackend == "postgres" {
		dbPool, err = setupPostgres(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer dbPool.Close()

		migrator := migration.NewMigrator(migration.Config{
			MigrationsPath: ".",
			MigrationsFS:   migrations.FS,
		}, dbPool)
		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
		if err := migrator.Up(migrateCtx); err != nil {
			migrateCancel()
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
		migrateCancel()

		storyRepo = database.NewPgStoryRepository(dbPool, logger)
		sessionRepo = database.NewPgSessionRepository(dbPool, logger)
		checkpointRepo = database.NewPgCheckpointRepository(dbPool, cfg.CheckpointSlots, logger)
		analyticsRepo = database.NewPgAnalyticsRepository(dbPool, logger)

		if cfg.RedisAddr != "" {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				pingCancel()
				logger.Fatal("Failed to connect to Redis", zap.Error(err))
			}
			pingCancel()
			defer redisClient.Close()
			graphCache = database.NewRedisGraphCache(redisClient, cfg.GraphCacheTTL, logger)
			logger.Info("Story graph cache enabled", zap.String("redisAddr", cfg.RedisAddr))
		} else {
			logger.Info("REDIS_ADDR not set, story graph cache disabled")
		}
	} else {
		memStories := repository.NewMemoryStoryRepository()
		storyRepo = memStories
		sessionRepo = repository.NewMemorySessionRepository()
		checkpointRepo = repository.NewMemoryCheckpointRepository(cfg.CheckpointSlots)
		analyticsRepo = repository.NewMemoryAnalyticsRepository()
		logger.Warn("Using in-memory storage backend, state will not survive restarts")
	}

	// --- Публикация обновлений сессий ---
	var publisher messaging.SessionUpdatePublisher = &messaging.NoopPublisher{Logger: logger}
	var mqConn *amqp.Connection
	if cfg.RabbitMQURL != "" {
		mqConn, err = connectRabbitMQ(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()

		publisher, err = messaging.NewRabbitMQSessionUpdatePublisher(mqConn, cfg.ClientUpdatesQueueName, logger)
		if err != nil {
			logger.Fatal("Failed to create session update publisher", zap.Error(err))
		}
		logger.Info("Session update publisher initialized", zap.String("queue", cfg.ClientUpdatesQueueName))
	} else {
		logger.Info("RABBITMQ_URL not set, session updates will not be published")
	}

	// --- Сервисы ---
	loader := story.NewLoader(storyRepo, graphCache, story.EntryPolicy(cfg.EntryScenePolicy), logger)
	storyService := service.NewStoryService(loader, storyRepo, logger)
	sessionService := service.NewSessionService(loader, sessionRepo, checkpointRepo, analyticsRepo, publisher, cfg, logger)
	analyticsService := service.NewAnalyticsService(loader, sessionRepo, analyticsRepo, logger)

	h := handler.NewHandler(storyService, sessionService, analyticsService, logger)

	// --- HTTP сервер (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(sharedMiddleware.GinZapLogger(logger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
		logger.Info("CORS_ALLOWED_ORIGINS not set, allowing default", zap.String("origin", "http://localhost:3000"))
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", sharedMiddleware.ViewerHeader}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	h.RegisterRoutes(router)

	// Prometheus подключается после регистрации роутов
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Сначала гасим таймеры выбора: после остановки HTTP сервера их
	// некому будет разрешать.
	sessionService.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// setupPostgres initializes the PostgreSQL connection pool with retry logic.
func setupPostgres(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	var pool *pgxpool.Pool
	var lastErr error
	maxRetries := 10
	retryDelay := 3 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err = pgxpool.NewWithConfig(connectCtx, poolConfig)
		if err == nil {
			err = pool.Ping(connectCtx)
		}
		connectCancel()

		if err == nil {
			logger.Info("Connected to PostgreSQL", zap.Int("attempt", attempt))
			return pool, nil
		}
		if pool != nil {
			pool.Close()
			pool = nil
		}
		lastErr = err
		logger.Warn("PostgreSQL connection failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, lastErr
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками.
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}

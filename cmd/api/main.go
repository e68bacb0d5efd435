package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/finsight/scripts-backend/config"
	"github.com/finsight/scripts-backend/internal/adapter"
	"github.com/finsight/scripts-backend/internal/imagestore"
	"github.com/finsight/scripts-backend/internal/ratelimit"
	"github.com/finsight/scripts-backend/internal/rating"
	"github.com/finsight/scripts-backend/internal/repository"
	"github.com/finsight/scripts-backend/internal/script"
	"github.com/finsight/scripts-backend/internal/user"
	"github.com/finsight/scripts-backend/internal/worker"
	"github.com/finsight/scripts-backend/pkg/database"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration from environment variables
	cfg := config.Load()

	// Initialize logger with validation and defaults
	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	appLogger.Info("Starting scripts backend service")

	// Connect to database with validation and defaults
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		appLogger.Fatal("Failed to connect to database: " + err.Error())
	}

	appLogger.Info("Database connection established")

	// Run database migrations for all feature models
	if err := db.AutoMigrate(&user.User{}, &script.Script{}, &rating.Rating{}); err != nil {
		appLogger.Fatal("Failed to migrate database: " + err.Error())
	}

	appLogger.Info("Database migration completed")

	// Initialize GORM-based repositories
	userRepo := repository.NewGORMUserRepository(db, appLogger)
	scriptRepo := repository.NewGORMScriptRepository(db, appLogger)
	ratingRepo := repository.NewGORMRatingRepository(db, appLogger)

	// Initialize object storage for uploaded images
	imageStore, err := imagestore.NewMinioStore(context.Background(), &cfg.ImageStore, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize image store: " + err.Error())
	}

	// Optional Redis client for rate limiting
	redisClient := newRedisClient(&cfg.Redis, appLogger)

	// Initialize business services with dependency injection
	userService, err := user.NewService(&cfg.JWT, userRepo, imageStore, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize user service: " + err.Error())
	}
	scriptService := script.NewService(scriptRepo, ratingRepo, imageStore, appLogger)

	// Create service adapter for rating dependencies
	ratingScriptService := adapter.NewScriptServiceToRatingScriptService(scriptService)
	ratingService := rating.NewService(ratingRepo, ratingScriptService, appLogger)

	// Initialize HTTP handlers
	userHandler := user.NewHandler(userService, cfg.Server.Environment)
	scriptHandler := script.NewHandler(scriptService)
	ratingHandler := rating.NewHandler(ratingService)

	// Rate limiter for anonymous rating submissions
	rateLimiter := ratelimit.NewLimiter(&cfg.RateLimit, redisClient, appLogger)

	// Initialize background worker that heals rating aggregate drift
	reconcileWorker, err := worker.NewReconcileWorker(
		&cfg.Worker,
		"rating-aggregates",
		ratingService.ReconcileAggregates,
		appLogger,
	)
	if err != nil {
		appLogger.Fatal("Failed to initialize reconcile worker: " + err.Error())
	}

	// Start background processing
	if err := reconcileWorker.Start(); err != nil {
		appLogger.Error("Failed to start reconcile worker: " + err.Error())
	}

	// Setup HTTP router with middleware
	router := gin.New()

	// Configure standard middleware stack
	corsOrigin := cfg.Server.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "http://localhost:5173" // default
	}
	router.Use(requestid.New())
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
	}))

	// Health check endpoints
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "scripts-backend",
		})
	})

	router.GET("/health/detailed", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"timestamp":        time.Now(),
			"service":          "scripts-backend",
			"reconcile_worker": reconcileWorker.IsRunning(),
			"database":         "connected",
			"rate_limiter":     redisClient != nil,
		})
	})

	// API v2 routes
	v2 := router.Group("/api/v2")
	{
		// Register feature routes - each feature manages its own routes
		userHandler.RegisterRoutes(v2)
		scriptHandler.RegisterRoutes(v2, userHandler.AuthMiddleware())
		ratingHandler.RegisterRoutes(
			v2,
			userHandler.AuthMiddleware(),
			userHandler.OptionalAuthMiddleware(),
			rateLimiter.Middleware(),
		)
	}

	// Parse server configuration with defaults
	serverPort := cfg.Server.Port
	if serverPort == "" {
		serverPort = "8080" // default
	}

	serverReadTimeout := 30 * time.Second // default
	if cfg.Server.ReadTimeout != "" {
		if duration, err := time.ParseDuration(cfg.Server.ReadTimeout); err == nil {
			serverReadTimeout = duration
		}
	}

	serverWriteTimeout := 30 * time.Second // default
	if cfg.Server.WriteTimeout != "" {
		if duration, err := time.ParseDuration(cfg.Server.WriteTimeout); err == nil {
			serverWriteTimeout = duration
		}
	}

	serverEnvironment := cfg.Server.Environment
	if serverEnvironment == "" {
		serverEnvironment = "development" // default
	}

	// Start HTTP server
	srv := &http.Server{
		Addr:         ":" + serverPort,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	// Start server in goroutine for graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server: " + err.Error())
		}
	}()

	appLogger.Info("Server started successfully on port " + serverPort + " (" + serverEnvironment + " environment)")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Stop reconcile worker first
	if err := reconcileWorker.Stop(); err != nil {
		appLogger.Error("Error stopping reconcile worker: " + err.Error())
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			appLogger.Error("Error closing redis client: " + err.Error())
		}
	}

	// Shutdown server with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown: " + err.Error())
	}

	appLogger.Info("Server shutdown complete")
}

// newRedisClient connects to Redis when an address is configured.
// The service runs without Redis, rate limiting just becomes a no-op.
func newRedisClient(cfg *config.RedisConfig, log *logger.Logger) *redis.Client {
	if cfg.Addr == "" {
		log.Info("Redis not configured, rate limiting disabled")
		return nil
	}

	dbIndex := 0
	if cfg.DB != "" {
		if n, err := strconv.Atoi(cfg.DB); err == nil {
			dbIndex = n
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       dbIndex,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis ping failed, rate limiting disabled: " + err.Error())
		_ = client.Close()
		return nil
	}

	log.Info("Redis connection established: " + cfg.Addr)

	return client
}

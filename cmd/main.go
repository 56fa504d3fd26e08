package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"ingestion-service/internal/config"
	"ingestion-service/internal/events"
	"ingestion-service/internal/handlers"
	"ingestion-service/internal/importer"
	"ingestion-service/internal/middleware"
	"ingestion-service/internal/repository"
	"ingestion-service/internal/webhooks"
)

// @title Catalog Ingestion API
// @version 1.0.0
// @description Product catalog ingestion service with streaming CSV import, progress tracking and webhook notifications

// @contact.name Catalog API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (continuing without Redis)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	redisClient := redis.NewClient(redisOpts)

	// Test Redis connection
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (caching will be disabled)", err)
		redisClient = nil
	} else {
		log.Println("✓ Redis connected successfully")
	}
	pingCancel()

	// Initialize repositories
	productsRepo := repository.NewProductsRepository(db, redisClient)
	webhooksRepo := repository.NewWebhooksRepository(db)
	tasksRepo := repository.NewTasksRepository(db)

	// Initialize event bus
	bus := events.NewBus(cfg.EventBusCapacity, logger)

	// Initialize import pipeline
	tracker := importer.NewTracker(cfg.MaxTaskErrors)
	engine := importer.NewEngine(productsRepo, bus, cfg.EmitRowEvents, logger)
	orchestrator := importer.NewOrchestrator(tracker, engine, tasksRepo, bus, importer.Config{
		BatchSize: cfg.ImportBatchSize,
	}, logger)
	log.Println("✓ Import pipeline initialized")

	// Initialize webhook dispatcher
	dispatcherCfg := webhooks.DefaultConfig()
	dispatcherCfg.Workers = cfg.WebhookWorkers
	dispatcherCfg.RequestTimeout = cfg.WebhookRequestTimeout
	dispatcherCfg.DeliveryBudget = cfg.WebhookDeliveryBudget
	dispatcherCfg.Retry.MaxAttempts = cfg.WebhookMaxAttempts
	dispatcher := webhooks.NewDispatcher(webhooksRepo, bus, dispatcherCfg, logger)

	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	dispatcher.Start(dispatcherCtx)
	log.Println("✓ Webhook dispatcher started")

	// Initialize handlers
	productsHandler := handlers.NewProductsHandler(productsRepo, bus, cfg.MaxPageSize)
	importHandler := handlers.NewImportHandler(orchestrator, cfg.MaxUploadBytes)
	tasksHandler := handlers.NewTasksHandler(tracker, tasksRepo)
	webhooksHandler := handlers.NewWebhooksHandler(webhooksRepo, dispatcher)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.HealthCheck)

	// API routes
	v1 := router.Group("/api/v1")
	{
		products := v1.Group("/products")
		{
			products.GET("", productsHandler.GetProducts)
			products.GET("/:id", productsHandler.GetProduct)
			products.POST("", productsHandler.CreateProduct)
			products.PUT("/:id", productsHandler.UpdateProduct)
			products.DELETE("/:id", productsHandler.DeleteProduct)

			products.GET("/import/template", importHandler.GetImportTemplate)
			products.POST("/import", importHandler.ImportProducts)
		}

		tasks := v1.Group("/tasks")
		{
			tasks.GET("", tasksHandler.ListTasks)
			tasks.GET("/:id/progress", tasksHandler.GetTaskProgress)
			tasks.POST("/:id/cancel", tasksHandler.CancelTask)
		}

		webhookRoutes := v1.Group("/webhooks")
		{
			webhookRoutes.GET("", webhooksHandler.ListWebhooks)
			webhookRoutes.GET("/:id", webhooksHandler.GetWebhook)
			webhookRoutes.POST("", webhooksHandler.CreateWebhook)
			webhookRoutes.PUT("/:id", webhooksHandler.UpdateWebhook)
			webhookRoutes.DELETE("/:id", webhooksHandler.DeleteWebhook)
			webhookRoutes.POST("/:id/test", webhooksHandler.TestWebhook)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Ingestion service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down ingestion-service...")

	// Stop accepting new events, then drain in-flight webhook deliveries
	bus.Close()
	stopDispatcher()
	dispatcher.Stop()

	log.Println("Ingestion service stopped")
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"ingestion-service/internal/models"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL string

	// Server
	Port        string
	Environment string

	// Pagination
	DefaultPageSize int
	MaxPageSize     int

	// Import pipeline
	ImportBatchSize int
	MaxTaskErrors   int
	MaxUploadBytes  int64
	EmitRowEvents   bool

	// Event bus
	EventBusCapacity int

	// Webhook dispatcher
	WebhookWorkers        int
	WebhookRequestTimeout time.Duration
	WebhookDeliveryBudget time.Duration
	WebhookMaxAttempts    int
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	defaultPageSize, _ := strconv.Atoi(getEnv("DEFAULT_PAGE_SIZE", "20"))
	maxPageSize, _ := strconv.Atoi(getEnv("MAX_PAGE_SIZE", "100"))
	importBatchSize, _ := strconv.Atoi(getEnv("IMPORT_BATCH_SIZE", "1000"))
	maxTaskErrors, _ := strconv.Atoi(getEnv("MAX_TASK_ERRORS", "50"))
	maxUploadMB, _ := strconv.Atoi(getEnv("MAX_UPLOAD_MB", "500"))
	emitRowEvents, _ := strconv.ParseBool(getEnv("EMIT_ROW_EVENTS", "false"))
	eventBusCapacity, _ := strconv.Atoi(getEnv("EVENT_BUS_CAPACITY", "256"))
	webhookWorkers, _ := strconv.Atoi(getEnv("WEBHOOK_WORKERS", "4"))
	webhookTimeout, _ := strconv.Atoi(getEnv("WEBHOOK_TIMEOUT_SECONDS", "10"))
	webhookBudget, _ := strconv.Atoi(getEnv("WEBHOOK_BUDGET_SECONDS", "120"))
	webhookAttempts, _ := strconv.Atoi(getEnv("WEBHOOK_MAX_ATTEMPTS", "5"))

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "catalog_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,

		ImportBatchSize: importBatchSize,
		MaxTaskErrors:   maxTaskErrors,
		MaxUploadBytes:  int64(maxUploadMB) * 1024 * 1024,
		EmitRowEvents:   emitRowEvents,

		EventBusCapacity: eventBusCapacity,

		WebhookWorkers:        webhookWorkers,
		WebhookRequestTimeout: time.Duration(webhookTimeout) * time.Second,
		WebhookDeliveryBudget: time.Duration(webhookBudget) * time.Second,
		WebhookMaxAttempts:    webhookAttempts,
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Running auto-migrations...")
	if err := db.AutoMigrate(
		&models.Product{},
		&models.Webhook{},
		&models.ImportTaskRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

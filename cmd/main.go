package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"delegation-service/internal/config"
	"delegation-service/internal/events"
	"delegation-service/internal/handlers"
	"delegation-service/internal/jobs"
	"delegation-service/internal/middleware"
	"delegation-service/internal/models"
	"delegation-service/internal/repository"
	"delegation-service/internal/seeders"
	"delegation-service/internal/services"
)

// @title Delegation API
// @version 1.0.0
// @description Approval delegation and proxy authorization service for Tesseract Hub
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.example.com/support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8105
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.AutoMigrate(
		&models.DelegationGrant{},
		&models.ProxyApprovalRecord{},
		&models.DelegationAuditEntry{},
	); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	// Seed demo data when requested
	if cfg.SeedDemoData {
		if err := seeders.SeedDemoDelegations(db); err != nil {
			logger.Warnf("Failed to seed demo delegations: %v", err)
		}
	}

	// Initialize repository
	delegationRepo := repository.NewDelegationRepository(db)

	// Initialize event publisher (optional - service works without NATS)
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewPublisher(cfg.NATSURL, "delegation-service", logger)
		if err != nil {
			logger.Warnf("Failed to initialize event publisher: %v. Events will not be published.", err)
			publisher = nil
		} else {
			logger.Info("Event publisher initialized")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := publisher.EnsureStream(ctx); err != nil {
				logger.Warnf("Failed to ensure delegation stream: %v", err)
			}
		}
	} else {
		logger.Info("NATS_URL not configured, event publishing disabled")
	}

	// Initialize services
	delegationService := services.NewDelegationService(delegationRepo, publisher, logger)

	// Initialize handlers
	delegationHandler := handlers.NewDelegationHandler(delegationService)
	proxyHandler := handlers.NewProxyApprovalHandler(delegationService)

	// Start expiry job
	expiryJob := jobs.NewExpiryJob(delegationService, logger, cfg.SweepInterval)
	jobCtx, jobCancel := context.WithCancel(context.Background())
	go expiryJob.Start(jobCtx)
	logger.Info("Expiry job started")

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck)

	// Protected API routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	api.Use(middleware.TenantMiddleware())

	delegationHandler.RegisterRoutes(api)
	proxyHandler.RegisterRoutes(api)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8105"
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("Delegation service starting on port %s", port)
		if err := router.Run(":" + port); err != nil {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	logger.Info("Shutting down server...")

	// Stop expiry job
	jobCancel()
	expiryJob.Stop()
	logger.Info("Expiry job stopped")

	// Drain the event publisher
	if publisher != nil {
		publisher.Close()
	}

	logger.Info("Server shutdown complete")
}

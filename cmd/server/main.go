package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/eventspot/internal/config"
	"github.com/quocanhngo/eventspot/internal/handler"
	"github.com/quocanhngo/eventspot/internal/middleware"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/repository"
	"github.com/quocanhngo/eventspot/internal/service"
	"github.com/quocanhngo/eventspot/internal/task"
	"github.com/quocanhngo/eventspot/migrations"
	"github.com/quocanhngo/eventspot/pkg/auth"
	"github.com/quocanhngo/eventspot/pkg/notification"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title           EventSpot API
// @version         1.0
// @description     Device registrations, push dispatch and chat messages for EventSpot.

// @contact.name   API Support
// @contact.email  support@eventspot.local

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log.Printf("🚀 Starting EventSpot API Server [env=%s]", cfg.App.Env)

	// ==================== Database (PostgreSQL) ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Printf("⚠️  Migration warning: %v", err)
		log.Println("📦 Falling back to GORM AutoMigrate...")
		if err := db.AutoMigrate(&model.DeviceRegistration{}, &model.Message{}); err != nil {
			log.Fatalf("❌ Failed to migrate database: %v", err)
		}
	}
	log.Println("✅ Database migrated successfully")

	// ==================== Redis (token revocations) ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// ==================== Push Gateway ====================
	gateway := newGateway(ctx, cfg.Push)

	// ==================== Initialize Layers ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Repositories
	deviceRepo := repository.NewDeviceRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	// Detached work: pushes triggered by chat never block the request
	tasks := task.NewRunner(ctx, cfg.Push.Timeout)

	// Services
	notificationService := service.NewNotificationService(deviceRepo, gateway)
	deviceService := service.NewDeviceService(deviceRepo)
	chatService := service.NewChatService(msgRepo, notificationService, tasks)

	// Handlers
	notificationHandler := handler.NewNotificationHandler(notificationService)
	deviceHandler := handler.NewDeviceHandler(deviceService)
	chatHandler := handler.NewChatHandler(chatService)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "eventspot-api",
			"time":    time.Now().UTC(),
		})
	})

	api := router.Group("/api/v1")
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(jwtManager, middleware.NewRedisRevocations(rdb)))
	{
		// Device registration
		protected.GET("/devices/registration", deviceHandler.GetRegistration)
		protected.PUT("/devices/registration", deviceHandler.UpsertRegistration)
		protected.PATCH("/devices/registration/preferences", deviceHandler.UpdatePreferences)

		// Dispatch (called by trigger services with their own token)
		protected.POST("/notifications/dispatch", notificationHandler.Dispatch)

		// Chat
		protected.POST("/messages", chatHandler.SendMessage)
		protected.GET("/messages", chatHandler.GetMessages)
	}

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 EventSpot API running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	// Let in-flight pushes finish before cancelling them
	tasks.Close()
	stop()
	_ = rdb.Close()
	log.Println("✅ Server exited gracefully")
}

// newGateway picks the push provider. A missing credential leaves the
// gateway disabled: dispatches then fail as gateway failures.
func newGateway(ctx context.Context, cfg config.PushConfig) notification.Gateway {
	switch cfg.Provider {
	case "legacy":
		log.Printf("📨 Push provider: legacy HTTP (%s)", cfg.Endpoint)
		return notification.NewLegacyGateway(cfg.Endpoint, cfg.ServerKey, cfg.Timeout)
	default:
		return notification.NewFCMGateway(ctx, cfg.CredentialsFile)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventory-service/config"
	"inventory-service/internal/api"
	"inventory-service/internal/broker"
	"inventory-service/internal/redisclient"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"
	"inventory-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting inventory service",
		zap.String("env", cfg.Server.Env),
		zap.String("storage", cfg.Database.Driver))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer("inventory-service", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	checks := map[string]api.ReadinessCheck{}

	var repo store.Repository
	switch cfg.Database.Driver {
	case config.StorageDriverMemory:
		repo = store.NewMemoryStore()
		logger.Warn("Using in-memory storage; data is lost on restart")
	case config.StorageDriverPostgres:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		repo = db
		checks["database"] = db.Ping
		logger.Info("Database connected")
	default:
		logger.Fatal("Unknown storage driver", zap.String("driver", cfg.Database.Driver))
	}
	defer repo.Close()

	var (
		productCache     service.ProductCache
		idempotencyCache service.IdempotencyCache
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ProductTTL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		productCache = redisClient
		idempotencyCache = redisClient
		checks["redis"] = redisClient.Ping
		logger.Info("Redis connected")
	}

	var (
		eventPublisher   service.EventPublisher
		supplierNotifier service.SupplierNotifier
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicInventoryEvents)
		defer producer.Close()
		publisher := broker.NewEventPublisher(producer)
		eventPublisher = publisher
		supplierNotifier = publisher
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicInventoryEvents))
	}

	inventoryService := service.NewInventoryService(
		repo,
		productCache,
		idempotencyCache,
		eventPublisher,
		supplierNotifier,
		cfg.Business.IdempotencyTTL,
	)
	catalogService := service.NewCatalogService(inventoryService)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var supplierWorker *worker.SupplierWorker
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSupplierReceipts, cfg.Kafka.ConsumerGroup)
		supplierWorker = worker.NewSupplierWorker(consumer, inventoryService)
		go func() {
			if err := supplierWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Supplier worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(inventoryService, catalogService, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if supplierWorker != nil {
		if err := supplierWorker.Stop(); err != nil {
			logger.Error("Error stopping supplier worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

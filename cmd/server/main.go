package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"academix-api/config"
	"academix-api/internal/api"
	"academix-api/internal/auth"
	"academix-api/internal/broker"
	"academix-api/internal/gateway"
	"academix-api/internal/redisclient"
	"academix-api/internal/service"
	"academix-api/internal/store"
	"academix-api/internal/util"
	"academix-api/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting academix api", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.TracerOptions{
		ServiceName:    "academix-api",
		Environment:    cfg.Server.Env,
		JaegerEndpoint: cfg.Observ.JaegerEndpoint,
		SampleRatio:    cfg.Observ.TraceSampleRatio,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	db, err := store.NewStore(startCtx, cfg.Database.URI, cfg.Database.Name)
	if err != nil {
		startCancel()
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	if err := db.EnsureIndexes(startCtx); err != nil {
		startCancel()
		logger.Fatal("Failed to create indexes", zap.Error(err))
	}
	startCancel()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(ctx); err != nil {
			logger.Warn("Error disconnecting MongoDB", zap.Error(err))
		}
	}()
	logger.Info("MongoDB connected", zap.String("database", cfg.Database.Name))

	redisClient, err := redisclient.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

	var publisher service.EventPublisher = broker.NoopPublisher{}
	var auditWorker *worker.AuditWorker

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(&cfg.Kafka)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		consumer := broker.NewConsumer(&cfg.Kafka)
		auditWorker = worker.NewAuditWorker(consumer, db)
		go func() {
			if err := auditWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Audit worker error", zap.Error(err))
			}
		}()
	} else {
		logger.Info("Kafka disabled, payment events are not published")
	}

	gw := gateway.NewClient(&cfg.Gateway)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	userService := service.NewUserService(db, tokens)
	courseService := service.NewCourseService(db)
	checkoutService := service.NewCheckoutService(db, db, gw, publisher, redisClient, service.CheckoutConfig{
		PublicURL:       cfg.Server.PublicURL,
		FrontendURL:     cfg.Server.FrontendURL,
		Currency:        cfg.Gateway.Currency,
		VerifyCallbacks: cfg.Gateway.VerifyCallbacks,
		ValidateSuccess: cfg.Gateway.ValidateSuccess,
		IdempotencyTTL:  cfg.Business.IdempotencyTTL,
		OrderLockTTL:    cfg.Business.OrderLockTTL,
	})

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(userService, courseService, checkoutService, tokens, db, cfg.Server.CORSOrigins)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if auditWorker != nil {
		if err := auditWorker.Stop(); err != nil {
			logger.Warn("Error stopping audit worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"kitchenops/server/internal/api"
	"kitchenops/server/internal/config"
	"kitchenops/server/internal/database"
	"kitchenops/server/internal/events"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"
	"kitchenops/server/internal/services"
	"kitchenops/server/internal/utils"
)

func main() {
	log := config.GetLogger()

	// .env is optional; production reads the environment directly
	if err := godotenv.Load(); err != nil {
		log.Info("ℹ️ .env file not found, using process environment")
	} else {
		log.Info("✅ environment loaded from .env")
	}

	cfg := config.Load()
	config.SetLogLevel(cfg.LogLevel)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var store repository.Store
	if cfg.DatabaseURL != "" {
		log.WithField("database_url", maskURL(cfg.DatabaseURL)).Info("📋 DATABASE_URL set")
	}
	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PostgresOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		LogSQL:          cfg.LogLevel == "debug",
	}, log)
	if err != nil {
		log.WithError(err).Warn("⚠️ PostgreSQL unavailable, using in-memory store")
		store = repository.NewMemoryStore()
	} else {
		defer database.ClosePostgres(db)
		if err := models.AutoMigrate(db, log); err != nil {
			log.WithError(err).Fatal("❌ migration failed")
		}
		store = repository.NewGormStore(db)
	}

	var redisUtil *utils.RedisClient
	var locker *redislock.Client
	redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName, log)
	if err != nil {
		log.WithError(err).Warn("⚠️ Redis unavailable, continuing without locks and audit list")
	} else {
		defer database.CloseRedis(redisClient)
		redisUtil = utils.NewRedisClient(redisClient)
		locker = redislock.New(redisClient)
	}

	bus := events.NewMemoryBus()
	if brokers := events.ParseKafkaBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		transport := events.NewKafkaTransport(cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert, log)
		publisher := events.NewKafkaPublisher(events.NewKafkaWriter(brokers, cfg.KafkaEventsTopic, transport), log)
		publisher.Attach(bus, events.AllTypes()...)
		defer publisher.Close()
		log.WithFields(logrus.Fields{"brokers": brokers, "topic": cfg.KafkaEventsTopic}).Info("📡 Kafka event forwarding enabled")
	} else {
		log.Info("ℹ️ KAFKA_BROKERS not set, events stay in-process")
	}

	ingredientService := services.NewIngredientService(store, bus, log)
	stockService := services.NewStockService(store, log)
	recipeService := services.NewRecipeCostService(store, bus, log, cfg.CascadeBatchSize)
	if redisUtil != nil {
		recipeService.SetRedisUtil(redisUtil)
	}
	recipeService.Subscribe(bus)
	demandService := services.NewDemandService(store, bus, log, cfg.DefaultPeopleCount)
	planService := services.NewPlanService(store, demandService, log)
	requisitionService := services.NewRequisitionService(store, services.NewLedgerPoster(log), bus, log)
	if locker != nil {
		requisitionService.SetLocker(locker, cfg.RequisitionLockTTL)
	}
	productionService := services.NewProductionService(store, bus, log)

	hub := api.NewHub()
	go hub.Run()
	feed := api.NewKitchenFeed(hub, log)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if brokers := events.ParseKafkaBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		// with Kafka every instance feeds its dashboards from the shared topic
		dialer := events.NewKafkaDialer(cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert, log)
		reader := events.NewKafkaReader(brokers, cfg.KafkaEventsTopic, events.InstanceGroupID("kitchen-feed"), dialer)
		consumer := events.NewKafkaConsumer(reader, feed.Handle, log)
		defer consumer.Close()
		go consumer.Run(consumerCtx)
	} else {
		feed.Attach(bus)
	}

	router := api.NewRouter(api.Controllers{
		Requisitions: api.NewRequisitionController(requisitionService, demandService),
		Stock:        api.NewStockController(ingredientService, stockService),
		Recipes:      api.NewRecipeController(recipeService),
		Plans:        api.NewPlanController(planService),
		Productions:  api.NewProductionController(productionService),
		Feed:         feed,
	}, log)

	grpcServer, healthServer := api.NewGRPCServer(log)
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			log.WithError(err).Fatal("❌ failed to listen for gRPC")
		}
		api.MarkServing(healthServer)
		log.WithField("port", cfg.GRPCPort).Info("📡 gRPC health server starting")
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("❌ gRPC server stopped")
		}
	}()

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.ServerPort).Info("🚀 server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("❌ failed to start server")
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			logMemoryStats(log)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("❌ HTTP shutdown failed")
	}
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	stopConsumer()
	hub.Stop()
}

// maskURL hides credentials in a connection string
func maskURL(raw string) string {
	idx := strings.Index(raw, "@")
	schemeIdx := strings.Index(raw, "://")
	if idx <= 0 || schemeIdx <= 0 || schemeIdx > idx {
		return raw
	}
	return raw[:schemeIdx+3] + "***@" + raw[idx+1:]
}

func logMemoryStats(log *logrus.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	heapAllocMB := float64(m.HeapAlloc) / 1024 / 1024
	numGoroutines := runtime.NumGoroutine()
	log.WithFields(logrus.Fields{
		"heap_alloc_mb": heapAllocMB,
		"heap_sys_mb":   float64(m.HeapSys) / 1024 / 1024,
		"gc":            m.NumGC,
		"goroutines":    numGoroutines,
	}).Debug("💾 memory stats")

	if numGoroutines > 100 {
		log.WithField("goroutines", numGoroutines).Warn("⚠️ high number of goroutines")
	}
	if heapAllocMB > 500 {
		log.WithField("heap_alloc_mb", heapAllocMB).Warn("⚠️ high memory usage")
	}
}

// File: nomadpi/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nomadpi/config"
	"nomadpi/cron"
	"nomadpi/database"
	commandRepo "nomadpi/database/repository/command"
	deviceRepo "nomadpi/database/repository/device"
	"nomadpi/handlers"
	"nomadpi/middleware"
	"nomadpi/routes"
	"nomadpi/services/provisioning"
	"nomadpi/services/remote"
	"nomadpi/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()

	cfg := config.AppConfig
	if cfg.JWTSecret == "" {
		logger.Fatal("main: JWT_SECRET must be set")
	}

	// `nomadpi token <userID>` prints a bearer token for local testing.
	if len(os.Args) == 3 && os.Args[1] == "token" {
		token, err := utils.GenerateToken([]byte(cfg.JWTSecret), os.Args[2], 24*time.Hour)
		if err != nil {
			logger.Fatal("main: failed to sign token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// repositories.
	var (
		devices     deviceRepo.DeviceRepository
		commands    commandRepo.CommandRepository
		mongoClient *mongo.Client
	)
	switch cfg.DeviceStore {
	case "memory":
		logger.Warn("main: using the in-memory device store; state is lost on restart")
		devices = deviceRepo.NewMemoryDeviceRepo()
		commands = commandRepo.NewMemoryCommandRepo()
	default:
		database.InitDB()
		mongoClient = database.MongoClient
		devices = deviceRepo.NewMongoDeviceRepo(database.Database(), logger)
		commands = commandRepo.NewMongoCommandRepo(database.Database(), logger)
	}

	// per-device locks.
	var (
		locker       provisioning.Locker
		redisClients []*redis.Client
	)
	switch cfg.LockBackend {
	case "memory":
		locker = provisioning.NewMemoryLocker()
	default:
		lockTTL := cfg.LockTTL
		if minTTL := cfg.ProvisionTimeout + cfg.FetchTimeout; lockTTL < minTTL {
			logger.Warn("main: LOCK_TTL shorter than a provisioning run; raising it",
				zap.Duration("configured", lockTTL), zap.Duration("using", minTTL))
			lockTTL = minTTL
		}
		client := utils.GetLockClient()
		redisClients = append(redisClients, client)
		locker = provisioning.NewRedisLocker(client, utils.LockKeyPrefix, lockTTL, logger)
	}

	// remote execution.
	if cfg.AWSInstanceID == "" {
		logger.Fatal("main: AWS_INSTANCE_ID must name the WireGuard host")
	}
	executor, err := remote.NewSSMExecutor(rootCtx, cfg.AWSRegion, cfg.SSMExecutionTimeout)
	if err != nil {
		logger.Fatal("main: failed to initialize SSM client", zap.Error(err))
	}
	pollCfg := remote.PollConfig{
		InitialInterval: cfg.PollInitialInterval,
		MaxInterval:     cfg.PollMaxInterval,
		Multiplier:      2,
		MaxQueryErrors:  cfg.PollMaxQueryErrors,
	}
	dispatcher := remote.NewDispatcher(executor, cfg.SSMDocumentName, commands, logger)
	poller := remote.NewPoller(executor, pollCfg, commands, logger)
	fetcher := remote.NewFetcher(dispatcher, poller, cfg.FetchTimeout, logger)

	// services.
	provisioningService := &provisioning.DefaultProvisioningService{
		Devices:    devices,
		Commands:   commands,
		Dispatcher: dispatcher,
		Poller:     poller,
		Fetcher:    fetcher,
		Locker:     locker,
		Settings: provisioning.Settings{
			TargetHost:       cfg.AWSInstanceID,
			ClientDir:        cfg.WGClientDir,
			TemplateCommand:  cfg.WGTemplateCommand,
			ProvisionTimeout: cfg.ProvisionTimeout,
		},
		Logger: logger,
	}

	deviceHandler := &handlers.DeviceHandler{
		Service:     provisioningService,
		Async:       cfg.ProvisionAsync,
		TaskTimeout: cfg.ProvisionTimeout + 30*time.Second,
	}

	var (
		worker *asynq.Server
		queue  *asynq.Client
	)
	if cfg.ProvisionAsync {
		queue = asynq.NewClient(cron.QueueRedisOpt())
		deviceHandler.Queue = queue
		worker = cron.InitProvisionWorker(provisioningService, logger)
	}

	if cfg.StalePendingAfter <= cfg.ProvisionTimeout {
		logger.Warn("main: STALE_PENDING_AFTER should exceed PROVISION_TIMEOUT",
			zap.Duration("stalePendingAfter", cfg.StalePendingAfter), zap.Duration("provisionTimeout", cfg.ProvisionTimeout))
	}
	go cron.StartRecoverySweep(rootCtx, provisioningService, cfg.RecoveryInterval, cfg.StalePendingAfter, logger)
	utils.StartHealthMonitor(rootCtx, redisClients, mongoClient)

	// Create the Gin router.
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin))

	routes.RegisterRoutes(router, handlers.NewHandlerBundle(deviceHandler, []byte(cfg.JWTSecret)))

	// Start the HTTP server.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	// In-flight requests may be waiting on a remote command.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProvisionTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("main: server forced to shutdown", zap.Error(err))
	}
	stop()

	if worker != nil {
		worker.Shutdown()
	}
	if queue != nil {
		_ = queue.Close()
	}
	if utils.LockClient != nil {
		_ = utils.LockClient.Close()
	}
	if err := database.CloseDB(ctx); err != nil {
		logger.Warn("main: failed to disconnect MongoDB", zap.Error(err))
	}

	logger.Sugar().Info("main: server stopped gracefully")
}

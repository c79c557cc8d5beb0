package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lamstech/quickcards/internal/config"
	gateway "github.com/lamstech/quickcards/internal/gateways"
	"github.com/lamstech/quickcards/internal/handlers"
	"github.com/lamstech/quickcards/internal/idempotency"
	"github.com/lamstech/quickcards/internal/notify"
	"github.com/lamstech/quickcards/internal/payment"
	"github.com/lamstech/quickcards/internal/queue"
	"github.com/lamstech/quickcards/internal/receipt"
	"github.com/lamstech/quickcards/internal/repository"
	"github.com/lamstech/quickcards/internal/services"
	"github.com/lamstech/quickcards/internal/sweeper"
	xhttp "github.com/lamstech/quickcards/pkg/http"
	"github.com/lamstech/quickcards/pkg/logger"
	"github.com/lamstech/quickcards/pkg/pg"
	"github.com/lamstech/quickcards/pkg/prom"
	"github.com/lamstech/quickcards/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Minute * 3))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	smsRetryQ, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating sms retry queue", "error", err)
	}

	catalog, err := config.LoadCatalog(config.Get().CatalogPath)
	if err != nil {
		logger.Error("failed loading catalog", "error", err)
		return
	}

	inventoryRepo := repository.NewInventoryRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	checkerRepo := repository.NewCheckerRepository(db)

	paymentAdapter, err := createPaymentAdapter()
	if err != nil {
		logger.Error("failed creating payment adapter", "error", err)
		return
	}

	var notifier *notify.Dispatcher
	if config.Get().SMSBaseURL != "" {
		sender, err := createSMSSender()
		if err != nil {
			logger.Error("failed creating sms sender", "error", err)
			return
		}
		notifier = notify.NewDispatcher(sender, smsRetryQ)
		if err := notifier.StartRetryConsumer(); err != nil {
			logger.Error("failed starting sms retry consumer", "error", err)
		}
	}

	var receiptGen receipt.Generator
	if config.Get().ReceiptBaseURL != "" {
		receiptGen, err = receipt.NewHTTPGenerator(&receipt.HTTPConfig{
			BaseURL: config.Get().ReceiptBaseURL,
			APIKey:  config.Get().ReceiptAPIKey,
		})
		if err != nil {
			logger.Error("failed creating receipt generator", "error", err)
			return
		}
	}

	// services
	referenceService := services.NewReferenceService(referenceRepo)
	checkerService := services.NewCheckerService(checkerRepo)
	purchaseService := services.NewPurchaseService(
		inventoryRepo,
		transactionRepo,
		referenceRepo,
		checkerRepo,
		checkerService,
		referenceService,
		catalog,
		paymentAdapter,
		serviceNotifier(notifier),
		receiptGen,
		services.PurchaseConfig{
			PaymentWindow: config.Get().PaymentWindow,
			PollInterval:  config.Get().PaymentPollInterval,
			PollTimeout:   config.Get().PaymentPollTimeout,
			ReferenceTTL:  config.Get().ReferenceTTL,
		},
	)
	healthService := services.NewHealthService(db)
	purchaseGuard := idempotency.NewGuard(redisAdap, idempotency.DefaultConfig())

	sw := sweeper.New(inventoryRepo, transactionRepo, referenceRepo, checkerRepo, redisAdap, sweeper.Config{
		Interval:      config.Get().SweepInterval,
		StaleClaimAge: config.Get().SweepStaleClaimAge,
		BatchSize:     config.Get().SweepBatchSize,
	})
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sw.Start(sweepCtx)

	// v1 handlers
	purchaseHandler := handlers.NewPurchaseHandler(purchaseService, purchaseGuard)
	catalogHandler := handlers.NewCatalogHandler(catalog)
	adminHandler := handlers.NewAdminHandler(inventoryRepo, transactionRepo, sw)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterPurchaseRoutes(g, purchaseHandler)
	handlers.RegisterCatalogRoutes(g, catalogHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	admin := s.Router.Group("/api/v1/admin")
	handlers.RegisterAdminRoutes(admin, adminHandler)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Kill, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		stopSweeper()
		s.Shutdown()
	}
}

// createSMSSender picks the single-provider client, or the failover gateway
// when a backup provider is configured.
func createSMSSender() (notify.Sender, error) {
	if config.Get().SMSBackupURL != "" {
		return gateway.NewClient(&gateway.Config{
			Providers: []gateway.ProviderConfig{
				{Name: "primary", URL: config.Get().SMSBaseURL, Weight: 100},
				{Name: "backup", URL: config.Get().SMSBackupURL, Weight: 60},
			},
			SenderID:                config.Get().SMSSenderID,
			APIKey:                  config.Get().SMSAPIKey,
			Timeout:                 time.Second * 5,
			MaxRetries:              3,
			RetryDelay:              time.Millisecond * 100,
			MaxConns:                1000,
			ReadBufferSize:          1024 * 4,
			WriteBufferSize:         1024 * 4,
			HealthCheckInterval:     30 * time.Second,
			CircuitBreakerThreshold: 5,
			CircuitBreakerTimeout:   60 * time.Second,
		})
	}
	return notify.NewSMSClient(&notify.SMSConfig{
		BaseURL:  config.Get().SMSBaseURL,
		APIKey:   config.Get().SMSAPIKey,
		SenderID: config.Get().SMSSenderID,
	})
}

func createPaymentAdapter() (payment.Adapter, error) {
	if config.Get().MomoUseFake {
		logger.Warn("Using the in-process fake payment adapter, charges are not real")
		return payment.NewFakeAdapter(1), nil
	}
	return payment.NewMomoAdapter(&payment.MomoConfig{
		BaseURL: config.Get().MomoBaseURL,
		APIKey:  config.Get().MomoAPIKey,
		Timeout: config.Get().MomoTimeout,
	})
}

// serviceNotifier keeps a nil dispatcher from becoming a non-nil interface.
func serviceNotifier(d *notify.Dispatcher) services.Notifier {
	if d == nil {
		return nil
	}
	return d
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"comm-dispatch/internal/archive"
	awsclients "comm-dispatch/internal/common/aws"
	"comm-dispatch/internal/common/camunda"
	"comm-dispatch/internal/common/config"
	"comm-dispatch/internal/common/database"
	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/common/observability"
	"comm-dispatch/internal/communication"
	"comm-dispatch/internal/communication/templates"
	"comm-dispatch/internal/communication/transport"
	"comm-dispatch/internal/partner"
	"comm-dispatch/internal/repository"

	sac "comm-dispatch/internal/workers/communication/send-alert-confirmation"
	sde "comm-dispatch/internal/workers/communication/send-direct-email"
	sop "comm-dispatch/internal/workers/communication/send-order-placed"
	spa "comm-dispatch/internal/workers/communication/send-product-alerts"
	sue "comm-dispatch/internal/workers/communication/send-user-event"
)

func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting dispatch worker",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Zeebe ---
	zeebe, err := camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		RetryConfig:            &camunda.RetryConfig{MaxRetries: 10, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.ConnectPostgres(ctx, cfg.Database.Postgres)
		return err
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.RegisterPoolMetrics(prometheus.DefaultRegisterer, cfg.Database.Postgres.Database); err != nil {
		zapLog.Warn("postgres pool metrics not registered", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, cfg.Database.Postgres, log); err != nil {
			zapLog.Fatal("database migration failed", zap.Error(err))
		}
	}

	// --- Redis ---
	rdb := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return database.PingRedis(ctx, rdb)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch (sent email archive) ---
	var emailArchive communication.EmailArchive
	if cfg.Archive.Enabled {
		var es *elasticsearch.Client
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
			if err != nil {
				return err
			}
			return database.PingElasticsearch(ctx, es)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		emailArchive = archive.NewEmailIndexer(es, cfg.Archive.Index)
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", cfg.Archive.Index))
	}

	// --- Transports ---
	aws := cfg.Integrations.AWS
	var mailer communication.Mailer = transport.NewLogMailer(log)
	if aws.SES.Enabled {
		sesClient, err := awsclients.NewSESClient(ctx, aws.Region)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		mailer = transport.NewSESMailer(sesClient, aws.SES.ConfigurationSet, log)
	} else {
		zapLog.Warn("SES disabled, emails are logged only")
	}

	var publisher communication.EventPublisher
	if aws.SNS.Enabled {
		snsClient, err := awsclients.NewSNSClient(ctx, aws.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		publisher = transport.NewSNSPublisher(snsClient, aws.SNS.AuditTopicARN)
	}

	// --- Dispatcher ---
	loader, err := templates.NewDirLoader(cfg.Communication.TemplateDir)
	if err != nil {
		zapLog.Fatal("template loader failed", zap.Error(err))
	}

	eventTypes := repository.NewCachedEventTypeRepository(
		repository.NewEventTypeRepository(pg.DB), rdb, cfg.Communication.CacheTTL(), log,
	)
	stock := repository.NewStockRepository(pg.DB)

	deps := communication.Dependencies{
		Logger:        log,
		Renderer:      templates.NewRenderer(eventTypes, loader, log),
		Templates:     loader,
		Mailer:        mailer,
		EventTypes:    eventTypes,
		Audit:         repository.NewAuditRepository(pg.DB),
		Notifications: repository.NewNotificationRepository(pg.DB),
		Alerts:        repository.NewAlertRepository(pg.DB),
		Stock:         stock,
		Selector:      partner.NewDefaultSelector(stock),
		Publisher:     publisher,
		Archive:       emailArchive,
	}
	dispatcher := communication.New(deps, communication.NewConfig(cfg.Communication))

	// --- Workers ---
	client := zeebe.GetClient()
	var workers []*camunda.Worker
	register := func(w *camunda.Worker) {
		if w != nil {
			workers = append(workers, w)
		}
	}

	{
		wcfg := config.GetWorkerConfig(cfg, sop.TaskType)
		h := sop.NewHandler(sop.HandlerOptions{
			Config:        sop.NewConfig(wcfg),
			Orders:        repository.NewOrderRepository(pg.DB),
			Dispatcher:    dispatcher,
			Observability: obs,
			Logger:        log,
		})
		register(camunda.StartWorker(client, sop.TaskType, wcfg, h.Handle, log))
	}

	{
		wcfg := config.GetWorkerConfig(cfg, sue.TaskType)
		h := sue.NewHandler(sue.HandlerOptions{
			Config:        sue.NewConfig(wcfg),
			Users:         repository.NewUserRepository(pg.DB),
			Dispatcher:    dispatcher,
			Observability: obs,
			Logger:        log,
		})
		register(camunda.StartWorker(client, sue.TaskType, wcfg, h.Handle, log))
	}

	{
		wcfg := config.GetWorkerConfig(cfg, spa.TaskType)
		h := spa.NewHandler(spa.HandlerOptions{
			Config:        spa.NewConfig(wcfg),
			Products:      repository.NewProductRepository(pg.DB),
			Dispatcher:    dispatcher,
			Observability: obs,
			Logger:        log,
		})
		register(camunda.StartWorker(client, spa.TaskType, wcfg, h.Handle, log))
	}

	{
		wcfg := config.GetWorkerConfig(cfg, sac.TaskType)
		h := sac.NewHandler(sac.HandlerOptions{
			Config:        sac.NewConfig(wcfg),
			Alerts:        repository.NewAlertRepository(pg.DB),
			Products:      repository.NewProductRepository(pg.DB),
			Dispatcher:    dispatcher,
			Observability: obs,
			Logger:        log,
		})
		register(camunda.StartWorker(client, sac.TaskType, wcfg, h.Handle, log))
	}

	{
		wcfg := config.GetWorkerConfig(cfg, sde.TaskType)
		h := sde.NewHandler(sde.HandlerOptions{
			Config:        sde.NewConfig(wcfg),
			Dispatcher:    dispatcher,
			Observability: obs,
			Logger:        log,
		})
		register(camunda.StartWorker(client, sde.TaskType, wcfg, h.Handle, log))
	}

	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		readyCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pg.Ping(readyCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "postgres unavailable")
			return
		}
		if err := zeebe.HealthCheck(readyCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "zeebe unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	for _, w := range workers {
		w.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("Dispatch worker stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

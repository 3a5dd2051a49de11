package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-ews/common/database"
	loggerpkg "wisefido-ews/common/logger"
	mqttcommon "wisefido-ews/common/mqtt"
	rediscommon "wisefido-ews/common/redis"
	"wisefido-ews/internal/clients"
	"wisefido-ews/internal/config"
	"wisefido-ews/internal/consumer"
	"wisefido-ews/internal/evaluator"
	"wisefido-ews/internal/events"
	httpapi "wisefido-ews/internal/http"
	"wisefido-ews/internal/repository"
	"wisefido-ews/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const serviceName = "wisefido-ews"

func main() {
	// 1. config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. logger
	logger, err := loggerpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. storage
	var (
		repo repository.MonitoringRepository
		db   *sql.DB
		ping func(ctx context.Context) error
	)
	if cfg.DBEnabled {
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		pg := repository.NewPostgresRepository(db, logger)
		if cfg.AutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				logger.Fatal("Failed to apply schema", zap.Error(err))
			}
		}
		repo = pg
		ping = db.PingContext
		logger.Info("DB enabled for wisefido-ews", zap.String("host", cfg.Database.Host))
	} else {
		repo = repository.NewMemoryRepository()
		logger.Warn("DB disabled, observations and alerts are kept in memory only")
	}

	// 4. locking and alert events
	var locker consumer.Locker = consumer.NewKeyedMutex()
	publishers := events.Multi{}

	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient, err = rediscommon.Connect(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rediscommon.Close(redisClient)

		locker = consumer.NewRedisLocker(redisClient, cfg.EWS.LockTTL, logger)
		publishers = append(publishers, events.NewStreamPublisher(redisClient, cfg.EWS.EventStream, cfg.EWS.EventStreamMaxLen, logger))
	}

	var mqttClient *mqttcommon.Client
	if cfg.EWS.MQTTEnabled || cfg.EWS.MQTTPublishEvents {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		}
		defer mqttClient.Disconnect()

		if cfg.EWS.MQTTPublishEvents {
			publishers = append(publishers, events.NewMQTTPublisher(mqttClient, cfg.MQTT.QoS, logger))
		}
	}

	// 5. client registry
	var lookup service.ClientLookup
	if cfg.ClientRegistry.URL != "" {
		lookup = clients.NewRegistry(cfg.ClientRegistry.URL, cfg.ClientRegistry.Token, logger)
	}

	// 6. core
	engine := evaluator.NewEngine(repo, evaluator.Options{
		ResolveOverdueOnObservation: cfg.EWS.ResolveOverdueOnObservation,
		MaxUpsertAttempts:           evaluator.MaxUpsertAttempts,
	}, logger)
	svc := service.NewMonitoringService(repo, engine, locker, publishers, lookup, logger)

	errCh := make(chan error, 3)

	// ingestion accepts any tenant, so the scan covers all of them
	scanner := consumer.NewOverdueScanner(repo, svc, "", cfg.EWS.ScanInterval, cfg.EWS.ScanWorkers, logger)
	go func() {
		if err := scanner.Start(ctx); err != nil {
			errCh <- fmt.Errorf("overdue scanner: %w", err)
		}
	}()

	if cfg.EWS.MQTTEnabled {
		ingest := consumer.NewObservationConsumer(mqttClient, cfg.EWS.MQTTObservationTopic, cfg.MQTT.QoS,
			func(ctx context.Context, msg *consumer.ObservationMessage) error {
				_, err := svc.SubmitObservation(ctx, service.SubmitObservationRequest{
					TenantID:    msg.TenantID,
					PatientID:   msg.PatientID,
					RecordedBy:  msg.RecordedBy,
					Notes:       msg.Notes,
					ActionTaken: msg.ActionTaken,
					Vitals:      msg.Vitals,
				})
				return err
			}, logger)
		defer ingest.Stop()
		go func() {
			if err := ingest.Start(ctx); err != nil {
				errCh <- fmt.Errorf("observation consumer: %w", err)
			}
		}()
	}

	// 7. HTTP
	router := httpapi.NewRouter(logger)
	router.RegisterEWSRoutes(httpapi.NewEWSHandler(svc, cfg.TenantID, logger))
	router.RegisterHealthRoutes(ping)

	srv := service.NewServer(cfg.HTTPAddr, router, logger)
	go func() {
		errCh <- srv.Start()
	}()

	// 8. wait for a signal or a fatal component error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Component failed, shutting down", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}
	logger.Info("wisefido-ews stopped")
}

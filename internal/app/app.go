package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/imgvault/imgvault/config"
	kafkactrl "github.com/imgvault/imgvault/internal/controller/kafka"
	"github.com/imgvault/imgvault/internal/controller/restapi"
	"github.com/imgvault/imgvault/internal/controller/worker/outbox"
	infrakafka "github.com/imgvault/imgvault/internal/infrastructure/kafka"
	"github.com/imgvault/imgvault/internal/repo/persistent"
	"github.com/imgvault/imgvault/internal/usecase/image"
	"github.com/imgvault/imgvault/pkg/httpserver"
	"github.com/imgvault/imgvault/pkg/kafka/consumer"
	"github.com/imgvault/imgvault/pkg/kafka/producer"
	"github.com/imgvault/imgvault/pkg/logger"
	"github.com/imgvault/imgvault/pkg/postgres"
	"github.com/imgvault/imgvault/pkg/s3client"
)

func Run(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logger
	l := logger.New(cfg.Log.Level)

	// Repository

	// s3
	s3Ctx, s3Cancel := context.WithTimeout(ctx, cfg.S3.CfgLoadTimeout)
	defer s3Cancel()
	s3c, err := s3client.New(s3Ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, s3client.Region(cfg.S3.Region))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - s3client.New: %w", err))
	}

	// postgres
	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - postgres.New: %w", err))
	}
	defer pg.Close()

	// Use-Case
	imageUseCase := image.New(
		persistent.NewImageRepo(s3c, cfg.S3.Bucket),
		persistent.NewImageMetadataRepo(pg),
		persistent.NewOutboxImageMetadataRepo(pg),
		pg,
		cfg.Images.AllowedExtensions,
		l,
	)

	// Kafka Producer
	kafkaProducer, err := producer.New(ctx, cfg.Kafka.Brokers)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - producer.New: %w", err))
	}

	// Outbox Relay Worker
	outboxRelayWorker := outbox.New(
		imageUseCase,
		infrakafka.NewEventProducer(kafkaProducer, cfg.Kafka.Topic),
		l,
		cfg.OutboxRelay.PollInterval,
		cfg.OutboxRelay.CleanupInterval,
		cfg.OutboxRelay.MarkFailedInterval,
		cfg.OutboxRelay.ProcessBatchTimeout,
		cfg.OutboxRelay.BatchSize,
		cfg.OutboxRelay.MaxRetries,
	)

	// Kafka Consumer
	kafkaConsumer, err := consumer.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - consumer.New: %w", err))
	}

	// Consistency verifier fed by lifecycle events
	verifier := kafkactrl.New(
		imageUseCase,
		infrakafka.NewEventConsumer(kafkaConsumer),
		l,
		cfg.Verifier.CommitTimeout,
		cfg.Verifier.ProcessTimeout,
		runtime.NumCPU(),
	)

	// HTTP Server
	httpServer := httpserver.New(l, httpserver.Port(cfg.HTTP.Port), httpserver.Prefork(cfg.HTTP.UsePreforkMode))
	restapi.NewRouter(httpServer.App, cfg, imageUseCase, l)

	// Start Components
	err = outboxRelayWorker.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - outboxRelayWorker.Start: %w", err))
	}
	err = verifier.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - verifier.Start: %w", err))
	}
	httpServer.Start()

	// Waiting Signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: %s", s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	// Shutdown
	err = httpServer.Shutdown()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err))
	}

	orlShutdownCtx, orlShutdownCancel := context.WithTimeout(ctx, cfg.OutboxRelay.ShutdownTimeout)
	defer orlShutdownCancel()
	err = outboxRelayWorker.Shutdown(orlShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - outboxRelayWorker.Shutdown: %w", err))
	}

	vShutdownCtx, vShutdownCancel := context.WithTimeout(ctx, cfg.Verifier.ShutdownTimeout)
	defer vShutdownCancel()
	err = verifier.Shutdown(vShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - verifier.Shutdown: %w", err))
	}
}

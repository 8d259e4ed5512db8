package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
	"github.com/streamkit/hls-processing-service/internal/infra/config"
	"github.com/streamkit/hls-processing-service/internal/infra/email"
	"github.com/streamkit/hls-processing-service/internal/infra/ffmpeg"
	"github.com/streamkit/hls-processing-service/internal/infra/httpfetch"
	"github.com/streamkit/hls-processing-service/internal/infra/metrics"
	miniostorage "github.com/streamkit/hls-processing-service/internal/infra/minio"
	"github.com/streamkit/hls-processing-service/internal/infra/postgres"
	"github.com/streamkit/hls-processing-service/internal/infra/rabbitmq"
	"github.com/streamkit/hls-processing-service/internal/infra/rediscache"
	"github.com/streamkit/hls-processing-service/internal/infra/tracing"
	"github.com/streamkit/hls-processing-service/internal/playlist"
	"github.com/streamkit/hls-processing-service/internal/streamer"
	"github.com/streamkit/hls-processing-service/internal/usecase"
	"github.com/streamkit/hls-processing-service/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting hls-processing-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// Object storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    cfg.MinIOEndpoint,
		AccessKey:   cfg.MinIOAccessKey,
		SecretKey:   cfg.MinIOSecretKey,
		UseSSL:      cfg.MinIOUseSSL,
		MediaBucket: cfg.MinIOMediaBucket,
		BaseURL:     cfg.MediaBaseURL,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBucket(ctx), "ensure media bucket")

	// Completed-task cache (optional). A nil *CompletedCache must stay a
	// nil interface inside the use cases.
	var completedCache port.CompletedCache
	if cfg.RedisAddr != "" {
		cache, err := rediscache.Connect(cfg.RedisAddr)
		fatalOnErr(err, "connect to redis")
		defer cache.Close()
		completedCache = cache
	}

	// RabbitMQ
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq")
	defer rmqConn.Close()

	fatalOnErr(rabbitmq.DeclareTopology(rmqConn, rabbitmq.Topology{
		Exchange:      cfg.RabbitMQExchange,
		DispatchQueue: cfg.RabbitMQDispatchQueue,
		TaskQueue:     cfg.RabbitMQTaskQueue,
		StatusQueue:   cfg.RabbitMQStatusQueue,
		DLQ:           cfg.RabbitMQDLQ,
	}), "declare rabbitmq topology")

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	taskQueue := rabbitmq.NewTaskQueueClient(pub)
	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	taskRepo := postgres.NewTaskRepository(pool)
	videoRepo := postgres.NewVideoRepository(pool)
	txm := postgres.NewTxManager(pool)
	fetcher := httpfetch.New(time.Duration(cfg.FetchTimeoutSeconds) * time.Second)
	thumbs := ffmpeg.NewThumbnailExtractor(fetcher, storage, log, cfg.TempDir, cfg.ThumbnailWidth)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use cases
	dispatcher, err := usecase.NewTaskDispatcher(taskRepo, txm, taskQueue, completedCache, log, usecase.DispatcherConfig{
		ServiceAccountEmail: cfg.ServiceAccountEmail,
	})
	fatalOnErr(err, "create task dispatcher")

	dispatchHandler := usecase.NewDispatchRequestHandler(dispatcher, dlqPub, log, usecase.DispatchRequestConfig{
		TaskQueue:     cfg.RabbitMQTaskQueue,
		TargetBaseURL: cfg.TaskTargetBaseURL,
		Audience:      cfg.TaskAudience,
	})

	finalizer := usecase.NewVideoFinalizer(taskRepo, videoRepo, txm, completedCache, statusPub, log)

	streamUC := usecase.NewStreamHLSUseCase(
		playlist.NewParser(fetcher, log),
		streamer.New(fetcher, storage, log),
		thumbs, finalizer, taskRepo, txm, storage, dlqPub, notifier, log,
		usecase.StreamHLSConfig{
			ConcurrencyLimit:    cfg.ConcurrencyLimit,
			MaxSegmentSizeBytes: cfg.MaxSegmentSizeBytes,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumers
	dispatchConsumer, err := rabbitmq.NewConsumer(rmqConn, rabbitmq.ConsumerConfig{
		Queue:       cfg.RabbitMQDispatchQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, dispatchHandler.Execute, log)
	fatalOnErr(err, "create dispatch consumer")

	taskConsumer, err := rabbitmq.NewConsumer(rmqConn, rabbitmq.ConsumerConfig{
		Queue:       cfg.RabbitMQTaskQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, streamUC.Execute, log)
	fatalOnErr(err, "create task consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("hls-processing-service started, consuming messages")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatchConsumer.Start(gctx) })
	g.Go(func() error { return taskConsumer.Start(gctx) })
	if err := g.Wait(); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	dispatchConsumer.Close()
	taskConsumer.Close()
	log.Info("hls-processing-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}

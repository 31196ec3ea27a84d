// Package cmd provides command-line interface functionality for the
// document migration application.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	inmessaging "github.com/19karthik/document-migration/internal/adapter/inbound/messaging"
	"github.com/19karthik/document-migration/internal/adapter/outbound/ingestion"
	outmessaging "github.com/19karthik/document-migration/internal/adapter/outbound/messaging"
	"github.com/19karthik/document-migration/internal/adapter/outbound/repository"
	"github.com/19karthik/document-migration/internal/adapter/outbound/storage"
	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/application/worker"
	"github.com/19karthik/document-migration/internal/config"
	"github.com/19karthik/document-migration/internal/port/inbound"
)

// newWorkerCmd creates and returns the worker command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the migration worker",
		Long: `Start the worker that drains the migration job queue.

The worker:
- Consumes job messages from NATS JetStream with a durable pull subscription
- Downloads and unpacks each job's bundle from object storage
- Splits documents into batches and uploads them with bounded retries
- Aggregates terminal failures into a downloadable error artifact
- Records job status transitions in PostgreSQL

Configuration is loaded from config files and environment variables.`,
		Run: func(_ *cobra.Command, _ []string) {
			runWorker()
		},
	}
}

func runWorker() {
	cfg := GetConfig()
	ctx := context.Background()

	slogger.InfoNoCtx("Starting migration worker", slogger.Fields{
		"subject":           cfg.Worker.Subject,
		"queue_group":       cfg.Worker.QueueGroup,
		"batch_concurrency": cfg.Worker.BatchConcurrency,
	})

	dbPool, err := repository.NewDatabaseConnection(ctx, cfg.Database)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create database connection pool", slogger.Fields{"error": err.Error()})
		return
	}
	defer dbPool.Close()

	dlqConn, err := nats.Connect(cfg.NATS.URL,
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Name("docmigrate-publisher-"+cfg.Worker.WorkerID),
	)
	if err != nil {
		slogger.ErrorNoCtx("Failed to connect to NATS for publishing", slogger.Fields{"error": err.Error()})
		return
	}
	defer dlqConn.Close()

	js, err := dlqConn.JetStream()
	if err != nil {
		slogger.ErrorNoCtx("Failed to create JetStream context", slogger.Fields{"error": err.Error()})
		return
	}

	consumer, err := buildConsumer(ctx, cfg, dbPool, js)
	if err != nil {
		slogger.ErrorNoCtx("Failed to build consumer", slogger.Fields{"error": err.Error()})
		return
	}

	if err := consumer.Start(ctx); err != nil {
		slogger.ErrorNoCtx("Failed to start consumer", slogger.Fields{"error": err.Error()})
		return
	}

	waitForShutdownAndStop(consumer, cfg)
}

// buildConsumer wires the full job pipeline behind a queue consumer.
func buildConsumer(
	ctx context.Context,
	cfg *config.Config,
	dbPool *pgxpool.Pool,
	js nats.JetStreamContext,
) (inbound.Consumer, error) {
	jobRepo := repository.NewPostgreSQLJobRepository(dbPool)
	batchRepo := repository.NewPostgreSQLBatchRepository(dbPool)

	store, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	uploadClient := ingestion.NewHTTPUploadClient(cfg.Ingestion)

	policy, err := cfg.Batch.BatchPolicy()
	if err != nil {
		return nil, err
	}

	engine := worker.NewRetryEngine(uploadClient, worker.RetryPolicy{
		MaxRetries:     cfg.Batch.MaxRetries,
		InitialBackoff: cfg.Batch.InitialBackoff,
		MaxBackoff:     cfg.Batch.MaxBackoff,
		BackoffFactor:  cfg.Batch.BackoffFactor,
		Jitter:         cfg.Batch.Jitter,
	})

	metrics, err := worker.NewJobMetrics(cfg.Worker.WorkerID)
	if err != nil {
		return nil, err
	}

	controller := worker.NewJobController(
		jobRepo,
		batchRepo,
		store,
		uploadClient,
		worker.NewArchiveExtractor(),
		worker.NewBatchPlanner(policy),
		engine,
		metrics,
		worker.JobControllerConfig{
			ScratchDir:       cfg.Worker.ScratchDir,
			ArtifactBucket:   cfg.Storage.Bucket,
			PresignExpiry:    cfg.Storage.PresignExpiry,
			BatchConcurrency: cfg.Worker.BatchConcurrency,
			AsyncMode:        cfg.Ingestion.Mode == "async",
			CallbackBaseURL:  cfg.Ingestion.CallbackBaseURL,
			WorkerID:         cfg.Worker.WorkerID,
		},
	)

	dlqPublisher := outmessaging.NewNATSPublisher(js, cfg.Worker.Subject, cfg.NATS.DLQSubject)

	return inmessaging.NewNATSConsumer(
		inmessaging.ConsumerConfig{
			Subject:        cfg.Worker.Subject,
			QueueGroup:     cfg.Worker.QueueGroup,
			DurableName:    cfg.Worker.DurableName,
			AckWait:        cfg.Worker.AckWait,
			MaxDeliver:     cfg.Worker.MaxDeliver,
			MaxAckPending:  100,
			ExtendInterval: cfg.Worker.ExtendInterval,
			JobTimeout:     cfg.Worker.JobTimeout,
			WorkerID:       cfg.Worker.WorkerID,
		},
		cfg.NATS,
		controller,
		jobRepo,
		dlqPublisher,
		metrics,
	)
}

func waitForShutdownAndStop(consumer inbound.Consumer, cfg *config.Config) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	slogger.InfoNoCtx("Received shutdown signal, initiating graceful shutdown", slogger.Fields{
		"signal": sig.String(),
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Error during consumer shutdown", slogger.Fields{"error": err.Error()})
	} else {
		slogger.InfoNoCtx("Worker shutdown completed", nil)
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newWorkerCmd())
}

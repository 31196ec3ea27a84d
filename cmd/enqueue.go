package cmd

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	inmessaging "github.com/19karthik/document-migration/internal/adapter/inbound/messaging"
	outmessaging "github.com/19karthik/document-migration/internal/adapter/outbound/messaging"
	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/domain/messaging"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

var enqueueOpts struct {
	objectID string
	tenantID string
	bucket   string
	key      string
	fileType string
	password string
}

// newEnqueueCmd creates and returns the enqueue command.
func newEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish a migration job message to the work queue",
		Long: `Publish a single migration job message for the bundle at the given
object-storage location. Useful for re-driving a dead-lettered job or for
seeding a queue during testing. The message ID doubles as the JetStream
deduplication ID, so re-running with the same object ID is safe.`,
		Run: func(_ *cobra.Command, _ []string) {
			runEnqueue()
		},
	}

	cmd.Flags().StringVar(&enqueueOpts.objectID, "object-id", "", "Job identifier (required)")
	cmd.Flags().StringVar(&enqueueOpts.tenantID, "tenant", "", "Tenant owning the bundle (defaults to the first key segment)")
	cmd.Flags().StringVar(&enqueueOpts.bucket, "bucket", "", "Source bucket holding the bundle (required)")
	cmd.Flags().StringVar(&enqueueOpts.key, "key", "", "Source key of the bundle (required)")
	cmd.Flags().StringVar(&enqueueOpts.fileType, "file-type", "zip", "Declared bundle type")
	cmd.Flags().StringVar(&enqueueOpts.password, "password", "", "Archive password (defaults to the filename token)")
	_ = cmd.MarkFlagRequired("object-id")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runEnqueue() {
	cfg := GetConfig()
	ctx := context.Background()

	conn, err := nats.Connect(cfg.NATS.URL,
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Name("docmigrate-enqueue"),
	)
	if err != nil {
		slogger.ErrorNoCtx("Failed to connect to NATS", slogger.Fields{"error": err.Error()})
		return
	}
	defer conn.Close()

	js, err := conn.JetStream()
	if err != nil {
		slogger.ErrorNoCtx("Failed to create JetStream context", slogger.Fields{"error": err.Error()})
		return
	}
	if err := inmessaging.EnsureStream(js, cfg.Worker.Subject, cfg.NATS.DLQSubject); err != nil {
		slogger.ErrorNoCtx("Failed to ensure stream", slogger.Fields{"error": err.Error()})
		return
	}

	msg := messaging.NewMigrationJobMessage(
		enqueueOpts.objectID,
		enqueueOpts.tenantID,
		enqueueOpts.bucket,
		enqueueOpts.key,
	)
	msg.FileType = enqueueOpts.fileType
	msg.ArchivePassword = enqueueOpts.password

	var publisher outbound.MessagePublisher = outmessaging.NewNATSPublisher(js, cfg.Worker.Subject, cfg.NATS.DLQSubject)
	if err := publisher.PublishJob(ctx, msg); err != nil {
		slogger.ErrorNoCtx("Failed to publish job message", slogger.Fields{"error": err.Error()})
		return
	}

	slogger.InfoNoCtx("Job message enqueued", slogger.Fields{
		"object_id":  msg.ObjectID,
		"message_id": msg.MessageID,
		"subject":    cfg.Worker.Subject,
	})
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newEnqueueCmd())
}

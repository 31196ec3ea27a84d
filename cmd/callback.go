package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/19karthik/document-migration/internal/adapter/inbound/api"
	"github.com/19karthik/document-migration/internal/adapter/outbound/ingestion"
	"github.com/19karthik/document-migration/internal/adapter/outbound/repository"
	"github.com/19karthik/document-migration/internal/adapter/outbound/storage"
	"github.com/19karthik/document-migration/internal/application/common/slogger"
)

// newCallbackCmd creates and returns the callback server command.
func newCallbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callback",
		Short: "Start the batch callback HTTP server",
		Long: `Start the HTTP server that receives per-batch outcomes from the
ingestion endpoint in asynchronous upload mode. Failed batches are resubmitted
up to a retry cap; jobs are finalized once their last batch resolves.`,
		Run: func(_ *cobra.Command, _ []string) {
			runCallbackServer()
		},
	}
}

func runCallbackServer() {
	cfg := GetConfig()
	ctx := context.Background()

	dbPool, err := repository.NewDatabaseConnection(ctx, cfg.Database)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create database connection pool", slogger.Fields{"error": err.Error()})
		return
	}
	defer dbPool.Close()

	store, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create object store", slogger.Fields{"error": err.Error()})
		return
	}

	handler := api.NewCallbackHandler(
		repository.NewPostgreSQLJobRepository(dbPool),
		repository.NewPostgreSQLBatchRepository(dbPool),
		ingestion.NewHTTPUploadClient(cfg.Ingestion),
		store,
		cfg.Storage.Bucket,
		cfg.Ingestion.CallbackBaseURL,
		cfg.Callback.MaxRetries,
	)

	addr := net.JoinHostPort(cfg.Callback.Host, cfg.Callback.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Callback.ReadTimeout,
		WriteTimeout: cfg.Callback.WriteTimeout,
	}

	go func() {
		slogger.InfoNoCtx("Callback server listening", slogger.Fields{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.ErrorNoCtx("Callback server failed", slogger.Fields{"error": err.Error()})
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slogger.InfoNoCtx("Received shutdown signal, stopping callback server", slogger.Fields{
		"signal": sig.String(),
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Error during callback server shutdown", slogger.Fields{"error": err.Error()})
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newCallbackCmd())
}

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docmigrate",
	Short: "Asynchronous document migration worker",
	Long: `Docmigrate drains a queue of document migration jobs. Each job references
a compressed bundle in object storage; the worker downloads and unpacks the
bundle, splits the documents into batches, uploads them to the ingestion
endpoint with bounded retries, aggregates terminal failures into a
downloadable error artifact, and records job status in PostgreSQL.

The system supports:
- NATS JetStream job consumption with visibility extension and a dead-letter cap
- S3-compatible bundle and artifact storage with presigned retrieval links
- Password-protected zip bundles
- Synchronous per-item upload results or asynchronous callback resolution`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	// Bind flags to viper
	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DOCMIGRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; use defaults and environment
	}

	cfg = config.New(v)

	slogger.Configure(slogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

func setDefaults(v *viper.Viper) {
	// Worker defaults
	v.SetDefault("worker.worker_id", "worker-1")
	v.SetDefault("worker.subject", "migration.job")
	v.SetDefault("worker.queue_group", "migration-workers")
	v.SetDefault("worker.durable_name", "migration-consumer")
	v.SetDefault("worker.scratch_dir", os.TempDir())
	v.SetDefault("worker.ack_wait", "60s")
	v.SetDefault("worker.max_deliver", 3)
	v.SetDefault("worker.extend_interval", "20s")
	v.SetDefault("worker.batch_concurrency", 1)
	v.SetDefault("worker.job_timeout", "30m")
	v.SetDefault("worker.shutdown_timeout", "30s")

	// Batch defaults
	v.SetDefault("batch.policy", "count")
	v.SetDefault("batch.count", 10)
	v.SetDefault("batch.max_bytes", 50*1024*1024)
	v.SetDefault("batch.max_retries", 5)
	v.SetDefault("batch.initial_backoff", "1s")
	v.SetDefault("batch.max_backoff", "30s")
	v.SetDefault("batch.backoff_factor", 2.0)
	v.SetDefault("batch.jitter", true)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "docmigration")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.dlq_subject", "migration.dlq")

	// Storage defaults
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presign_expiry", "1h")

	// Ingestion defaults
	v.SetDefault("ingestion.mode", "sync")
	v.SetDefault("ingestion.request_timeout", "5m")

	// Callback server defaults
	v.SetDefault("callback.host", "0.0.0.0")
	v.SetDefault("callback.port", "8081")
	v.SetDefault("callback.read_timeout", "10s")
	v.SetDefault("callback.write_timeout", "10s")
	v.SetDefault("callback.max_retries", 5)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}

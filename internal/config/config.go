package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/19karthik/document-migration/internal/domain/valueobject"
)

// Config holds the complete application configuration.
type Config struct {
	Worker    WorkerConfig    `mapstructure:"worker"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Callback  CallbackConfig  `mapstructure:"callback"`
	Log       LogConfig       `mapstructure:"log"`
}

// WorkerConfig holds the queue consumption settings.
type WorkerConfig struct {
	WorkerID          string        `mapstructure:"worker_id"`
	Subject           string        `mapstructure:"subject"`
	QueueGroup        string        `mapstructure:"queue_group"`
	DurableName       string        `mapstructure:"durable_name"`
	ScratchDir        string        `mapstructure:"scratch_dir"`
	AckWait           time.Duration `mapstructure:"ack_wait"`            // visibility window per delivery
	MaxDeliver        int           `mapstructure:"max_deliver"`         // dead-letter after this many deliveries
	ExtendInterval    time.Duration `mapstructure:"extend_interval"`     // how often to extend visibility mid-job
	BatchConcurrency  int           `mapstructure:"batch_concurrency"`   // parallel batch submissions per job
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// BatchConfig holds batch planning and retry settings.
type BatchConfig struct {
	Policy         string        `mapstructure:"policy"`    // "count" or "size"
	Count          int           `mapstructure:"count"`     // items per batch for count policy
	MaxBytes       int64         `mapstructure:"max_bytes"` // byte threshold for size policy
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	BackoffFactor  float64       `mapstructure:"backoff_factor"`
	Jitter         bool          `mapstructure:"jitter"`
}

// BatchPolicy builds the planner policy from configuration.
func (b BatchConfig) BatchPolicy() (valueobject.BatchPolicy, error) {
	return valueobject.NewBatchPolicy(b.Policy, b.Count, b.MaxBytes)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	DLQSubject    string        `mapstructure:"dlq_subject"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	Region        string        `mapstructure:"region"`
	Bucket        string        `mapstructure:"bucket"`
	Endpoint      string        `mapstructure:"endpoint"` // optional, for MinIO and tests
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// IngestionConfig holds the ingestion endpoint settings.
type IngestionConfig struct {
	URL             string        `mapstructure:"url"`
	AsyncURL        string        `mapstructure:"async_url"`
	CallbackBaseURL string        `mapstructure:"callback_base_url"`
	APIKey          string        `mapstructure:"api_key"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	Mode            string        `mapstructure:"mode"` // "sync" or "async"
}

// CallbackConfig holds the callback HTTP server settings.
type CallbackConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"` // resubmissions before archiving a batch
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) *Config {
	var config Config

	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}

	if err := config.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	return &config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}
	if c.Worker.Subject == "" {
		return errors.New("worker.subject is required")
	}
	if c.Worker.MaxDeliver < 1 {
		return errors.New("worker.max_deliver must be at least 1")
	}
	if c.Worker.AckWait <= 0 {
		return errors.New("worker.ack_wait must be positive")
	}
	if c.Worker.BatchConcurrency < 1 {
		return errors.New("worker.batch_concurrency must be at least 1")
	}
	if _, err := c.Batch.BatchPolicy(); err != nil {
		return fmt.Errorf("batch policy: %w", err)
	}
	if c.Batch.MaxRetries < 1 {
		return errors.New("batch.max_retries must be at least 1")
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	if c.Ingestion.URL == "" {
		return errors.New("ingestion.url is required")
	}
	if c.Ingestion.Mode != "sync" && c.Ingestion.Mode != "async" {
		return errors.New("ingestion.mode must be sync or async")
	}
	if c.Ingestion.Mode == "async" {
		if c.Ingestion.AsyncURL == "" {
			return errors.New("ingestion.async_url is required in async mode")
		}
		if c.Ingestion.CallbackBaseURL == "" {
			return errors.New("ingestion.callback_base_url is required in async mode")
		}
	}
	return nil
}

// Package config loads the pipeline's configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
)

// Config is the top-level configuration, one nested struct per concern.
type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Store    StoreConfig
	S3       S3Config
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

// ServerConfig configures the HTTP API process (cmd/api).
type ServerConfig struct {
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	UploadPath      string        `envconfig:"UPLOAD_PATH" default:"/tmp/vellumpipeline/uploads"`
	// MaxFileSize is a human-readable size string (e.g. "200mb"), parsed by
	// MaxFileSizeBytes via dustin/go-humanize rather than hand-rolled.
	MaxFileSize      string   `envconfig:"MAX_FILE_SIZE" default:"200mb"`
	AllowedFileTypes []string `envconfig:"ALLOWED_FILE_TYPES" default:"video/mp4,video/quicktime,video/x-matroska,video/x-msvideo,video/webm"`
	VellumHost       string   `envconfig:"VELLUM_HOST" default:"http://localhost:8080"`
}

// MaxFileSizeBytes parses ServerConfig.MaxFileSize into bytes.
func (c ServerConfig) MaxFileSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("parse MAX_FILE_SIZE %q: %w", c.MaxFileSize, err)
	}
	return int64(n), nil
}

// AuthConfig configures the single static bearer token every request must carry.
type AuthConfig struct {
	APIKey string `envconfig:"API_KEY" required:"true"`
}

// WorkerConfig configures the transcode worker process (cmd/worker).
//
// The callback retry ceiling is not here: it is model.MaxCallbackAttempts,
// a domain invariant baked into VideoRecord.RecordCallbackAttempt and
// EligibleForCallback rather than a runtime knob, so it isn't duplicated
// as an env var that would silently disagree with the persisted state
// machine if ever changed.
type WorkerConfig struct {
	TempDir               string        `envconfig:"WORKER_TEMP_DIR" default:"/tmp/vellumpipeline/work"`
	ShutdownTimeout       time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	CallbackSweepInterval time.Duration `envconfig:"CALLBACK_SWEEP_INTERVAL" default:"5m"`
}

// StoreConfig configures the embedded bbolt record store. It has no named
// env var upstream - swapping the durable record store (postgres -> bbolt)
// introduces a path the original system never needed to name.
type StoreConfig struct {
	Path string `envconfig:"STORE_PATH" default:"/var/lib/vellumpipeline/videos.db"`
}

// S3Config configures the S3-compatible object store client.
type S3Config struct {
	AccessKey    string `envconfig:"S3_ACCESS_KEY" required:"true"`
	SecretKey    string `envconfig:"S3_SECRET_KEY" required:"true"`
	Endpoint     string `envconfig:"S3_ENDPOINT" required:"true"`
	Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	Bucket       string `envconfig:"S3_BUCKET" required:"true"`
	UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"true"`
}

// RabbitMQConfig configures the durable task queue. Only the credentials are
// named upstream; host/port/vhost are ambient infrastructure details the
// upstream spec leaves to the deployment, so they get sensible defaults
// instead of invented env vars.
type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_DEFAULT_USER" default:"vellum"`
	Password string `envconfig:"RABBITMQ_DEFAULT_PASS" default:"vellum"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

// URL builds the AMQP connection string.
func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

// RedisConfig configures the read-through status/listing cache.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Addr returns the host:port address go-redis expects.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads Config from the environment, applying defaults and failing on
// any missing required field.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

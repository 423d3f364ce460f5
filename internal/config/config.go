package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/scan-dispatch/internal/logger"
)

// Queue backends.
const (
	QueueBackendCloudTasks = "cloudtasks"
	QueueBackendAMQP       = "amqp"
	QueueBackendMemory     = "memory"
)

// DefaultMaxJobLifetime bounds how long a task may remain undelivered or
// retriable in the queue.
const DefaultMaxJobLifetime = 60 * time.Minute

// Config holds the application's configuration values.
type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Database DBConfig
	Queue    QueueConfig
	GitHub   GitHubConfig
	Redis    RedisConfig
	Logging  logger.Config
}

// ServerConfig configures the API process.
type ServerConfig struct {
	Port string
	// APIToken guards the read-only job API. Empty disables the check.
	APIToken string
	// DedupDeliveries enables delivery-ID deduplication of webhooks.
	DedupDeliveries bool
	DedupTTL        time.Duration
}

// WorkerConfig configures the worker process.
type WorkerConfig struct {
	Port string
	// AuthToken is the bearer credential the queue presents when invoking
	// /run-scan. Empty disables the check.
	AuthToken       string
	MaxWorkers      int
	ScanTimeout     time.Duration
	ScanDuration    time.Duration
	ShutdownTimeout time.Duration
}

// DBConfig holds database connection settings.
type DBConfig struct {
	Driver          string
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	SSLMode         string
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// QueueConfig selects and configures the task queue backend.
type QueueConfig struct {
	Backend             string
	WorkerURL           string
	MaxJobLifetime      time.Duration
	ProjectID           string
	Location            string
	QueueID             string
	ServiceAccountEmail string
	AMQPURL             string
	Exchange            string
	QueueName           string
	RoutingKey          string
	RelayConcurrency    int
	BreakerFailures     uint32
	BreakerTimeout      time.Duration
}

// GitHubConfig holds GitHub credentials.
type GitHubConfig struct {
	WebhookSecret  string
	Token          string
	AppID          int64
	PrivateKeyPath string
}

// RedisConfig points at the Redis instance used for delivery deduplication.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets defaults, and validates the fields every process needs. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_DEDUP_TTL", 24*time.Hour)
	viper.SetDefault("WORKER_PORT", "8081")
	viper.SetDefault("WORKER_MAX_WORKERS", 5)
	viper.SetDefault("WORKER_SCAN_DURATION", 30*time.Second)
	viper.SetDefault("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second)
	viper.SetDefault("DATABASE_DRIVER", "postgres")
	viper.SetDefault("DATABASE_HOST", "localhost")
	viper.SetDefault("DATABASE_PORT", 5432)
	viper.SetDefault("DATABASE_SSLMODE", "disable")
	viper.SetDefault("DATABASE_PATH", "data/scan-dispatch.db")
	viper.SetDefault("DATABASE_MAX_OPEN_CONNS", 10)
	viper.SetDefault("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute)
	viper.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute)
	viper.SetDefault("QUEUE_BACKEND", QueueBackendCloudTasks)
	viper.SetDefault("QUEUE_MAX_JOB_LIFETIME", DefaultMaxJobLifetime)
	viper.SetDefault("QUEUE_EXCHANGE", "scan-tasks")
	viper.SetDefault("QUEUE_QUEUE_NAME", "scan-tasks")
	viper.SetDefault("QUEUE_ROUTING_KEY", "scan")
	viper.SetDefault("QUEUE_RELAY_CONCURRENCY", 10)
	viper.SetDefault("QUEUE_BREAKER_FAILURES", 5)
	viper.SetDefault("QUEUE_BREAKER_TIMEOUT", 30*time.Second)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("LOG_OUTPUT", "stdout")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("failed to read config file", "error", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetString("SERVER_PORT"),
			APIToken:        viper.GetString("SERVER_API_TOKEN"),
			DedupDeliveries: viper.GetBool("SERVER_DEDUP_DELIVERIES"),
			DedupTTL:        viper.GetDuration("SERVER_DEDUP_TTL"),
		},
		Worker: WorkerConfig{
			Port:            viper.GetString("WORKER_PORT"),
			AuthToken:       viper.GetString("WORKER_AUTH_TOKEN"),
			MaxWorkers:      viper.GetInt("WORKER_MAX_WORKERS"),
			ScanTimeout:     viper.GetDuration("WORKER_SCAN_TIMEOUT"),
			ScanDuration:    viper.GetDuration("WORKER_SCAN_DURATION"),
			ShutdownTimeout: viper.GetDuration("WORKER_SHUTDOWN_TIMEOUT"),
		},
		Database: DBConfig{
			Driver:          strings.ToLower(viper.GetString("DATABASE_DRIVER")),
			Host:            viper.GetString("DATABASE_HOST"),
			Port:            viper.GetInt("DATABASE_PORT"),
			Username:        viper.GetString("DATABASE_USERNAME"),
			Password:        viper.GetString("DATABASE_PASSWORD"),
			Database:        viper.GetString("DATABASE_NAME"),
			SSLMode:         viper.GetString("DATABASE_SSLMODE"),
			Path:            viper.GetString("DATABASE_PATH"),
			MaxOpenConns:    viper.GetInt("DATABASE_MAX_OPEN_CONNS"),
			ConnMaxLifetime: viper.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: viper.GetDuration("DATABASE_CONN_MAX_IDLE_TIME"),
		},
		Queue: QueueConfig{
			Backend:             strings.ToLower(viper.GetString("QUEUE_BACKEND")),
			WorkerURL:           viper.GetString("QUEUE_WORKER_URL"),
			MaxJobLifetime:      viper.GetDuration("QUEUE_MAX_JOB_LIFETIME"),
			ProjectID:           viper.GetString("QUEUE_PROJECT_ID"),
			Location:            viper.GetString("QUEUE_LOCATION"),
			QueueID:             viper.GetString("QUEUE_ID"),
			ServiceAccountEmail: viper.GetString("QUEUE_SERVICE_ACCOUNT_EMAIL"),
			AMQPURL:             viper.GetString("QUEUE_AMQP_URL"),
			Exchange:            viper.GetString("QUEUE_EXCHANGE"),
			QueueName:           viper.GetString("QUEUE_QUEUE_NAME"),
			RoutingKey:          viper.GetString("QUEUE_ROUTING_KEY"),
			RelayConcurrency:    viper.GetInt("QUEUE_RELAY_CONCURRENCY"),
			BreakerFailures:     viper.GetUint32("QUEUE_BREAKER_FAILURES"),
			BreakerTimeout:      viper.GetDuration("QUEUE_BREAKER_TIMEOUT"),
		},
		GitHub: GitHubConfig{
			WebhookSecret:  viper.GetString("GITHUB_WEBHOOK_SECRET"),
			Token:          viper.GetString("GITHUB_TOKEN"),
			AppID:          viper.GetInt64("GITHUB_APP_ID"),
			PrivateKeyPath: viper.GetString("GITHUB_PRIVATE_KEY_PATH"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Logging: logger.Config{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
			Output: viper.GetString("LOG_OUTPUT"),
		},
	}

	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	if cfg.Queue.MaxJobLifetime <= 0 {
		cfg.Queue.MaxJobLifetime = DefaultMaxJobLifetime
	}
	return cfg, nil
}

// ValidateServer checks the settings the API process cannot run without.
func (c *Config) ValidateServer() error {
	if c.GitHub.WebhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET must be set")
	}
	if c.Server.DedupDeliveries && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR must be set when SERVER_DEDUP_DELIVERIES is enabled")
	}
	return c.Queue.Validate()
}

// ValidateWorker checks the settings the worker process cannot run without.
func (c *Config) ValidateWorker() error {
	if c.Worker.MaxWorkers <= 0 {
		return fmt.Errorf("WORKER_MAX_WORKERS must be positive, got %d", c.Worker.MaxWorkers)
	}
	if c.Worker.ScanTimeout < 0 {
		return fmt.Errorf("WORKER_SCAN_TIMEOUT must not be negative")
	}
	if c.Queue.Backend == QueueBackendCloudTasks {
		// Cloud Tasks authenticates with OIDC tokens, never the static token
		if c.Worker.AuthToken != "" {
			return fmt.Errorf("WORKER_AUTH_TOKEN cannot be used with the cloudtasks backend, set QUEUE_SERVICE_ACCOUNT_EMAIL instead")
		}
		if c.Queue.ServiceAccountEmail != "" && c.Queue.WorkerURL == "" {
			return fmt.Errorf("QUEUE_WORKER_URL must be set to verify Cloud Tasks tokens")
		}
	}
	return nil
}

// Validate checks the backend-specific queue settings.
func (q *QueueConfig) Validate() error {
	if q.MaxJobLifetime <= 0 {
		return fmt.Errorf("QUEUE_MAX_JOB_LIFETIME must be positive")
	}
	switch q.Backend {
	case QueueBackendMemory:
		return nil
	case QueueBackendCloudTasks:
		if q.ProjectID == "" || q.Location == "" || q.QueueID == "" {
			return fmt.Errorf("QUEUE_PROJECT_ID, QUEUE_LOCATION and QUEUE_ID must be set for the cloudtasks backend")
		}
	case QueueBackendAMQP:
		if q.AMQPURL == "" {
			return fmt.Errorf("QUEUE_AMQP_URL must be set for the amqp backend")
		}
	default:
		return fmt.Errorf("unsupported queue backend: %q", q.Backend)
	}

	u, err := url.Parse(q.WorkerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("QUEUE_WORKER_URL must be an absolute URL, got %q", q.WorkerURL)
	}
	return nil
}

// QueuePath returns the fully qualified Cloud Tasks queue name.
func (q *QueueConfig) QueuePath() string {
	return fmt.Sprintf("projects/%s/locations/%s/queues/%s", q.ProjectID, q.Location, q.QueueID)
}

// Validate checks the database driver settings.
func (d *DBConfig) Validate() error {
	switch d.Driver {
	case "postgres":
		if d.Database == "" {
			return fmt.Errorf("DATABASE_NAME must be set for the postgres driver")
		}
	case "sqlite":
		if d.Path == "" {
			return fmt.Errorf("DATABASE_PATH must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", d.Driver)
	}
	return nil
}

// DSN returns the driver-specific data source name.
func (d *DBConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
}

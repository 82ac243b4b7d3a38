package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qbui/audio-processor/internal/consumer"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Queue    QueueConfig    `yaml:"queue"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration, used when the
// status store provider is "postgres"
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration, used
// when the queue transport is "rabbitmq" or completion events publish to AMQP
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// QueueConfig holds job queue consumer configuration
type QueueConfig struct {
	Transport         string        `yaml:"transport"`
	APIURL            string        `yaml:"api_url"`
	APIToken          string        `yaml:"api_token"`
	PriorityQueue     string        `yaml:"priority_queue"`
	NormalQueue       string        `yaml:"normal_queue"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	BatchSize         int           `yaml:"batch_size"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig holds blob and status store configuration
type StorageConfig struct {
	R2     R2Config     `yaml:"r2"`
	Status StatusConfig `yaml:"status"`
}

// R2Config holds S3-compatible object storage settings
type R2Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// StatusConfig selects and configures the batch status store
type StatusConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	InternalSecret string `yaml:"internal_secret"`
}

// PipelineConfig holds processing pipeline settings
type PipelineConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Language   string        `yaml:"language"`
	ASR        ASRConfig     `yaml:"asr"`
	VAD        ProviderRef   `yaml:"vad"`
	Denoise    ProviderRef   `yaml:"denoise"`
	Emotion    EmotionConfig `yaml:"emotion"`
}

// ASRConfig holds speech recognition provider settings
type ASRConfig struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ProviderRef names a registered engine provider
type ProviderRef struct {
	Provider string `yaml:"provider"`
}

// EmotionConfig holds emotion analysis provider settings. An empty provider
// disables analysis.
type EmotionConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
}

// Load reads and parses the configuration file, then applies secret
// overrides from the environment
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	return &config, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file
func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"QUEUE_API_TOKEN", &c.Queue.APIToken},
		{"R2_ACCESS_KEY_ID", &c.Storage.R2.AccessKeyID},
		{"R2_SECRET_ACCESS_KEY", &c.Storage.R2.SecretAccessKey},
		{"WORKER_API_INTERNAL_SECRET", &c.Storage.Status.InternalSecret},
		{"SPEECHMATICS_API_KEY", &c.Pipeline.ASR.APIKey},
		{"GOOGLE_NL_API_KEY", &c.Pipeline.Emotion.APIKey},
		{"DB_PASSWORD", &c.Database.Password},
		{"RABBITMQ_PASSWORD", &c.RabbitMQ.Password},
	}
	for _, o := range overrides {
		if value := os.Getenv(o.env); value != "" {
			*o.target = value
		}
	}
}

// ValidateProcessorConfig checks the configuration the processor service
// needs to start
func (c *Config) ValidateProcessorConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	switch c.Queue.Transport {
	case "cloudflare":
		if c.Queue.APIURL == "" {
			return fmt.Errorf("queue api_url is required for the cloudflare transport")
		}
	case "rabbitmq":
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid queue transport: %q (must be cloudflare or rabbitmq)", c.Queue.Transport)
	}

	if c.Queue.PriorityQueue == "" && c.Queue.NormalQueue == "" {
		return fmt.Errorf("at least one of priority_queue and normal_queue is required")
	}

	if c.Queue.VisibilityTimeout < consumer.MinVisibilityTimeout {
		return fmt.Errorf("queue visibility_timeout must be at least %s, got %s",
			consumer.MinVisibilityTimeout, c.Queue.VisibilityTimeout)
	}

	if c.Storage.R2.Endpoint == "" {
		return fmt.Errorf("r2 endpoint is required")
	}

	if c.Storage.R2.Bucket == "" {
		return fmt.Errorf("r2 bucket is required")
	}

	switch c.Storage.Status.Provider {
	case "workerapi":
		if c.Storage.Status.BaseURL == "" {
			return fmt.Errorf("status base_url is required for the workerapi provider")
		}
	case "postgres":
		if err := c.validateDatabase(); err != nil {
			return err
		}
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid status provider: %q (must be workerapi or postgres)", c.Storage.Status.Provider)
	}

	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline max_retries must not be negative")
	}

	if c.Pipeline.BaseDelay <= 0 {
		return fmt.Errorf("pipeline base_delay must be greater than 0")
	}

	if c.Pipeline.ASR.Provider == "" {
		return fmt.Errorf("asr provider is required")
	}

	if c.Pipeline.VAD.Provider == "" {
		return fmt.Errorf("vad provider is required")
	}

	if c.Pipeline.Denoise.Provider == "" {
		return fmt.Errorf("denoise provider is required")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}

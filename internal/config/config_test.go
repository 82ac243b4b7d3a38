package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, "audio-processor", cfg.App.Name)
				assert.Equal(t, 8081, cfg.Server.Port)
				assert.Equal(t, "cloudflare", cfg.Queue.Transport)
				assert.Equal(t, "audio-jobs-priority", cfg.Queue.PriorityQueue)
				assert.Equal(t, 10*time.Minute, cfg.Queue.VisibilityTimeout)
				assert.Equal(t, "audio-batches", cfg.Storage.R2.Bucket)
				assert.Equal(t, "workerapi", cfg.Storage.Status.Provider)
				assert.Equal(t, "speechmatics", cfg.Pipeline.ASR.Provider)
				assert.Equal(t, "null", cfg.Pipeline.VAD.Provider)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QUEUE_API_TOKEN", "env-token")
	t.Setenv("SPEECHMATICS_API_KEY", "env-asr-key")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Queue.APIToken)
	assert.Equal(t, "env-asr-key", cfg.Pipeline.ASR.APIKey)
}

// validProcessorConfig returns a config that passes validation; tests mutate
// one field at a time.
func validProcessorConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8081},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "audio_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "batch_events",
			},
		},
		Queue: QueueConfig{
			Transport:         "cloudflare",
			APIURL:            "https://api.cloudflare.com/client/v4/accounts/test",
			PriorityQueue:     "audio-jobs-priority",
			NormalQueue:       "audio-jobs",
			VisibilityTimeout: 10 * time.Minute,
		},
		Storage: StorageConfig{
			R2: R2Config{
				Endpoint: "localhost:9000",
				Bucket:   "audio-batches",
			},
			Status: StatusConfig{
				Provider: "workerapi",
				BaseURL:  "https://worker.example.com",
			},
		},
		Pipeline: PipelineConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			ASR:        ASRConfig{Provider: "speechmatics"},
			VAD:        ProviderRef{Provider: "null"},
			Denoise:    ProviderRef{Provider: "null"},
		},
	}
}

func TestConfig_ValidateProcessorConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid cloudflare config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid rabbitmq config",
			mutate: func(c *Config) {
				c.Queue.Transport = "rabbitmq"
				c.Queue.APIURL = ""
			},
			wantErr: false,
		},
		{
			name: "valid postgres status provider",
			mutate: func(c *Config) {
				c.Storage.Status = StatusConfig{Provider: "postgres"}
			},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "unknown queue transport",
			mutate:    func(c *Config) { c.Queue.Transport = "sqs" },
			wantErr:   true,
			errString: "invalid queue transport",
		},
		{
			name: "cloudflare transport without api url",
			mutate: func(c *Config) {
				c.Queue.APIURL = ""
			},
			wantErr:   true,
			errString: "api_url is required",
		},
		{
			name: "rabbitmq transport without host",
			mutate: func(c *Config) {
				c.Queue.Transport = "rabbitmq"
				c.RabbitMQ.Host = ""
			},
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name: "no queues configured",
			mutate: func(c *Config) {
				c.Queue.PriorityQueue = ""
				c.Queue.NormalQueue = ""
			},
			wantErr:   true,
			errString: "at least one of priority_queue and normal_queue",
		},
		{
			name: "visibility timeout below floor",
			mutate: func(c *Config) {
				c.Queue.VisibilityTimeout = time.Minute
			},
			wantErr:   true,
			errString: "visibility_timeout must be at least",
		},
		{
			name:      "missing r2 endpoint",
			mutate:    func(c *Config) { c.Storage.R2.Endpoint = "" },
			wantErr:   true,
			errString: "r2 endpoint is required",
		},
		{
			name:      "missing r2 bucket",
			mutate:    func(c *Config) { c.Storage.R2.Bucket = "" },
			wantErr:   true,
			errString: "r2 bucket is required",
		},
		{
			name:      "unknown status provider",
			mutate:    func(c *Config) { c.Storage.Status.Provider = "dynamo" },
			wantErr:   true,
			errString: "invalid status provider",
		},
		{
			name: "workerapi provider without base url",
			mutate: func(c *Config) {
				c.Storage.Status.BaseURL = ""
			},
			wantErr:   true,
			errString: "base_url is required",
		},
		{
			name: "postgres provider without database host",
			mutate: func(c *Config) {
				c.Storage.Status = StatusConfig{Provider: "postgres"}
				c.Database.Host = ""
			},
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "negative max retries",
			mutate:    func(c *Config) { c.Pipeline.MaxRetries = -1 },
			wantErr:   true,
			errString: "max_retries must not be negative",
		},
		{
			name:      "zero base delay",
			mutate:    func(c *Config) { c.Pipeline.BaseDelay = 0 },
			wantErr:   true,
			errString: "base_delay must be greater than 0",
		},
		{
			name:      "missing asr provider",
			mutate:    func(c *Config) { c.Pipeline.ASR.Provider = "" },
			wantErr:   true,
			errString: "asr provider is required",
		},
		{
			name:      "missing vad provider",
			mutate:    func(c *Config) { c.Pipeline.VAD.Provider = "" },
			wantErr:   true,
			errString: "vad provider is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validProcessorConfig()
			tt.mutate(cfg)

			err := cfg.ValidateProcessorConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "webhooks_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "webhooks_exchange",
			},
			Queue: QueueConfig{
				Name: "webhook_deliveries",
			},
			RetryQueue: RetryQueueConfig{
				Name: "webhook_deliveries_retry",
			},
		},
		Worker: WorkerConfig{Concurrency: 5},
		Delivery: DeliveryConfig{
			MaxAttempts:      8,
			BaseDelay:        2 * time.Second,
			Timeout:          12 * time.Second,
			SigningSecret:    "test-secret",
			DefaultTargetURL: "http://localhost:9090/webhook",
		},
		Reconciler: ReconcilerConfig{
			Interval:         time.Minute,
			PendingThreshold: time.Minute,
		},
	}
}

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

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "webhooks_db", cfg.Database.Database)
				assert.Equal(t, "webhooks_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "webhook_deliveries", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "webhook_deliveries_retry", cfg.RabbitMQ.RetryQueue.Name)
				assert.Equal(t, 8, cfg.Delivery.MaxAttempts)
				assert.Equal(t, 2*time.Second, cfg.Delivery.BaseDelay)
				assert.Equal(t, 12*time.Second, cfg.Delivery.Timeout)
				assert.Equal(t, time.Minute, cfg.Reconciler.Interval)
				assert.Equal(t, "webhook-api-service", cfg.App.Name)
			}
		})
	}
}

func TestLoad_SigningSecretFromEnv(t *testing.T) {
	t.Setenv("WEBHOOK_SIGNING_SECRET", "env-secret")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Delivery.SigningSecret)
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
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
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "empty retry queue name",
			mutate:    func(c *Config) { c.RabbitMQ.RetryQueue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq retry queue name is required",
		},
		{
			name:      "zero max attempts",
			mutate:    func(c *Config) { c.Delivery.MaxAttempts = 0 },
			wantErr:   true,
			errString: "max_attempts must be greater than 0",
		},
		{
			name:      "zero base delay",
			mutate:    func(c *Config) { c.Delivery.BaseDelay = 0 },
			wantErr:   true,
			errString: "base_delay must be greater than 0",
		},
		{
			name:      "missing signing secret",
			mutate:    func(c *Config) { c.Delivery.SigningSecret = "" },
			wantErr:   true,
			errString: "signing secret is required",
		},
		{
			name: "no target urls",
			mutate: func(c *Config) {
				c.Delivery.DefaultTargetURL = ""
				c.Delivery.MerchantURLs = nil
			},
			wantErr:   true,
			errString: "delivery target url is required",
		},
		{
			name:      "zero reconciler interval",
			mutate:    func(c *Config) { c.Reconciler.Interval = 0 },
			wantErr:   true,
			errString: "reconciler interval must be greater than 0",
		},
		{
			name:      "zero pending threshold",
			mutate:    func(c *Config) { c.Reconciler.PendingThreshold = 0 },
			wantErr:   true,
			errString: "pending_threshold must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero delivery timeout",
			mutate:    func(c *Config) { c.Delivery.Timeout = 0 },
			wantErr:   true,
			errString: "delivery timeout must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDeliveryConfig_TargetURL(t *testing.T) {
	d := DeliveryConfig{
		DefaultTargetURL: "http://default.local/hooks",
		MerchantURLs: map[string]string{
			"m1": "http://m1.local/hooks",
		},
	}

	assert.Equal(t, "http://m1.local/hooks", d.TargetURL("m1"))
	assert.Equal(t, "http://default.local/hooks", d.TargetURL("unknown"))
}

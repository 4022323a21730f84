package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Worker     WorkerConfig     `yaml:"worker"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
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

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RetryQueue RetryQueueConfig `yaml:"retry_queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ work queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// RetryQueueConfig holds the TTL/dead-letter retry queue configuration
type RetryQueueConfig struct {
	Name       string `yaml:"name"`
	RoutingKey string `yaml:"routing_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DeliveryConfig holds the webhook delivery policy
type DeliveryConfig struct {
	// MaxAttempts is the total delivery attempt budget per webhook
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay seeds the exponential backoff schedule
	BaseDelay time.Duration `yaml:"base_delay"`
	// Timeout bounds a single outbound delivery attempt
	Timeout time.Duration `yaml:"timeout"`
	// DedupeTTL bounds how long an enqueued item suppresses duplicate enqueues
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
	// SigningSecret keys the HMAC signature; WEBHOOK_SIGNING_SECRET overrides it
	SigningSecret string `yaml:"signing_secret"`
	// DefaultTargetURL receives webhooks for merchants without an override
	DefaultTargetURL string `yaml:"default_target_url"`
	// MerchantURLs maps merchant ids to their endpoints
	MerchantURLs map[string]string `yaml:"merchant_urls"`
}

// ReconcilerConfig holds the recovery reconciler settings
type ReconcilerConfig struct {
	// Interval between periodic reconciliation passes
	Interval time.Duration `yaml:"interval"`
	// PendingThreshold is the minimum age of a PENDING delivery before the
	// reconciler re-submits it
	PendingThreshold time.Duration `yaml:"pending_threshold"`
}

// TargetURL resolves the delivery destination for a merchant
func (d *DeliveryConfig) TargetURL(merchantID string) string {
	if url, ok := d.MerchantURLs[merchantID]; ok {
		return url
	}
	return d.DefaultTargetURL
}

// Load reads and parses the configuration file. The signing secret may be
// supplied via the WEBHOOK_SIGNING_SECRET environment variable instead of the
// file, which takes precedence so the secret never has to live on disk.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if secret := os.Getenv("WEBHOOK_SIGNING_SECRET"); secret != "" {
		config.Delivery.SigningSecret = secret
	}

	return &config, nil
}

// ValidateAPIConfig checks the configuration needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Delivery.DefaultTargetURL == "" && len(c.Delivery.MerchantURLs) == 0 {
		return fmt.Errorf("delivery target url is required (default_target_url or merchant_urls)")
	}

	if c.Reconciler.Interval <= 0 {
		return fmt.Errorf("reconciler interval must be greater than 0")
	}

	if c.Reconciler.PendingThreshold <= 0 {
		return fmt.Errorf("reconciler pending_threshold must be greater than 0")
	}

	return nil
}

// ValidateWorkerConfig checks the configuration needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("delivery timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.RabbitMQ.RetryQueue.Name == "" {
		return fmt.Errorf("rabbitmq retry queue name is required")
	}

	if c.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("delivery max_attempts must be greater than 0")
	}

	if c.Delivery.BaseDelay <= 0 {
		return fmt.Errorf("delivery base_delay must be greater than 0")
	}

	if c.Delivery.SigningSecret == "" {
		return fmt.Errorf("delivery signing secret is required")
	}

	return nil
}

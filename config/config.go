package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/consult-api/internal/email"
	"github.com/jwalitptl/consult-api/pkg/messaging/kafka"
	"github.com/jwalitptl/consult-api/pkg/messaging/redis"
	"github.com/jwalitptl/consult-api/pkg/worker"
)

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
	Migrate         bool          `mapstructure:"migrate"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" split_words:"true"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" split_words:"true"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" split_words:"true"`
	Mode           string        `mapstructure:"mode"`
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type AuthConfig struct {
	// Secret verifies requester tokens issued by the identity service.
	// Empty disables bearer token extraction.
	Secret string `mapstructure:"secret"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" split_words:"true"`
	AllowedMethods []string `mapstructure:"allowed_methods" split_words:"true"`
	AllowedHeaders []string `mapstructure:"allowed_headers" split_words:"true"`
}

type BookingConfig struct {
	Timezone string        `mapstructure:"timezone"`
	Currency string        `mapstructure:"currency"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" split_words:"true"`
}

// Location resolves the configured timezone, falling back to UTC.
func (c BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type BrokerConfig struct {
	// Driver is "redis" or "kafka".
	Driver string `mapstructure:"driver"`
	// Topics the notifier subscribes to.
	NotifyTopics []string `mapstructure:"notify_topics" split_words:"true"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval    time.Duration `mapstructure:"poll_interval" split_words:"true"`
	RetryAttempts   int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" split_words:"true"`
	MaxDeliveries   int           `mapstructure:"max_deliveries" split_words:"true"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	GroupID string `mapstructure:"group_id" split_words:"true"`
}

type WorkerConfig struct {
	// Port serves the worker's health and metrics endpoints.
	Port int `mapstructure:"port"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" split_words:"true"`
	Security  SecurityConfig  `mapstructure:"security"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// EnvPrefix namespaces the environment overrides, e.g. CONSULT_DATABASE_HOST.
const EnvPrefix = "consult"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "consult")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("log.level", "info")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})

	v.SetDefault("booking.timezone", "Asia/Colombo")
	v.SetDefault("booking.currency", "LKR")
	v.SetDefault("booking.cache_ttl", time.Minute)

	v.SetDefault("broker.driver", "redis")
	v.SetDefault("broker.notify_topics", []string{"booking.status_changed", "booking.refunded"})

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)
	v.SetDefault("outbox.max_deliveries", 5)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.group_id", "consult-notifier")

	v.SetDefault("worker.port", 8081)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "no-reply@consult.local")
}

// LoadConfig reads config.yml from the usual search paths, then applies
// CONSULT_* environment overrides. A missing file is not an error.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")           // current directory
	v.AddConfigPath("./config")    // config subdirectory
	v.AddConfigPath("/app")        // container root directory
	v.AddConfigPath("/app/config") // container config directory
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Broker.Driver {
	case "redis", "kafka":
	default:
		return fmt.Errorf("unknown broker driver %q", c.Broker.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		MaxDeliveries: c.MaxDeliveries,
	}
}

func (c *OutboxConfig) ToCleanupConfig() worker.CleanupConfig {
	return worker.CleanupConfig{
		Interval:  c.CleanupInterval,
		Retention: c.Retention,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *SMTPConfig) ToSenderConfig() email.SMTPConfig {
	return email.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

func (c *KafkaConfig) ToBrokerConfig() kafka.Config {
	return kafka.Config{
		Brokers: kafka.SplitBrokers(c.Brokers),
		GroupID: strings.TrimSpace(c.GroupID),
	}
}

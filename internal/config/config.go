package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting of the occupancy service.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Occupancy OccupancyConfig `mapstructure:"occupancy"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
	// Postgres NOTIFY channel the table registry publishes on.
	TablesChannel string `mapstructure:"tables_channel"`
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	UseTLS   bool   `mapstructure:"use_tls"`
	// Exchange carrying order status changes.
	Exchange     string `mapstructure:"exchange"`
	ExchangeKind string `mapstructure:"exchange_kind"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	GroupPrefix string   `mapstructure:"group_prefix"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type OccupancyConfig struct {
	// FreshnessWindow: a snapshot younger than this with no pending
	// invalidation is served without recompute.
	FreshnessWindow  time.Duration `mapstructure:"freshness_window"`
	FallbackInterval time.Duration `mapstructure:"fallback_interval"`
	Debounce         time.Duration `mapstructure:"debounce"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	RetryBackoffMin  time.Duration `mapstructure:"retry_backoff_min"`
	ResubscribeDelay time.Duration `mapstructure:"resubscribe_delay"`
	SessionLinger    time.Duration `mapstructure:"session_linger"`
}

const envPrefix = "OCCUPANCY"

var ErrInvalidConfig = errors.New("invalid config")

// Load reads path (YAML) when it exists, then environment overrides such as
// OCCUPANCY_DATABASE_HOST or OCCUPANCY_OCCUPANCY_FALLBACK_INTERVAL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "restaurant")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "restaurant")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.tables_channel", "restaurant_tables_changed")

	v.SetDefault("rabbitmq.enabled", true)
	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.vhost", "/")
	v.SetDefault("rabbitmq.use_tls", false)
	v.SetDefault("rabbitmq.exchange", "notifications_fanout")
	v.SetDefault("rabbitmq.exchange_kind", "fanout")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "occupancy")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "payments.status")
	v.SetDefault("kafka.group_prefix", "occupancy")

	v.SetDefault("http.port", 3004)
	v.SetDefault("log.level", "info")

	v.SetDefault("occupancy.freshness_window", 2*time.Second)
	v.SetDefault("occupancy.fallback_interval", 30*time.Second)
	v.SetDefault("occupancy.debounce", 250*time.Millisecond)
	v.SetDefault("occupancy.fetch_timeout", 5*time.Second)
	v.SetDefault("occupancy.retry_backoff_min", 500*time.Millisecond)
	v.SetDefault("occupancy.resubscribe_delay", 2*time.Second)
	v.SetDefault("occupancy.session_linger", time.Minute)
}

func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
		return fmt.Errorf("%w: database host/user/database required", ErrInvalidConfig)
	}
	if c.RabbitMQ.Enabled && (c.RabbitMQ.Host == "" || c.RabbitMQ.User == "") {
		return fmt.Errorf("%w: rabbitmq host/user required", ErrInvalidConfig)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("%w: kafka brokers/topic required", ErrInvalidConfig)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis addr required", ErrInvalidConfig)
	}
	return c.Occupancy.Validate()
}

func (o OccupancyConfig) Validate() error {
	if o.FreshnessWindow <= 0 || o.FallbackInterval <= 0 {
		return fmt.Errorf("%w: freshness_window and fallback_interval must be positive", ErrInvalidConfig)
	}
	if o.FreshnessWindow >= o.FallbackInterval {
		return fmt.Errorf("%w: freshness_window (%s) must be smaller than fallback_interval (%s)",
			ErrInvalidConfig, o.FreshnessWindow, o.FallbackInterval)
	}
	if o.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch_timeout must be positive", ErrInvalidConfig)
	}
	if o.Debounce < 0 || o.RetryBackoffMin < 0 || o.ResubscribeDelay < 0 || o.SessionLinger < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

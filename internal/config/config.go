package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Session  SessionConfig  `mapstructure:"session"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Polling  PollingConfig  `mapstructure:"polling"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Push     PushConfig     `mapstructure:"push"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	TTL      TTLConfig      `mapstructure:"ttl"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	Env          string   `mapstructure:"env"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type BackendConfig struct {
	// BaseURL is the storefront API root, e.g. https://shop.example.com/api.
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	// UserID scopes local storage. Empty: taken from the token's sub claim, else "anonymous".
	UserID string `mapstructure:"user_id"`
	// AuthToken seeds the token store at startup when set.
	AuthToken string `mapstructure:"auth_token"`
}

type StreamConfig struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

type PollingConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	DegradedInterval time.Duration `mapstructure:"degraded_interval"`
}

type StoreConfig struct {
	// Driver selects the local state backend: memory, redis or postgres.
	Driver     string `mapstructure:"driver"`
	MaxRecords int    `mapstructure:"max_records"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PushConfig struct {
	// Provider is "none" (unsupported platform) or "static".
	Provider   string `mapstructure:"provider"`
	Permission string `mapstructure:"permission"`
	Token      string `mapstructure:"token"`
	Platform   string `mapstructure:"platform"`
	AutoInit   bool   `mapstructure:"auto_init"`
}

type KafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	ConsumerGroupID string   `mapstructure:"consumer_group_id"`
	Topics          []string `mapstructure:"topics"`
}

type TTLConfig struct {
	RetentionDays int `mapstructure:"retention_days"` // Default: 30
}

// Load reads configuration from environment variables and config files.
// Environment variables override file values. Prefix: STOREFRONT_NOTIF_
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", "8095")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("backend.base_url", "http://localhost:3000/api")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("session.user_id", "")
	v.SetDefault("session.auth_token", "")
	v.SetDefault("stream.initial_backoff", 2*time.Second)
	v.SetDefault("stream.max_backoff", 30*time.Second)
	v.SetDefault("stream.max_retries", 5)
	v.SetDefault("polling.interval", 60*time.Second)
	v.SetDefault("polling.degraded_interval", 30*time.Second)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.max_records", 200)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "storefront:notif:")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "storefront_notifier")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("push.provider", "none")
	v.SetDefault("push.permission", "default")
	v.SetDefault("push.token", "")
	v.SetDefault("push.platform", "web")
	v.SetDefault("push.auto_init", false)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group_id", "storefront-notifier")
	v.SetDefault("kafka.topics", []string{"storefront-events"})
	v.SetDefault("ttl.retention_days", 30)

	// Environment variables (e.g. STOREFRONT_NOTIF_BACKEND_BASE_URL -> backend.base_url)
	v.SetEnvPrefix("STOREFRONT_NOTIF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also support simple env vars without prefix for Docker Compose convenience
	v.BindEnv("backend.base_url", "API_BASE_URL")
	v.BindEnv("session.auth_token", "AUTH_TOKEN")
	v.BindEnv("session.user_id", "USER_ID")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("server.port", "PORT")

	// Try loading config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // Not required

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" dbname=" + d.Name +
		" user=" + d.User +
		" password=" + d.Password +
		" sslmode=disable"
}

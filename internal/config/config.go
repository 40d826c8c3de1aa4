package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Sheets    SheetsConfig    `mapstructure:"sheets"`
	Rebuild   RebuildConfig   `mapstructure:"rebuild"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DLQ       DLQConfig       `mapstructure:"dlq"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

type WebhookConfig struct {
	Secret      string   `mapstructure:"secret"`
	AdminSecret string   `mapstructure:"admin_secret"`
	Campaigns   []string `mapstructure:"campaigns"`
}

type IngestionConfig struct {
	QueueCapacity     int           `mapstructure:"queue_capacity"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

type BatchConfig struct {
	Size             int           `mapstructure:"size"`
	FlushInterval    time.Duration `mapstructure:"flush_interval"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryMaxBackoff  time.Duration `mapstructure:"retry_max_backoff"`
}

// SheetsConfig points at the spreadsheet bridge service and names the tables
// the relay reads and writes.
type SheetsConfig struct {
	URL             string        `mapstructure:"url"`
	Token           string        `mapstructure:"token"`
	RemoteTimeout   time.Duration `mapstructure:"remote_timeout"`
	RawTable        string        `mapstructure:"raw_table"`
	RealtimeTable   string        `mapstructure:"realtime_table"`
	MapTable        string        `mapstructure:"map_table"`
	CountsTable     string        `mapstructure:"counts_table"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type RebuildConfig struct {
	WindowDays int `mapstructure:"window_days"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "postgres" or "memory"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx/migrate compatible connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type DLQConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"` // "jetstream" or "file"
	NatsURL string `mapstructure:"nats_url"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_grace", "20s")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.admin_secret", "")
	v.SetDefault("webhook.campaigns", []string{})
	v.SetDefault("ingestion.queue_capacity", 1000)
	v.SetDefault("ingestion.rate_limit_enabled", false)
	v.SetDefault("ingestion.rate_limit_requests", 600)
	v.SetDefault("ingestion.rate_limit_window", "1m")
	v.SetDefault("batch.size", 50)
	v.SetDefault("batch.flush_interval", "5s")
	v.SetDefault("batch.retry_max_attempts", 5)
	v.SetDefault("batch.retry_max_backoff", "30s")
	v.SetDefault("sheets.url", "http://localhost:9090")
	v.SetDefault("sheets.remote_timeout", "10s")
	v.SetDefault("sheets.raw_table", "Ringba Raw")
	v.SetDefault("sheets.realtime_table", "Real Time")
	v.SetDefault("sheets.map_table", "DID Publisher Map")
	v.SetDefault("sheets.counts_table", "Publisher DID Counts")
	v.SetDefault("sheets.refresh_interval", "5m")
	v.SetDefault("rebuild.window_days", 30)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "callrelay")
	v.SetDefault("database.postgres.user", "callrelay")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("dlq.enabled", false)
	v.SetDefault("dlq.backend", "jetstream")
	v.SetDefault("dlq.nats_url", "nats://localhost:4222")
	v.SetDefault("dlq.path", "/var/lib/callrelay/dlq")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/callrelay")
	}

	// Environment variables override: CALLRELAY_SERVER_PORT maps to
	// server.port, and so on.
	v.SetEnvPrefix("CALLRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

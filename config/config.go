package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Redirect service and analytics behaviour
	App AppConfig `mapstructure:"app"`

	// Storage backend selection
	Storage StorageConfig `mapstructure:"storage"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Admin API rate limiting
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type AppConfig struct {
	ListenAddr       string `mapstructure:"listen_addr"`
	BaseURL          string `mapstructure:"base_url"`
	AntiBurstSeconds int    `mapstructure:"anti_burst_seconds"`
	ItemsPerPost     int    `mapstructure:"items_per_post"`
	MaxExportMB      int    `mapstructure:"max_export_mb"`
	ReportChatID     string `mapstructure:"report_chat_id"`
	ExportDir        string `mapstructure:"export_dir"`
	BloomFilter      bool   `mapstructure:"bloom_filter"`
	ProxyHeader      string `mapstructure:"proxy_header"`
}

type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL string `mapstructure:"cache_ttl"`
}

type NATSConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SummarySubject  string `mapstructure:"summary_subject"`
	DocumentSubject string `mapstructure:"document_subject"`
	ExportBucket    string `mapstructure:"export_bucket"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

type RateLimitConfig struct {
	MaxRequests int    `mapstructure:"max_requests"`
	Window      string `mapstructure:"window"`
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.App.AntiBurstSeconds < 0 {
		return fmt.Errorf("config: app.anti_burst_seconds must be >= 0, got %d", c.App.AntiBurstSeconds)
	}
	if c.App.ItemsPerPost <= 0 {
		return fmt.Errorf("config: app.items_per_post must be positive, got %d", c.App.ItemsPerPost)
	}
	if c.App.MaxExportMB <= 0 {
		return fmt.Errorf("config: app.max_export_mb must be positive, got %d", c.App.MaxExportMB)
	}
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverSQLite:
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(c.App.BaseURL), "/")
	return nil
}

// MaxExportBytes converts the megabyte export limit to bytes.
func (a AppConfig) MaxExportBytes() int64 {
	return int64(a.MaxExportMB) * 1024 * 1024
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.listen_addr", ":8080")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.anti_burst_seconds", 10)
	v.SetDefault("app.items_per_post", 3)
	v.SetDefault("app.max_export_mb", 15)
	v.SetDefault("app.bloom_filter", true)

	v.SetDefault("storage.driver", StorageDriverSQLite)
	v.SetDefault("storage.sqlite_path", "store.sqlite3")

	v.SetDefault("redis.cache_ttl", "24h")

	v.SetDefault("nats.summary_subject", "reports.summary")
	v.SetDefault("nats.document_subject", "reports.document")
	v.SetDefault("nats.export_bucket", "click-exports")

	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("ratelimit.max_requests", 60)
	v.SetDefault("ratelimit.window", "1m")
}

func bindEnvVars(v *viper.Viper) {
	// Application
	v.BindEnv("app.base_url", "BASE_URL")
	v.BindEnv("app.anti_burst_seconds", "ANTI_BURST_SECONDS")
	v.BindEnv("app.max_export_mb", "MAX_EXPORT_MB")
	v.BindEnv("app.report_chat_id", "REPORT_CHAT_ID")
	v.BindEnv("app.listen_addr", "LISTEN_ADDR")
	v.BindEnv("app.export_dir", "EXPORT_DIR")
	v.BindEnv("app.bloom_filter", "BLOOM_FILTER")
	v.BindEnv("app.proxy_header", "PROXY_HEADER")

	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.sqlite_path", "SQLITE_PATH")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.cache_ttl", "REDIS_CACHE_TTL")

	// NATS
	v.BindEnv("nats.enabled", "NATS_ENABLED")
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
}

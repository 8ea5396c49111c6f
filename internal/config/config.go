// Package config provides feed sync daemon configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported backends and drivers.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"

	CacheCodecJSON    = "json"
	CacheCodecMsgpack = "msgpack"

	RealtimeDriverRedis     = "redis"
	RealtimeDriverWebsocket = "websocket"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env            string `mapstructure:"APP_ENV"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	BridgePort     string `mapstructure:"BRIDGE_PORT"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	RealtimeDriver       string `mapstructure:"REALTIME_DRIVER"`
	RealtimeURL          string `mapstructure:"REALTIME_URL"`
	RealtimeTopic        string `mapstructure:"REALTIME_TOPIC"`
	ResubscribeInitialMS int    `mapstructure:"RESUBSCRIBE_INITIAL_MS"`
	ResubscribeMaxMS     int    `mapstructure:"RESUBSCRIBE_MAX_MS"`

	CacheBackend string `mapstructure:"CACHE_BACKEND"`
	CachePath    string `mapstructure:"CACHE_PATH"`
	CacheCodec   string `mapstructure:"CACHE_CODEC"`

	PageSize          int    `mapstructure:"PAGE_SIZE"`
	DetailConcurrency int    `mapstructure:"DETAIL_CONCURRENCY"`
	FeatureFlags      string `mapstructure:"FEATURE_FLAGS"`

	AccessToken string `mapstructure:"ACCESS_TOKEN"`
	ViewerID    string `mapstructure:"VIEWER_ID"`

	SentryDSN           string  `mapstructure:"SENTRY_DSN"`
	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("BRIDGE_PORT", "8390")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:8081,http://localhost:19006")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_NAME", "animelight")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 10)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 2)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("REALTIME_DRIVER", RealtimeDriverRedis)
	viper.SetDefault("REALTIME_URL", "")
	viper.SetDefault("REALTIME_TOPIC", "realtime:public:posts")
	viper.SetDefault("RESUBSCRIBE_INITIAL_MS", 500)
	viper.SetDefault("RESUBSCRIBE_MAX_MS", 30000)
	viper.SetDefault("CACHE_BACKEND", CacheBackendSQLite)
	viper.SetDefault("CACHE_PATH", "animelight-cache.db")
	viper.SetDefault("CACHE_CODEC", CacheCodecJSON)
	viper.SetDefault("PAGE_SIZE", 10)
	viper.SetDefault("DETAIL_CONCURRENCY", 4)
	viper.SetDefault("FEATURE_FLAGS", "batched_details=on")
	viper.SetDefault("ACCESS_TOKEN", "")
	viper.SetDefault("VIEWER_ID", "")
	viper.SetDefault("SENTRY_DSN", "")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	c.CacheCodec = strings.ToLower(strings.TrimSpace(c.CacheCodec))
	c.RealtimeDriver = strings.ToLower(strings.TrimSpace(c.RealtimeDriver))
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	c.ViewerID = strings.TrimSpace(c.ViewerID)
}

// IsProduction reports whether the daemon runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and consistent.
func (c *Config) Validate() error {
	if c.BridgePort == "" {
		return errors.New("BRIDGE_PORT is required")
	}
	if c.PageSize < 1 {
		return errors.New("PAGE_SIZE must be at least 1")
	}
	if c.DetailConcurrency < 1 {
		return errors.New("DETAIL_CONCURRENCY must be at least 1")
	}
	if c.AccessToken == "" && c.ViewerID == "" {
		return errors.New("either ACCESS_TOKEN or VIEWER_ID is required")
	}

	switch c.CacheBackend {
	case CacheBackendSQLite, CacheBackendRedis, CacheBackendMemory:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.CacheBackend == CacheBackendSQLite && c.CachePath == "" {
		return errors.New("CACHE_PATH is required for the sqlite cache backend")
	}

	switch c.CacheCodec {
	case CacheCodecJSON, CacheCodecMsgpack:
	default:
		return fmt.Errorf("unknown CACHE_CODEC %q", c.CacheCodec)
	}

	switch c.RealtimeDriver {
	case RealtimeDriverRedis:
	case RealtimeDriverWebsocket:
		if c.RealtimeURL == "" {
			return errors.New("REALTIME_URL is required for the websocket realtime driver")
		}
	default:
		return fmt.Errorf("unknown REALTIME_DRIVER %q", c.RealtimeDriver)
	}

	if c.ResubscribeInitialMS <= 0 || c.ResubscribeMaxMS < c.ResubscribeInitialMS {
		return errors.New("RESUBSCRIBE_MAX_MS must be >= RESUBSCRIBE_INITIAL_MS > 0")
	}

	if c.IsProduction() {
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must not be 'disable' in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"officehours/internal/common/cache"
	"officehours/internal/common/db"
	"officehours/internal/common/http/middleware"
	"officehours/internal/common/mq"
	"officehours/internal/queue/controller"
	"officehours/internal/queue/notify"
	"officehours/internal/queue/realtime"
	"officehours/internal/queue/service"
	"officehours/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr           = "0.0.0.0:8090"
	defaultReadTimeout        = 5 * time.Second
	defaultWriteTimeout       = 10 * time.Second
	defaultIdleTimeout        = 60 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultStoreTimeout       = 2 * time.Second
	defaultRateLimitWindow    = time.Minute
	defaultRevocationLocalTTL = 30 * time.Second
	defaultRevocationLocalMax = 10000
	envPrefix                 = "QUEUE_"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
	// RevocationLocalTTL bounds how long a revoked token stays in the process cache.
	RevocationLocalTTL  time.Duration `yaml:"revocationLocalTTL"`
	RevocationLocalSize int           `yaml:"revocationLocalSize"`
}

// KafkaConfig enables the lifecycle event stream.
type KafkaConfig struct {
	Enabled        bool           `yaml:"enabled"`
	Topic          string         `yaml:"topic"`
	ConsumerGroup  string         `yaml:"consumerGroup"`
	ConsumeHistory bool           `yaml:"consumeHistory"`
	Client         mq.KafkaConfig `yaml:"client"`
}

// RealtimeConfig tunes the websocket feed.
type RealtimeConfig struct {
	realtime.HandlerConfig `yaml:",inline"`
	// CrossNode relays frames through Redis pub/sub so every replica delivers them.
	CrossNode bool `yaml:"crossNode"`
}

// PolicyConfig points at an optional transition table.
type PolicyConfig struct {
	TransitionsFile string `yaml:"transitionsFile"`
}

// StoreConfig holds store call settings.
type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AppConfig holds the queue-service configuration.
type AppConfig struct {
	Server    ServerConfig          `yaml:"server"`
	Logger    logger.Config         `yaml:"logger"`
	Database  db.Config             `yaml:"database"`
	Redis     cache.RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig           `yaml:"kafka"`
	Auth      AuthConfig            `yaml:"auth"`
	Realtime  RealtimeConfig        `yaml:"realtime"`
	Policy    PolicyConfig          `yaml:"policy"`
	Store     StoreConfig           `yaml:"store"`
	RateLimit controller.RateLimits `yaml:"rateLimit"`
	CORS      middleware.CORSConfig `yaml:"cors"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path, envFile string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file failed: %w", err)
		}
	}
	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets QUEUE_* variables replace secrets and endpoints.
func applyEnvOverrides(cfg *AppConfig, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("HTTP_ADDR", &cfg.Server.Addr)
	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_DSN", &cfg.Database.DSN)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JWT_ISSUER", &cfg.Auth.JWTIssuer)
	str("LOG_LEVEL", &cfg.Logger.Level)
	str("TRANSITIONS_FILE", &cfg.Policy.TransitionsFile)

	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok && v != "" {
		cfg.Kafka.Client.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}
	if v, ok := lookup(envPrefix + "REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sREDIS_DB: %w", envPrefix, err)
		}
		cfg.Redis.DB = n
	}
	return nil
}

func applyDefaults(cfg *AppConfig) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwtSecret is required")
	}
	applyRedisDefaults(&cfg.Redis)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = defaultStoreTimeout
	}
	if cfg.Auth.RevocationLocalTTL == 0 {
		cfg.Auth.RevocationLocalTTL = defaultRevocationLocalTTL
	}
	if cfg.Auth.RevocationLocalSize == 0 {
		cfg.Auth.RevocationLocalSize = defaultRevocationLocalMax
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Client.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if cfg.Kafka.Topic == "" {
			cfg.Kafka.Topic = notify.LifecycleTopic
		}
		if cfg.Kafka.ConsumerGroup == "" {
			cfg.Kafka.ConsumerGroup = service.HistoryConsumerGroup
		}
	}

	for _, policy := range []*middleware.RateLimitPolicy{&cfg.RateLimit.Transition, &cfg.RateLimit.Claim, &cfg.RateLimit.Submit} {
		if policy.Window == 0 {
			policy.Window = defaultRateLimitWindow
		}
	}
	return nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

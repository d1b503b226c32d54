package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	AMQP      AMQPConfig      `mapstructure:"amqp"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// StorageConfig 证书归档使用的对象存储
type StorageConfig struct {
	Type          string `mapstructure:"type"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// EngineConfig 进度与完成引擎参数
type EngineConfig struct {
	LockBackend      string        `mapstructure:"lock_backend"` // memory, redis
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	LockWait         time.Duration `mapstructure:"lock_wait"`
	EventBackend     string        `mapstructure:"event_backend"` // memory, redis
	EventWorkers     int           `mapstructure:"event_workers"`
	EventBuffer      int           `mapstructure:"event_buffer"`
	ReconcileCron    string        `mapstructure:"reconcile_cron"`
	ReconcileWindow  time.Duration `mapstructure:"reconcile_window"`
	CertificateRetry int           `mapstructure:"certificate_retry"`
}

type NotifierConfig struct {
	Backend string `mapstructure:"backend"` // amqp, log
	Enabled bool   `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("amqp.exchange", "learnhub.notifications")
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("engine.lock_backend", "memory")
	v.SetDefault("engine.lock_ttl", 10*time.Second)
	v.SetDefault("engine.lock_wait", 5*time.Second)
	v.SetDefault("engine.event_backend", "memory")
	v.SetDefault("engine.event_workers", 4)
	v.SetDefault("engine.event_buffer", 1024)
	v.SetDefault("engine.reconcile_cron", "*/10 * * * *")
	v.SetDefault("engine.reconcile_window", 24*time.Hour)
	v.SetDefault("engine.certificate_retry", 3)

	v.SetDefault("notifier.backend", "log")
	v.SetDefault("notifier.enabled", true)
}

func LoadConfig(path string) (*Config, error) {
	// .env 可选，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LEARNHUB")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// AMQP
	v.BindEnv("amqp.url", "AMQP_URL")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.Engine.LockBackend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("engine.lock_backend=redis requires redis.enabled")
	}
	if c.Engine.EventBackend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("engine.event_backend=redis requires redis.enabled")
	}
	if c.Notifier.Backend == "amqp" && c.AMQP.URL == "" {
		return fmt.Errorf("notifier.backend=amqp requires amqp.url")
	}
	if c.Engine.EventWorkers <= 0 {
		c.Engine.EventWorkers = 1
	}
	return nil
}

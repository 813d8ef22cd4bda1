package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Editor   EditorConfig   `mapstructure:"editor"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// Origins splits the comma separated websocket origin allow-list.
func (a APIConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(a.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	AutoMigrate  bool          `mapstructure:"auto_migrate"`
	Debug        bool          `mapstructure:"debug"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	SlowQuery    time.Duration `mapstructure:"slow_query"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// Addr 返回 host:port。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`

	PublicEndpoint   string `mapstructure:"public_endpoint"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// CatalogConfig 描述远端内容目录服务。
type CatalogConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EditorConfig controls editing sessions.
type EditorConfig struct {
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	AutosaveDelay time.Duration `mapstructure:"autosave_delay"`

	// 每用户每分钟允许的文件上传次数，<=0 不限制。
	UploadsPerMinute int `mapstructure:"uploads_per_minute"`
}

// AuthConfig holds the public key used to verify access tokens issued by the account service.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKeyPEM  string `mapstructure:"public_key_pem"`
}

// ClamdConfig 为空地址时跳过病毒扫描。
type ClamdConfig struct {
	Address string `mapstructure:"address"`
}

// WorkerConfig contains asynq worker and sweep settings.
type WorkerConfig struct {
	Concurrency      int           `mapstructure:"concurrency"`
	SweepCron        string        `mapstructure:"sweep_cron"`
	SweepStaleAfter  time.Duration `mapstructure:"sweep_stale_after"`
	SweepMaxAttempts int           `mapstructure:"sweep_max_attempts"`
	SweepBatch       int           `mapstructure:"sweep_batch"`
	RenderTimeout    time.Duration `mapstructure:"render_timeout"`
	MetricsPort      int           `mapstructure:"metrics_port"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "pairstudio")
	v.SetDefault("database.user", "pairstudio")
	v.SetDefault("database.password", "pairstudio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.slow_query", 500*time.Millisecond)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "card-sheets")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("catalog.base_url", "http://localhost:3000/api")
	v.SetDefault("catalog.timeout", time.Minute)
	v.SetDefault("editor.session_ttl", 2*time.Hour)
	v.SetDefault("editor.lock_ttl", 30*time.Second)
	v.SetDefault("editor.autosave_delay", time.Second)
	v.SetDefault("editor.uploads_per_minute", 30)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.sweep_cron", "@every 15m")
	v.SetDefault("worker.sweep_stale_after", 3*time.Hour)
	v.SetDefault("worker.sweep_max_attempts", 5)
	v.SetDefault("worker.sweep_batch", 200)
	v.SetDefault("worker.render_timeout", 30*time.Second)
	v.SetDefault("worker.metrics_port", 9091)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                  "API_PORT",
		"api.allowed_origins":       "API_ALLOWED_ORIGINS",
		"database.host":             "DATABASE_HOST",
		"database.port":             "DATABASE_PORT",
		"database.name":             "POSTGRES_DB",
		"database.user":             "POSTGRES_USER",
		"database.password":         "POSTGRES_PASSWORD",
		"database.sslmode":          "DATABASE_SSLMODE",
		"database.auto_migrate":     "DATABASE_AUTO_MIGRATE",
		"database.debug":            "DATABASE_DEBUG",
		"database.max_open_conns":   "DATABASE_MAX_OPEN_CONNS",
		"database.slow_query":       "DATABASE_SLOW_QUERY",
		"redis.host":                "REDIS_HOST",
		"redis.port":                "REDIS_PORT",
		"redis.password":            "REDIS_PASSWORD",
		"minio.endpoint":            "MINIO_ENDPOINT",
		"minio.access_key_id":       "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":   "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":             "MINIO_USE_SSL",
		"minio.bucket":              "MINIO_BUCKET",
		"minio.public_endpoint":     "MINIO_PUBLIC_ENDPOINT",
		"minio.region":              "MINIO_REGION",
		"minio.bucket_lookup":       "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":  "MINIO_AUTO_CREATE_BUCKET",
		"catalog.base_url":          "CATALOG_BASE_URL",
		"catalog.token":             "CATALOG_TOKEN",
		"catalog.timeout":           "CATALOG_TIMEOUT",
		"editor.session_ttl":        "EDITOR_SESSION_TTL",
		"editor.lock_ttl":           "EDITOR_LOCK_TTL",
		"editor.autosave_delay":     "EDITOR_AUTOSAVE_DELAY",
		"editor.uploads_per_minute": "EDITOR_UPLOADS_PER_MINUTE",
		"auth.public_key_path":      "AUTH_PUBLIC_KEY_PATH",
		"auth.public_key_pem":       "AUTH_PUBLIC_KEY_PEM",
		"clamd.address":             "CLAMD_ADDRESS",
		"worker.concurrency":        "WORKER_CONCURRENCY",
		"worker.sweep_cron":         "WORKER_SWEEP_CRON",
		"worker.sweep_stale_after":  "WORKER_SWEEP_STALE_AFTER",
		"worker.sweep_max_attempts": "WORKER_SWEEP_MAX_ATTEMPTS",
		"worker.sweep_batch":        "WORKER_SWEEP_BATCH",
		"worker.render_timeout":     "WORKER_RENDER_TIMEOUT",
		"worker.metrics_port":       "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Database.MaxOpenConns <= 0 {
		return errors.New("database max open conns must be positive")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Catalog.BaseURL == "" {
		return errors.New("catalog base url is required")
	}
	if cfg.Editor.SessionTTL <= 0 {
		return errors.New("editor session ttl must be positive")
	}
	if cfg.Editor.AutosaveDelay <= 0 {
		return errors.New("editor autosave delay must be positive")
	}
	if cfg.Auth.PublicKeyPath == "" && cfg.Auth.PublicKeyPEM == "" {
		return errors.New("auth public key is required")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	if cfg.Worker.SweepStaleAfter < cfg.Editor.SessionTTL {
		return errors.New("worker sweep stale-after must not be shorter than the editor session ttl")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	PublicBaseURL string              `mapstructure:"public_base_url"`
	Auth          AuthConfig          `mapstructure:"auth"`
	SessionStore  SessionStoreConfig  `mapstructure:"session_store"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	SQLite        SQLiteConfig        `mapstructure:"sqlite"`
	ArtifactStore ArtifactStoreConfig `mapstructure:"artifact_store"`
	Finalize      FinalizeConfig      `mapstructure:"finalize"`
	Report        ReportConfig        `mapstructure:"report"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
}

// AuthConfig configures the access gate.
// AppTokens are the shared secrets accepted in X-App-Token.
type AuthConfig struct {
	AppTokens []string      `mapstructure:"app_tokens"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Session store drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

// Artifact store drivers
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

type SessionStoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	TTL             time.Duration `mapstructure:"ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Database    string `mapstructure:"database"`
	SSLMode     string `mapstructure:"ssl_mode"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type ArtifactStoreConfig struct {
	Driver string      `mapstructure:"driver"`
	Local  LocalConfig `mapstructure:"local"`
	S3     S3Config    `mapstructure:"s3"`
}

type LocalConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

type S3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	AccessKeyID    string `mapstructure:"access_key_id"`
	SecretKey      string `mapstructure:"secret_key"`
	Endpoint       string `mapstructure:"endpoint"`
	BaseURL        string `mapstructure:"base_url"`
	Prefix         string `mapstructure:"prefix"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// FinalizeConfig bounds the render+store step and the claim lease
type FinalizeConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	ClaimLease time.Duration `mapstructure:"claim_lease"`
}

// ReportConfig points at an optional TTF used for non-Latin report text
type ReportConfig struct {
	FontPath string `mapstructure:"font_path"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level        string        `mapstructure:"level"`
	Format       string        `mapstructure:"format"`
	File         string        `mapstructure:"file"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalize fills values derived from other settings
func (c *Config) normalize() {
	tokens := make([]string, 0, len(c.Auth.AppTokens))
	for _, raw := range c.Auth.AppTokens {
		for _, tok := range strings.Split(raw, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				tokens = append(tokens, tok)
			}
		}
	}
	c.Auth.AppTokens = tokens

	c.PublicBaseURL = strings.TrimSuffix(strings.TrimSpace(c.PublicBaseURL), "/")
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}

	if c.ArtifactStore.Local.BaseURL == "" {
		c.ArtifactStore.Local.BaseURL = c.PublicBaseURL + "/artifacts/"
	}

	c.SessionStore.Driver = strings.ToLower(strings.TrimSpace(c.SessionStore.Driver))
	c.ArtifactStore.Driver = strings.ToLower(strings.TrimSpace(c.ArtifactStore.Driver))
}

// Validate checks the configuration for unsupported values
func (c *Config) Validate() error {
	sessionDrivers := []string{DriverMemory, DriverRedis, DriverPostgres, DriverMongo, DriverSQLite, DriverMySQL}
	if !slices.Contains(sessionDrivers, c.SessionStore.Driver) {
		return fmt.Errorf("unsupported session store driver %q", c.SessionStore.Driver)
	}

	switch c.ArtifactStore.Driver {
	case DriverLocal:
		if c.ArtifactStore.Local.Dir == "" {
			return errors.New("artifact_store.local.dir is required")
		}
	case DriverS3:
		if c.ArtifactStore.S3.Bucket == "" || c.ArtifactStore.S3.Region == "" {
			return errors.New("artifact_store.s3.bucket and artifact_store.s3.region are required")
		}
	default:
		return fmt.Errorf("unsupported artifact store driver %q", c.ArtifactStore.Driver)
	}

	if c.Finalize.Timeout <= 0 {
		return errors.New("finalize.timeout must be positive")
	}
	if c.Finalize.ClaimLease <= c.Finalize.Timeout {
		return errors.New("finalize.claim_lease must exceed finalize.timeout")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 10000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.middleware_timeout", "55s")
	v.SetDefault("server.max_body_bytes", 10<<20)

	v.SetDefault("public_base_url", "")

	// Auth
	v.SetDefault("auth.app_tokens", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "720h") // 30 days

	// Session store
	v.SetDefault("session_store.driver", DriverMemory)
	v.SetDefault("session_store.ttl", "24h")
	v.SetDefault("session_store.janitor_interval", "10m")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "inspection")
	v.SetDefault("database.database", "inspection")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.auto_migrate", true)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Mongo
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "arbejdsmiljoe")
	v.SetDefault("mongo.collection", "apv_sessions")
	v.SetDefault("mongo.connect_timeout", "8s")

	// MySQL
	v.SetDefault("mysql.host", "localhost")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "inspection")
	v.SetDefault("mysql.database", "inspection")
	v.SetDefault("mysql.max_open_conns", 10)

	// SQLite
	v.SetDefault("sqlite.path", "./data/sessions.db")

	// Artifact store
	v.SetDefault("artifact_store.driver", DriverLocal)
	v.SetDefault("artifact_store.local.dir", "./uploads")
	v.SetDefault("artifact_store.local.base_url", "")
	v.SetDefault("artifact_store.s3.prefix", "reports/")

	// Finalize
	v.SetDefault("finalize.timeout", "30s")
	v.SetDefault("finalize.claim_lease", "2m")

	// Report
	v.SetDefault("report.font_path", "")

	// Rate limit
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_age", "168h")
	v.SetDefault("logging.rotation_time", "24h")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("public_base_url", "PUBLIC_BASE_URL", "RENDER_EXTERNAL_URL")

	// Auth
	v.BindEnv("auth.app_tokens", "APP_UPLOAD_TOKEN")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	// Stores
	v.BindEnv("session_store.driver", "SESSION_STORE")
	v.BindEnv("database.password", "POSTGRES_PASSWORD")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("mysql.password", "MYSQL_PASSWORD")
	v.BindEnv("mongo.uri", "MONGODB_URI")
	v.BindEnv("mongo.database", "MONGODB_DB")

	// Artifacts
	v.BindEnv("artifact_store.driver", "ARTIFACT_STORE")
	v.BindEnv("artifact_store.s3.bucket", "S3_BUCKET")
	v.BindEnv("artifact_store.s3.region", "AWS_REGION")
	v.BindEnv("artifact_store.s3.access_key_id", "AWS_ACCESS_KEY_ID")
	v.BindEnv("artifact_store.s3.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("artifact_store.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("report.font_path", "REPORT_FONT_PATH")
}

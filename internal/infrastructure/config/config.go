package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (e.g. BILLING_PORTONE_API_SECRET)
const EnvPrefix = "BILLING"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	JWT       JWTConfig
	PortOne   PortOneConfig
	Outbox    OutboxConfig
	Sweep     SweepConfig
	Billing   BillingConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsProduction reports whether the app runs in production
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
	SlowQueryThresh time.Duration
}

// RedisConfig holds Redis connection settings for webhook deduplication
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
	// RequireRedis disables the in-memory fallback when Redis is unreachable
	RequireRedis bool
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
	MaxHeaderBytes     int
	RequestTimeout     time.Duration
	WebhookMaxBodySize int64
	TrustedProxies     []string
	// RateLimitPerSecond is the per-caller request budget; 0 disables limiting
	RateLimitPerSecond float64
	RateLimitBurst     int
	// SwaggerEnabled serves the API docs at /swagger
	SwaggerEnabled bool
}

// JWTConfig holds caller identity settings
type JWTConfig struct {
	Secret string
	Issuer string
	// AllowUserIDHeader accepts X-User-ID without a token (development only)
	AllowUserIDHeader bool
}

// PortOneConfig holds payment provider settings
type PortOneConfig struct {
	APISecret        string
	APIBase          string
	StoreID          string
	ChannelKey       string
	WebhookSecret    string
	Timeout          time.Duration
	WebhookTolerance time.Duration

	BreakerEnabled          bool
	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration
}

// OutboxConfig holds outbox processor settings
type OutboxConfig struct {
	Enabled          bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// SweepConfig holds past-due expiration sweep settings
type SweepConfig struct {
	Enabled     bool
	RunHour     int
	Timezone    string
	RunTimeout  time.Duration
	GracePeriod time.Duration
	BatchSize   int
}

// BillingConfig holds business rule settings
type BillingConfig struct {
	PaymentMethodBlackout time.Duration
	WebhookDedupTTL       time.Duration
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled               bool    // Whether to enable OpenTelemetry
	CollectorEndpoint     string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio         float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName           string
	Insecure              bool // Use insecure (non-TLS) connection (development only)
	MetricsExportInterval time.Duration
	LogsEnabled           bool // Bridge zap logs to the collector
	DBTraceEnabled        bool // Enable database query tracing (otelgorm)
	DBLogFullSQL          bool // Log full SQL statements (dev only)

	ProfilingEnabled       bool
	ProfilingServerAddress string // Pyroscope server address
	ProfilingAuthUser      string
	ProfilingAuthPassword  string
	SpanProfilesEnabled    bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BILLING_ prefix (e.g., BILLING_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
			SlowQueryThresh: v.GetDuration("database.slow_query_threshold"),
		},
		Redis: RedisConfig{
			Enabled:      v.GetBool("redis.enabled"),
			Host:         v.GetString("redis.host"),
			Port:         v.GetInt("redis.port"),
			Password:     v.GetString("redis.password"),
			DB:           v.GetInt("redis.db"),
			KeyPrefix:    v.GetString("redis.key_prefix"),
			RequireRedis: v.GetBool("redis.require"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:        v.GetDuration("http.read_timeout"),
			WriteTimeout:       v.GetDuration("http.write_timeout"),
			IdleTimeout:        v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:    v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:     v.GetInt("http.max_header_bytes"),
			RequestTimeout:     v.GetDuration("http.request_timeout"),
			WebhookMaxBodySize: v.GetInt64("http.webhook_max_body_size"),
			TrustedProxies:     v.GetStringSlice("http.trusted_proxies"),
			RateLimitPerSecond: v.GetFloat64("http.rate_limit_per_second"),
			RateLimitBurst:     v.GetInt("http.rate_limit_burst"),
			SwaggerEnabled:     v.GetBool("http.swagger_enabled"),
		},
		JWT: JWTConfig{
			Secret:            v.GetString("jwt.secret"),
			Issuer:            v.GetString("jwt.issuer"),
			AllowUserIDHeader: v.GetBool("jwt.allow_user_id_header"),
		},
		PortOne: PortOneConfig{
			APISecret:               v.GetString("portone.api_secret"),
			APIBase:                 v.GetString("portone.api_base"),
			StoreID:                 v.GetString("portone.store_id"),
			ChannelKey:              v.GetString("portone.channel_key"),
			WebhookSecret:           v.GetString("portone.webhook_secret"),
			Timeout:                 v.GetDuration("portone.timeout"),
			WebhookTolerance:        v.GetDuration("portone.webhook_tolerance"),
			BreakerEnabled:          v.GetBool("portone.breaker_enabled"),
			BreakerFailureThreshold: v.GetUint32("portone.breaker_failure_threshold"),
			BreakerOpenTimeout:      v.GetDuration("portone.breaker_open_timeout"),
		},
		Outbox: OutboxConfig{
			Enabled:          v.GetBool("outbox.enabled"),
			BatchSize:        v.GetInt("outbox.batch_size"),
			PollInterval:     v.GetDuration("outbox.poll_interval"),
			MaxRetries:       v.GetInt("outbox.max_retries"),
			CleanupEnabled:   v.GetBool("outbox.cleanup_enabled"),
			CleanupRetention: v.GetDuration("outbox.cleanup_retention"),
			CleanupInterval:  v.GetDuration("outbox.cleanup_interval"),
		},
		Sweep: SweepConfig{
			Enabled:     v.GetBool("sweep.enabled"),
			RunHour:     v.GetInt("sweep.run_hour"),
			Timezone:    v.GetString("sweep.timezone"),
			RunTimeout:  v.GetDuration("sweep.run_timeout"),
			GracePeriod: v.GetDuration("sweep.grace_period"),
			BatchSize:   v.GetInt("sweep.batch_size"),
		},
		Billing: BillingConfig{
			PaymentMethodBlackout: v.GetDuration("billing.payment_method_blackout"),
			WebhookDedupTTL:       v.GetDuration("billing.webhook_dedup_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:                v.GetBool("telemetry.enabled"),
			CollectorEndpoint:      v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:          v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:            v.GetString("telemetry.service_name"),
			Insecure:               v.GetBool("telemetry.insecure"),
			MetricsExportInterval:  v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:            v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:         v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:           v.GetBool("telemetry.db_log_full_sql"),
			ProfilingEnabled:       v.GetBool("telemetry.profiling_enabled"),
			ProfilingServerAddress: v.GetString("telemetry.profiling_server_address"),
			ProfilingAuthUser:      v.GetString("telemetry.profiling_auth_user"),
			ProfilingAuthPassword:  v.GetString("telemetry.profiling_auth_password"),
			SpanProfilesEnabled:    v.GetBool("telemetry.span_profiles_enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers defaults whose zero value is meaningful
func setDefaults(v *viper.Viper) {
	v.SetDefault("sweep.run_hour", 3)
	v.SetDefault("outbox.enabled", true)
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("portone.breaker_enabled", true)
	v.SetDefault("http.rate_limit_per_second", 5)
	v.SetDefault("http.rate_limit_burst", 10)
	v.SetDefault("http.swagger_enabled", true)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "mockly-billing"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "billing"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowQueryThresh == 0 {
		cfg.Database.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "billing:webhook:"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 20 * time.Second
	}
	if cfg.HTTP.WebhookMaxBodySize == 0 {
		cfg.HTTP.WebhookMaxBodySize = 64 << 10 // 64KB
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "mockly"
	}
	if cfg.PortOne.APIBase == "" {
		cfg.PortOne.APIBase = "https://api.portone.io"
	}
	if cfg.PortOne.Timeout == 0 {
		cfg.PortOne.Timeout = 10 * time.Second
	}
	if cfg.PortOne.WebhookTolerance == 0 {
		cfg.PortOne.WebhookTolerance = 5 * time.Minute
	}
	if cfg.PortOne.BreakerFailureThreshold == 0 {
		cfg.PortOne.BreakerFailureThreshold = 5
	}
	if cfg.PortOne.BreakerOpenTimeout == 0 {
		cfg.PortOne.BreakerOpenTimeout = 30 * time.Second
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 20
	}
	if cfg.Outbox.PollInterval == 0 {
		cfg.Outbox.PollInterval = 60 * time.Second
	}
	if cfg.Outbox.MaxRetries == 0 {
		cfg.Outbox.MaxRetries = 5
	}
	if cfg.Outbox.CleanupRetention == 0 {
		cfg.Outbox.CleanupRetention = 168 * time.Hour
	}
	if cfg.Outbox.CleanupInterval == 0 {
		cfg.Outbox.CleanupInterval = time.Hour
	}
	if cfg.Sweep.Timezone == "" {
		cfg.Sweep.Timezone = "Asia/Seoul"
	}
	if cfg.Sweep.RunTimeout == 0 {
		cfg.Sweep.RunTimeout = 15 * time.Minute
	}
	if cfg.Sweep.GracePeriod == 0 {
		cfg.Sweep.GracePeriod = 7 * 24 * time.Hour
	}
	if cfg.Sweep.BatchSize == 0 {
		cfg.Sweep.BatchSize = 100
	}
	if cfg.Billing.PaymentMethodBlackout == 0 {
		cfg.Billing.PaymentMethodBlackout = time.Hour
	}
	if cfg.Billing.WebhookDedupTTL == 0 {
		cfg.Billing.WebhookDedupTTL = 24 * time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.ProfilingServerAddress == "" {
		cfg.Telemetry.ProfilingServerAddress = "http://localhost:4040"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Sweep.RunHour < 0 || c.Sweep.RunHour > 23 {
		return fmt.Errorf("sweep.run_hour must be between 0 and 23, got %d", c.Sweep.RunHour)
	}
	if _, err := time.LoadLocation(c.Sweep.Timezone); err != nil {
		return fmt.Errorf("sweep.timezone %q is invalid: %w", c.Sweep.Timezone, err)
	}
	if c.Outbox.MaxRetries < 1 {
		return fmt.Errorf("outbox.max_retries must be at least 1")
	}
	if c.HTTP.WebhookMaxBodySize < 0 {
		return fmt.Errorf("http.webhook_max_body_size cannot be negative")
	}
	if c.HTTP.RateLimitPerSecond < 0 || c.HTTP.RateLimitBurst < 0 {
		return fmt.Errorf("http.rate_limit_per_second and http.rate_limit_burst cannot be negative")
	}

	if c.App.IsProduction() {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.JWT.AllowUserIDHeader {
			return fmt.Errorf("jwt.allow_user_id_header must be false in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.PortOne.APISecret == "" || c.PortOne.StoreID == "" {
			return fmt.Errorf("portone.api_secret and portone.store_id are required in production")
		}
		if c.PortOne.WebhookSecret == "" {
			return fmt.Errorf("portone.webhook_secret is required in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Location returns the sweep time zone; validate has already checked it
func (s SweepConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

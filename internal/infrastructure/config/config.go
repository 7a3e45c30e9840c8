package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App             AppConfig
	Database        DatabaseConfig
	Redis           RedisConfig
	Log             LogConfig
	Event           EventConfig
	HTTP            HTTPConfig
	Ledger          LedgerConfig
	Storage         StorageConfig
	Cache           CacheConfig
	CorrectionQueue CorrectionQueueConfig
	Breaker         BreakerConfig
	Scheduler       SchedulerConfig
	Telemetry       TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
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
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EventConfig holds outbox processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// LedgerConfig holds core ledger settings. Timezone is the single fixed
// business timezone every date computation uses; it is deliberately not
// UTC and not the server's local zone.
type LedgerConfig struct {
	Timezone                  string
	DiscrepancyToleranceCents int64
}

// StorageConfig controls which physical ledger layouts are live. With both
// enabled the router dual-writes during the partition migration.
type StorageConfig struct {
	LegacyEnabled      bool
	PartitionedEnabled bool
	RetentionMonths    int // monthly transaction partitions older than this are dropped
	HashPartitions     int // number of hash partitions for the balance table
	MonthsAhead        int // future monthly partitions to keep created
	DefaultPartition   bool
}

// Mode names the effective storage mode derived from the layout flags
func (s *StorageConfig) Mode() string {
	switch {
	case s.LegacyEnabled && s.PartitionedEnabled:
		return "dual"
	case s.PartitionedEnabled:
		return "partitioned"
	default:
		return "legacy"
	}
}

// CacheConfig holds report cache settings. L1 is per-process memory, L2 the
// shared Redis tier, L3 an optional second Redis (e.g. a colocated replica)
// consulted after L2 misses.
type CacheConfig struct {
	Enabled               bool
	MemoryTTL             time.Duration
	MemoryMaxEntries      int
	RedisTTL              time.Duration
	DefensiveInvalidation bool // widen eviction to the prior day as well
	WriteThrough          bool // refresh the daily entry on change instead of evicting
	InvalidationChannel   string
	L3Enabled             bool
	L3Host                string
	L3Port                int
	L3Password            string
	L3DB                  int
	L3TTL                 time.Duration
}

// CorrectionQueueConfig holds correction queue consumer settings
type CorrectionQueueConfig struct {
	ConsumerEnabled bool
	BatchSize       int
	PollInterval    time.Duration
	MaxConcurrent   int
	MaxAttempts     int
	LockTimeout     time.Duration
	DoneRetention   time.Duration
}

// BreakerConfig holds circuit breaker thresholds shared by the store,
// cache and queue breakers
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenDuration     time.Duration
	HalfOpenMax      int
}

// SchedulerConfig holds maintenance scheduler configuration
type SchedulerConfig struct {
	Enabled              bool
	DailyCronSchedule    string
	ValidationWindowDays int
	PartitionEnsureDay   int // day of month the partition ensure/cleanup jobs run
	PartitionCheckEvery  time.Duration
	MaxConcurrentJobs    int
	JobTimeout           time.Duration
	RetryAttempts        int
	RetryDelay           time.Duration
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
	ProfilingEnabled  bool
	ProfilingAddress  string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with STAYOPS_ prefix (e.g., STAYOPS_DATABASE_PASSWORD)
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
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("STAYOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Ledger: LedgerConfig{
			Timezone:                  v.GetString("ledger.timezone"),
			DiscrepancyToleranceCents: v.GetInt64("ledger.discrepancy_tolerance_cents"),
		},
		Storage: StorageConfig{
			LegacyEnabled:      v.GetBool("storage.legacy_enabled"),
			PartitionedEnabled: v.GetBool("storage.partitioned_enabled"),
			RetentionMonths:    v.GetInt("storage.retention_months"),
			HashPartitions:     v.GetInt("storage.hash_partitions"),
			MonthsAhead:        v.GetInt("storage.months_ahead"),
			DefaultPartition:   v.GetBool("storage.default_partition"),
		},
		Cache: CacheConfig{
			Enabled:               v.GetBool("cache.enabled"),
			MemoryTTL:             v.GetDuration("cache.memory_ttl"),
			MemoryMaxEntries:      v.GetInt("cache.memory_max_entries"),
			RedisTTL:              v.GetDuration("cache.redis_ttl"),
			DefensiveInvalidation: v.GetBool("cache.defensive_invalidation"),
			WriteThrough:          v.GetBool("cache.write_through"),
			InvalidationChannel:   v.GetString("cache.invalidation_channel"),
			L3Enabled:             v.GetBool("cache.l3_enabled"),
			L3Host:                v.GetString("cache.l3_host"),
			L3Port:                v.GetInt("cache.l3_port"),
			L3Password:            v.GetString("cache.l3_password"),
			L3DB:                  v.GetInt("cache.l3_db"),
			L3TTL:                 v.GetDuration("cache.l3_ttl"),
		},
		CorrectionQueue: CorrectionQueueConfig{
			ConsumerEnabled: v.GetBool("correction_queue.consumer_enabled"),
			BatchSize:       v.GetInt("correction_queue.batch_size"),
			PollInterval:    v.GetDuration("correction_queue.poll_interval"),
			MaxConcurrent:   v.GetInt("correction_queue.max_concurrent"),
			MaxAttempts:     v.GetInt("correction_queue.max_attempts"),
			LockTimeout:     v.GetDuration("correction_queue.lock_timeout"),
			DoneRetention:   v.GetDuration("correction_queue.done_retention"),
		},
		Breaker: BreakerConfig{
			FailureThreshold: v.GetInt("breaker.failure_threshold"),
			SuccessThreshold: v.GetInt("breaker.success_threshold"),
			OpenDuration:     v.GetDuration("breaker.open_duration"),
			HalfOpenMax:      v.GetInt("breaker.half_open_max"),
		},
		Scheduler: SchedulerConfig{
			Enabled:              v.GetBool("scheduler.enabled"),
			DailyCronSchedule:    v.GetString("scheduler.daily_cron_schedule"),
			ValidationWindowDays: v.GetInt("scheduler.validation_window_days"),
			PartitionEnsureDay:   v.GetInt("scheduler.partition_ensure_day"),
			PartitionCheckEvery:  v.GetDuration("scheduler.partition_check_every"),
			MaxConcurrentJobs:    v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:           v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:        v.GetInt("scheduler.retry_attempts"),
			RetryDelay:           v.GetDuration("scheduler.retry_delay"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingAddress:  v.GetString("telemetry.profiling_address"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "stayops-ledger"
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
		cfg.Database.DBName = "stayops"
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
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
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
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// CORS origins deliberately have no wildcard fallback; an empty list
	// allows no cross-origin requests until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID"}
	}
	if cfg.Ledger.Timezone == "" {
		cfg.Ledger.Timezone = "Asia/Kolkata"
	}
	if !cfg.Storage.LegacyEnabled && !cfg.Storage.PartitionedEnabled {
		// A fresh deployment runs partitioned-only; the legacy flag exists
		// for fleets still mid-migration.
		cfg.Storage.PartitionedEnabled = true
	}
	if cfg.Storage.RetentionMonths == 0 {
		cfg.Storage.RetentionMonths = 24
	}
	if cfg.Storage.HashPartitions == 0 {
		cfg.Storage.HashPartitions = 8
	}
	if cfg.Storage.MonthsAhead == 0 {
		cfg.Storage.MonthsAhead = 1
	}
	if cfg.Cache.MemoryTTL == 0 {
		cfg.Cache.MemoryTTL = 30 * time.Second
	}
	if cfg.Cache.MemoryMaxEntries == 0 {
		cfg.Cache.MemoryMaxEntries = 10000
	}
	if cfg.Cache.RedisTTL == 0 {
		cfg.Cache.RedisTTL = 15 * time.Minute
	}
	if cfg.Cache.InvalidationChannel == "" {
		cfg.Cache.InvalidationChannel = "ledger:cache:invalidate"
	}
	if cfg.Cache.L3Port == 0 {
		cfg.Cache.L3Port = 6379
	}
	if cfg.Cache.L3TTL == 0 {
		cfg.Cache.L3TTL = time.Hour
	}
	if cfg.CorrectionQueue.BatchSize == 0 {
		cfg.CorrectionQueue.BatchSize = 50
	}
	if cfg.CorrectionQueue.PollInterval == 0 {
		cfg.CorrectionQueue.PollInterval = 10 * time.Second
	}
	if cfg.CorrectionQueue.MaxConcurrent == 0 {
		cfg.CorrectionQueue.MaxConcurrent = 4
	}
	if cfg.CorrectionQueue.MaxAttempts == 0 {
		cfg.CorrectionQueue.MaxAttempts = 5
	}
	if cfg.CorrectionQueue.LockTimeout == 0 {
		cfg.CorrectionQueue.LockTimeout = 5 * time.Minute
	}
	if cfg.CorrectionQueue.DoneRetention == 0 {
		cfg.CorrectionQueue.DoneRetention = 72 * time.Hour
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		cfg.Breaker.SuccessThreshold = 2
	}
	if cfg.Breaker.OpenDuration == 0 {
		cfg.Breaker.OpenDuration = 30 * time.Second
	}
	if cfg.Breaker.HalfOpenMax == 0 {
		cfg.Breaker.HalfOpenMax = 1
	}
	if cfg.Scheduler.DailyCronSchedule == "" {
		cfg.Scheduler.DailyCronSchedule = "30 2 * * *"
	}
	if cfg.Scheduler.ValidationWindowDays == 0 {
		cfg.Scheduler.ValidationWindowDays = 7
	}
	if cfg.Scheduler.PartitionEnsureDay == 0 {
		cfg.Scheduler.PartitionEnsureDay = 25
	}
	if cfg.Scheduler.PartitionCheckEvery == 0 {
		cfg.Scheduler.PartitionCheckEvery = time.Hour
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 3
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "stayops-ledger"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
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

	if c.Ledger.Timezone == "" {
		return fmt.Errorf("ledger.timezone is required")
	}
	if c.Ledger.DiscrepancyToleranceCents < 0 {
		return fmt.Errorf("ledger.discrepancy_tolerance_cents cannot be negative")
	}
	if c.Storage.RetentionMonths < 1 {
		return fmt.Errorf("storage.retention_months must be at least 1")
	}
	if c.Storage.HashPartitions < 1 {
		return fmt.Errorf("storage.hash_partitions must be at least 1")
	}
	if c.Cache.L3Enabled && c.Cache.L3Host == "" {
		return fmt.Errorf("cache.l3_host is required when cache.l3_enabled is true")
	}
	if c.Scheduler.PartitionEnsureDay < 1 || c.Scheduler.PartitionEnsureDay > 28 {
		return fmt.Errorf("scheduler.partition_ensure_day must be between 1 and 28, got %d", c.Scheduler.PartitionEnsureDay)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingAddress == "" {
		return fmt.Errorf("telemetry.profiling_address is required when profiling is enabled")
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

// Addr returns the host:port address for the Redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Package config loads service configuration from an optional .env file, an
// optional YAML file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"AGENCY_HTTP_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"AGENCY_HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"AGENCY_HTTP_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"AGENCY_HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"AGENCY_SHUTDOWN_TIMEOUT"`
	// CORSOrigins is a comma separated allow list; "*" allows any origin.
	CORSOrigins string  `yaml:"cors_origins" env:"AGENCY_CORS_ORIGINS"`
	RateLimit   float64 `yaml:"rate_limit" env:"AGENCY_RATE_LIMIT"`
	RateBurst   int     `yaml:"rate_burst" env:"AGENCY_RATE_BURST"`
	// AuditLogPath appends audit entries as JSON lines when set.
	AuditLogPath string `yaml:"audit_log_path" env:"AGENCY_AUDIT_LOG"`
}

// Origins splits CORSOrigins.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" env:"AGENCY_STORAGE"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	Migrate         bool          `yaml:"migrate" env:"DATABASE_MIGRATE"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url" env:"SUPABASE_URL"`
	ServiceKey string `yaml:"service_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	AnonKey    string `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	JWTSecret  string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
	Bucket     string `yaml:"bucket" env:"SUPABASE_BUCKET"`
	Realtime   bool   `yaml:"realtime" env:"SUPABASE_REALTIME"`

	Resilience       bool          `yaml:"resilience" env:"SUPABASE_RESILIENCE"`
	MaxRetries       int           `yaml:"max_retries" env:"SUPABASE_MAX_RETRIES"`
	BreakerThreshold int           `yaml:"breaker_threshold" env:"SUPABASE_BREAKER_THRESHOLD"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" env:"SUPABASE_BREAKER_COOLDOWN"`
}

// Enabled reports whether a Supabase project is configured.
func (s SupabaseConfig) Enabled() bool {
	return strings.TrimSpace(s.URL) != "" && strings.TrimSpace(s.ServiceKey) != ""
}

type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"REDIS_DB"`
	Prefix       string        `yaml:"prefix" env:"REDIS_PREFIX"`
	DashboardTTL time.Duration `yaml:"dashboard_ttl" env:"AGENCY_DASHBOARD_TTL"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 access tokens. Defaults to the Supabase JWT
	// secret.
	JWTSecret string `yaml:"jwt_secret" env:"AGENCY_JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"AGENCY_JWT_ISSUER"`
	Audience  string `yaml:"audience" env:"AGENCY_JWT_AUDIENCE"`
}

type JobsConfig struct {
	Disabled          bool          `yaml:"disabled" env:"AGENCY_JOBS_DISABLED"`
	ReconcileSchedule string        `yaml:"reconcile_schedule" env:"AGENCY_RECONCILE_SCHEDULE"`
	ReminderSchedule  string        `yaml:"reminder_schedule" env:"AGENCY_REMINDER_SCHEDULE"`
	OverdueSchedule   string        `yaml:"overdue_schedule" env:"AGENCY_OVERDUE_SCHEDULE"`
	ReminderWindow    time.Duration `yaml:"reminder_window" env:"AGENCY_REMINDER_WINDOW"`
}

// Load reads configuration. The .env file named by AGENCY_ENV_FILE (default
// ".env") and the YAML file named by AGENCY_CONFIG_FILE are optional.
func Load() (*Config, error) {
	envFile := strings.TrimSpace(os.Getenv("AGENCY_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{}
	if path := strings.TrimSpace(os.Getenv("AGENCY_CONFIG_FILE")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges a YAML file into cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.Addr, ":8080")
	setDuration(&c.Server.ReadTimeout, 15*time.Second)
	setDuration(&c.Server.WriteTimeout, 30*time.Second)
	setDuration(&c.Server.IdleTimeout, 60*time.Second)
	setDuration(&c.Server.ShutdownTimeout, 10*time.Second)
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 20
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 40
	}

	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Format, "text")
	setString(&c.Logging.Output, "stdout")

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		switch {
		case c.Supabase.Enabled():
			c.Storage.Backend = BackendSupabase
		case c.Database.DSN != "":
			c.Storage.Backend = BackendPostgres
		default:
			c.Storage.Backend = BackendMemory
		}
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	setDuration(&c.Database.ConnMaxLifetime, 30*time.Minute)

	setString(&c.Supabase.Bucket, "portfolio")
	if c.Supabase.MaxRetries == 0 {
		c.Supabase.MaxRetries = 3
	}
	if c.Supabase.BreakerThreshold == 0 {
		c.Supabase.BreakerThreshold = 5
	}
	setDuration(&c.Supabase.BreakerCooldown, 30*time.Second)

	setString(&c.Redis.Prefix, "agency:")
	setDuration(&c.Redis.DashboardTTL, time.Minute)

	setString(&c.Auth.JWTSecret, c.Supabase.JWTSecret)

	setString(&c.Jobs.ReconcileSchedule, "@every 1h")
	setString(&c.Jobs.ReminderSchedule, "@every 5m")
	setString(&c.Jobs.OverdueSchedule, "@every 1h")
	setDuration(&c.Jobs.ReminderWindow, time.Hour)
}

// Validate reports configuration that cannot start the service.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			errs = append(errs, errors.New("storage backend postgres requires DATABASE_URL"))
		}
	case BackendSupabase:
		if !c.Supabase.Enabled() {
			errs = append(errs, errors.New("storage backend supabase requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("AGENCY_JWT_SECRET or SUPABASE_JWT_SECRET is required"))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.Jobs.ReminderWindow < 0 {
		errs = append(errs, errors.New("reminder window must not be negative"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}

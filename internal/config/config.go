package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Scheduler    SchedulerConfig
	Snooze       SnoozeConfig
	Engine       EngineConfig
	Locking      LockingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters. Tokens are issued elsewhere.
// DevStaff seeds the in-memory staff directory as "id:role:name" entries separated by commas.
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
	DevStaff        string
}

// NotificationConfig configures outbound delivery of dispatched messages.
type NotificationConfig struct {
	WebhookURL            string
	WebhookTimeoutSeconds int
}

// SchedulerConfig tunes the timer sweep and dispatch retries.
type SchedulerConfig struct {
	SweepIntervalSeconds int
	BatchSize            int
	BackoffBaseSeconds   int
	BackoffMaxSeconds    int
	AlertAfterAttempts   int
	ClaimTTLSeconds      int
}

// SnoozeConfig controls snooze preset computation.
type SnoozeConfig struct {
	TimeZone string
}

// EngineConfig holds lifecycle rules that differ between deployments.
type EngineConfig struct {
	AIAgentID             string
	ChatInactivityMinutes int
	TicketAutoCloseHours  int
}

// LockingConfig selects the per-item lock backend: "memory" or "redis".
type LockingConfig struct {
	Backend    string
	TTLSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "lifecycle-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Channel:  getEnv("REDIS_EVENTS_CHANNEL", "lifecycle:events"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 720),
			DevStaff:        os.Getenv("DEV_STAFF"),
		},
		Notification: NotificationConfig{
			WebhookURL:            getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutSeconds: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 10),
		},
		Scheduler: SchedulerConfig{
			SweepIntervalSeconds: getEnvAsInt("SWEEP_INTERVAL_SECONDS", 30),
			BatchSize:            getEnvAsInt("SWEEP_BATCH_SIZE", 100),
			BackoffBaseSeconds:   getEnvAsInt("DISPATCH_BACKOFF_BASE_SECONDS", 30),
			BackoffMaxSeconds:    getEnvAsInt("DISPATCH_BACKOFF_MAX_SECONDS", 3600),
			AlertAfterAttempts:   getEnvAsInt("DISPATCH_ALERT_AFTER_ATTEMPTS", 5),
			ClaimTTLSeconds:      getEnvAsInt("DISPATCH_CLAIM_TTL_SECONDS", 300),
		},
		Snooze: SnoozeConfig{
			TimeZone: getEnv("SNOOZE_TIMEZONE", "UTC"),
		},
		Engine: EngineConfig{
			AIAgentID:             getEnv("AI_AGENT_ID", "ai-agent-001"),
			ChatInactivityMinutes: getEnvAsInt("CHAT_INACTIVITY_MINUTES", 0),
			TicketAutoCloseHours:  getEnvAsInt("TICKET_AUTOCLOSE_HOURS", 0),
		},
		Locking: LockingConfig{
			Backend:    getEnv("LOCK_BACKEND", "memory"),
			TTLSeconds: getEnvAsInt("LOCK_TTL_SECONDS", 30),
		},
	}

	if _, err := cfg.Snooze.Location(); err != nil {
		return nil, fmt.Errorf("invalid SNOOZE_TIMEZONE: %w", err)
	}
	if cfg.Locking.Backend != "memory" && cfg.Locking.Backend != "redis" {
		return nil, fmt.Errorf("invalid LOCK_BACKEND %q", cfg.Locking.Backend)
	}
	if cfg.Locking.Backend == "redis" && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("LOCK_BACKEND=redis requires REDIS_ADDR")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns how often the timer sweep runs.
func (s SchedulerConfig) SweepInterval() time.Duration {
	if s.SweepIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// ClaimTTL returns how long a dispatch claim is honoured before it is considered stale.
func (s SchedulerConfig) ClaimTTL() time.Duration {
	return time.Duration(s.ClaimTTLSeconds) * time.Second
}

// Backoff returns the retry delay after the given number of failed attempts.
func (s SchedulerConfig) Backoff(attempts int) time.Duration {
	base := time.Duration(s.BackoffBaseSeconds) * time.Second
	limit := time.Duration(s.BackoffMaxSeconds) * time.Second
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if limit > 0 && delay >= limit {
			return limit
		}
	}
	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}

// Location loads the configured snooze time zone.
func (s SnoozeConfig) Location() (*time.Location, error) {
	if s.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.TimeZone)
}

// ChatInactivity returns the idle period after which conversations close, or 0 when disabled.
func (e EngineConfig) ChatInactivity() time.Duration {
	return time.Duration(e.ChatInactivityMinutes) * time.Minute
}

// TicketAutoClose returns how long a resolved ticket waits before closing, or 0 when disabled.
func (e EngineConfig) TicketAutoClose() time.Duration {
	return time.Duration(e.TicketAutoCloseHours) * time.Hour
}

// TTL bounds how long a distributed item lock is held.
func (l LockingConfig) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

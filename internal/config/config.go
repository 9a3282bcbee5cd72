package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App      AppConfig
	Telegram TelegramConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Session  SessionConfig
	Logger   LoggerConfig
	Admin    AdminConfig
}

// AppConfig controls the admin HTTP server.
type AppConfig struct {
	Name    string
	Env     string
	Host    string
	Port    string
	Version string
}

// TelegramConfig holds bot credentials and chat identities.
type TelegramConfig struct {
	BotToken       string
	GroupChatID    int64
	AdminIDs       []int64
	OperatorIDs    []int64
	PollTimeoutSec int
}

// PostgresConfig holds DB connection values.
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
}

// SessionConfig selects the dialogue session backend.
type SessionConfig struct {
	Backend    string
	TTLMinutes int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AdminConfig protects the admin HTTP API. The API is disabled entirely when
// PasswordHash is empty.
type AdminConfig struct {
	PasswordHash    string
	JWTSecret       string
	TokenTTLMinutes int
}

// Session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Load reads configuration from environment variables. Missing required
// values are reported as errors; callers treat them as fatal at startup.
func Load() (*Config, error) {
	_ = godotenv.Load()

	botToken := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if botToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	groupChatID, err := strconv.ParseInt(getEnv("GROUP_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GROUP_CHAT_ID: %w", err)
	}
	if groupChatID == 0 {
		return nil, fmt.Errorf("GROUP_CHAT_ID is required")
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	adminIDs, err := parseIDList(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}
	operatorIDs, err := parseIDList(os.Getenv("OPERATOR_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATOR_IDS: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	sessionBackend := getEnv("SESSION_BACKEND", SessionBackendMemory)
	if sessionBackend != SessionBackendMemory && sessionBackend != SessionBackendRedis {
		return nil, fmt.Errorf("invalid SESSION_BACKEND: %q", sessionBackend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "support-bot"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			Port:    getEnv("APP_PORT", "8080"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Telegram: TelegramConfig{
			BotToken:       botToken,
			GroupChatID:    groupChatID,
			AdminIDs:       adminIDs,
			OperatorIDs:    operatorIDs,
			PollTimeoutSec: getEnvAsInt("TELEGRAM_POLL_TIMEOUT_SECONDS", 60),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Session: SessionConfig{
			Backend:    sessionBackend,
			TTLMinutes: getEnvAsInt("SESSION_TTL_MINUTES", 0),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Admin: AdminConfig{
			PasswordHash:    os.Getenv("ADMIN_PASSWORD_HASH"),
			JWTSecret:       getEnv("ADMIN_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("ADMIN_TOKEN_TTL_MINUTES", 60),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsOperator reports whether the id is in the operator allowlist. An empty
// list means every group member may answer.
func (t TelegramConfig) IsOperator(id int64) bool {
	if len(t.OperatorIDs) == 0 {
		return true
	}
	for _, op := range t.OperatorIDs {
		if op == id {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the id is in the admin list.
func (t TelegramConfig) IsAdmin(id int64) bool {
	for _, admin := range t.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// TTL returns the configured session time-to-live; zero means no expiry.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(s.TTLMinutes) * time.Minute
}

// Enabled reports whether the admin HTTP API should be exposed.
func (a AdminConfig) Enabled() bool {
	return strings.TrimSpace(a.PasswordHash) != ""
}

func parseIDList(value string) ([]int64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
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

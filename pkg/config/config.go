package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Warnings WarningsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// WarningsConfig governs the early-warning engine: caching, detection concurrency and scheduling.
type WarningsConfig struct {
	Enabled              bool
	CacheEnabled         bool
	CacheTTL             time.Duration
	DetectionConcurrency int
	BatchConcurrency     int
	StoreTimeout         time.Duration
	DefaultWindowDays    int
	ScheduleEnabled      bool
	ScheduleInterval     time.Duration
	QueueWorkers         int
	QueueRetries         int
	SystemRulesFile      string
	BreakerFailureRatio  float64
	BreakerTimeout       time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Warnings = WarningsConfig{
		Enabled:              v.GetBool("ENABLE_WARNINGS"),
		CacheEnabled:         v.GetBool("WARNINGS_CACHE_ENABLED"),
		CacheTTL:             parseDuration(v.GetString("WARNINGS_CACHE_TTL"), 10*time.Minute),
		DetectionConcurrency: positiveInt(v.GetInt("WARNINGS_DETECTION_CONCURRENCY"), 8),
		BatchConcurrency:     positiveInt(v.GetInt("WARNINGS_BATCH_CONCURRENCY"), 4),
		StoreTimeout:         parseDuration(v.GetString("WARNINGS_STORE_TIMEOUT"), 5*time.Second),
		DefaultWindowDays:    positiveInt(v.GetInt("WARNINGS_DEFAULT_WINDOW_DAYS"), 30),
		ScheduleEnabled:      v.GetBool("WARNINGS_SCHEDULE_ENABLED"),
		ScheduleInterval:     parseDuration(v.GetString("WARNINGS_SCHEDULE_INTERVAL"), 24*time.Hour),
		QueueWorkers:         positiveInt(v.GetInt("WARNINGS_QUEUE_WORKERS"), 1),
		QueueRetries:         positiveInt(v.GetInt("WARNINGS_QUEUE_RETRIES"), 3),
		SystemRulesFile:      v.GetString("WARNINGS_SYSTEM_RULES_FILE"),
		BreakerFailureRatio:  v.GetFloat64("WARNINGS_BREAKER_FAILURE_RATIO"),
		BreakerTimeout:       parseDuration(v.GetString("WARNINGS_BREAKER_TIMEOUT"), 30*time.Second),
	}
	if cfg.Warnings.BreakerFailureRatio <= 0 || cfg.Warnings.BreakerFailureRatio > 1 {
		cfg.Warnings.BreakerFailureRatio = 0.6
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "admin_panel_sma")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_WARNINGS", true)
	v.SetDefault("WARNINGS_CACHE_ENABLED", true)
	v.SetDefault("WARNINGS_CACHE_TTL", "10m")
	v.SetDefault("WARNINGS_DETECTION_CONCURRENCY", 8)
	v.SetDefault("WARNINGS_BATCH_CONCURRENCY", 4)
	v.SetDefault("WARNINGS_STORE_TIMEOUT", "5s")
	v.SetDefault("WARNINGS_DEFAULT_WINDOW_DAYS", 30)
	v.SetDefault("WARNINGS_SCHEDULE_ENABLED", false)
	v.SetDefault("WARNINGS_SCHEDULE_INTERVAL", "24h")
	v.SetDefault("WARNINGS_QUEUE_WORKERS", 1)
	v.SetDefault("WARNINGS_QUEUE_RETRIES", 3)
	v.SetDefault("WARNINGS_SYSTEM_RULES_FILE", "./config/system_rules.yaml")
	v.SetDefault("WARNINGS_BREAKER_FAILURE_RATIO", 0.6)
	v.SetDefault("WARNINGS_BREAKER_TIMEOUT", "30s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// viper returns a *fs.PathError rather than ConfigFileNotFoundError when SetConfigFile points at a missing file.
func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}

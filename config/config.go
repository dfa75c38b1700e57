package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

type Config struct {
	ServerPort    string
	DatabaseURL   string
	AdminToken    string
	LogLevel      string
	LogFormat     string
	ServiceName   string
	RedisAddr     string
	RedisPassword string
	RedisDB       string

	SuggestionCacheTTLSeconds   string
	RepositoryTimeoutMs         string
	HashBackfillIntervalHours   string
	DuplicateInclusionThreshold string
	DuplicateThreshold          string
	SuggestionThreshold         string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		ServiceName:   getEnv("SERVICE_NAME", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),

		SuggestionCacheTTLSeconds:   getEnv("SUGGESTION_CACHE_TTL_SECONDS", "30"),
		RepositoryTimeoutMs:         getEnv("REPOSITORY_TIMEOUT_MS", "5000"),
		HashBackfillIntervalHours:   getEnv("HASH_BACKFILL_INTERVAL_HOURS", "6"),
		DuplicateInclusionThreshold: getEnv("DUPLICATE_INCLUSION_THRESHOLD", "50"),
		DuplicateThreshold:          getEnv("DUPLICATE_THRESHOLD", "70"),
		SuggestionThreshold:         getEnv("SUGGESTION_THRESHOLD", "40"),
	}
}

// UnifiedConfiguration overlays the environment onto the default configuration.
// Unparseable values are logged and left at their defaults.
func (c *Config) UnifiedConfiguration() *shared.UnifiedConfiguration {
	unified := shared.NewDefaultUnifiedConfiguration()

	unified.Detector.InclusionThreshold = parseInt("DUPLICATE_INCLUSION_THRESHOLD", c.DuplicateInclusionThreshold, unified.Detector.InclusionThreshold)
	unified.Detector.DuplicateThreshold = parseInt("DUPLICATE_THRESHOLD", c.DuplicateThreshold, unified.Detector.DuplicateThreshold)
	unified.Detector.SuggestionThreshold = parseInt("SUGGESTION_THRESHOLD", c.SuggestionThreshold, unified.Detector.SuggestionThreshold)

	if ms := parseInt("REPOSITORY_TIMEOUT_MS", c.RepositoryTimeoutMs, -1); ms >= 0 {
		unified.Detector.RepositoryTimeout = time.Duration(ms) * time.Millisecond
	}
	if hours := parseInt("HASH_BACKFILL_INTERVAL_HOURS", c.HashBackfillIntervalHours, -1); hours >= 0 {
		unified.Detector.BackfillInterval = time.Duration(hours) * time.Hour
	}
	if seconds := parseInt("SUGGESTION_CACHE_TTL_SECONDS", c.SuggestionCacheTTLSeconds, -1); seconds >= 0 {
		unified.Cache.SuggestionTTL = time.Duration(seconds) * time.Second
	}

	unified.Cache.RedisAddr = c.RedisAddr
	unified.Cache.RedisPassword = c.RedisPassword
	unified.Cache.RedisDB = parseInt("REDIS_DB", c.RedisDB, 0)

	unified.Logging.Level = c.LogLevel
	unified.Logging.Format = c.LogFormat
	unified.Logging.ServiceName = c.ServiceName

	unified.ValidateAndApplyDefaults()
	return unified
}

// ConfigureLogging applies the logging section to the global logrus logger.
// Every entry is tagged with the service name.
func ConfigureLogging(logging shared.LoggingConfig) {
	level, err := logrus.ParseLevel(logging.Level)
	if err != nil {
		logrus.Warnf("Invalid LOG_LEVEL value: %s, using info", logging.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if logging.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	if logging.ServiceName != "" {
		logrus.AddHook(serviceFieldHook{service: logging.ServiceName})
	}
}

// serviceFieldHook adds a "service" field to entries that do not set one
type serviceFieldHook struct {
	service string
}

func (h serviceFieldHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h serviceFieldHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	return nil
}

func parseInt(key, value string, fallback int) int {
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default", key, value)
		return fallback
	}
	return parsed
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "DATABASE_URL", "ADMIN_TOKEN", "REDIS_ADDR", "DUPLICATE_THRESHOLD"} {
		t.Setenv(key, "")
	}
	t.Setenv("SERVER_PORT", "8080")

	cfg := LoadConfig()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Empty(t, cfg.DatabaseURL)

	unified := cfg.UnifiedConfiguration()
	assert.Equal(t, 50, unified.Detector.InclusionThreshold)
	assert.Equal(t, 70, unified.Detector.DuplicateThreshold)
	assert.Equal(t, 40, unified.Detector.SuggestionThreshold)
	assert.Empty(t, unified.Cache.RedisAddr)
}

func TestUnifiedConfigurationOverlaysEnvironment(t *testing.T) {
	t.Setenv("DUPLICATE_INCLUSION_THRESHOLD", "55")
	t.Setenv("DUPLICATE_THRESHOLD", "85")
	t.Setenv("SUGGESTION_THRESHOLD", "30")
	t.Setenv("REPOSITORY_TIMEOUT_MS", "250")
	t.Setenv("HASH_BACKFILL_INTERVAL_HOURS", "0")
	t.Setenv("SUGGESTION_CACHE_TTL_SECONDS", "0")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	unified := LoadConfig().UnifiedConfiguration()

	assert.Equal(t, 55, unified.Detector.InclusionThreshold)
	assert.Equal(t, 85, unified.Detector.DuplicateThreshold)
	assert.Equal(t, 30, unified.Detector.SuggestionThreshold)
	assert.Equal(t, 250*time.Millisecond, unified.Detector.RepositoryTimeout)
	assert.Equal(t, time.Duration(0), unified.Detector.BackfillInterval)
	assert.Equal(t, time.Duration(0), unified.Cache.SuggestionTTL)
	assert.Equal(t, "localhost:6379", unified.Cache.RedisAddr)
	assert.Equal(t, 2, unified.Cache.RedisDB)
}

func TestUnifiedConfigurationIgnoresInvalidValues(t *testing.T) {
	t.Setenv("DUPLICATE_THRESHOLD", "very high")
	t.Setenv("SUGGESTION_THRESHOLD", "140")
	t.Setenv("REPOSITORY_TIMEOUT_MS", "-5")
	t.Setenv("SUGGESTION_CACHE_TTL_SECONDS", "soon")

	unified := LoadConfig().UnifiedConfiguration()

	assert.Equal(t, 70, unified.Detector.DuplicateThreshold)
	assert.Equal(t, 40, unified.Detector.SuggestionThreshold)
	assert.Equal(t, 5*time.Second, unified.Detector.RepositoryTimeout)
	assert.Equal(t, 30*time.Second, unified.Cache.SuggestionTTL)
}

func TestConfigureLogging(t *testing.T) {
	logger := logrus.StandardLogger()
	savedLevel := logger.GetLevel()
	savedFormatter := logger.Formatter
	savedOut := logger.Out
	defer func() {
		logrus.SetLevel(savedLevel)
		logrus.SetFormatter(savedFormatter)
		logrus.SetOutput(savedOut)
		logger.ReplaceHooks(make(logrus.LevelHooks))
	}()

	ConfigureLogging(shared.LoggingConfig{Level: "debug", Format: "text", ServiceName: "scenario-dedup"})
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	ConfigureLogging(shared.LoggingConfig{Level: "nonsense", Format: "json", ServiceName: "dedup-test"})
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	logrus.Info("tagged")
	logrus.WithField("service", "override").Info("explicit")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "dedup-test", first["service"])
	assert.Equal(t, "override", second["service"])
}

func TestUnifiedConfigurationLoggingSection(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SERVICE_NAME", "")

	logging := LoadConfig().UnifiedConfiguration().Logging
	assert.Equal(t, "warn", logging.Level)
	assert.Equal(t, "text", logging.Format)
	assert.Equal(t, "scenario-dedup", logging.ServiceName)

	t.Setenv("SERVICE_NAME", "dedup-eu")
	assert.Equal(t, "dedup-eu", LoadConfig().UnifiedConfiguration().Logging.ServiceName)
}

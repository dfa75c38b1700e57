package shared

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// UnifiedConfiguration holds all configuration parameters for the service
type UnifiedConfiguration struct {
	Detector DetectorConfig `json:"detector"`
	Database DatabaseConfig `json:"database"`
	Cache    CacheConfig    `json:"cache"`
	Logging  LoggingConfig  `json:"logging"`
}

// DetectorConfig holds the similarity weights and thresholds. The inclusion,
// duplicate and suggestion thresholds are tuned independently.
type DetectorConfig struct {
	InclusionThreshold   int           `json:"inclusion_threshold"`
	DuplicateThreshold   int           `json:"duplicate_threshold"`
	SuggestionThreshold  int           `json:"suggestion_threshold"`
	TitleWeight          float64       `json:"title_weight"`
	DescriptionWeight    float64       `json:"description_weight"`
	MaxResults           int           `json:"max_results"`
	SuggestionSampleSize int           `json:"suggestion_sample_size"`
	MinSuggestionLength  int           `json:"min_suggestion_length"`
	RepositoryTimeout    time.Duration `json:"repository_timeout"`
	BackfillInterval     time.Duration `json:"backfill_interval"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns       int           `json:"max_open_conns"`
	MaxIdleConns       int           `json:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `json:"conn_max_idle_time"`
	PingTimeout        time.Duration `json:"ping_timeout"`
	MaxRetries         int           `json:"max_retries"`
	RetryBaseDelay     time.Duration `json:"retry_base_delay"`
	RetryMaxDelay      time.Duration `json:"retry_max_delay"`
	SlowQueryThreshold time.Duration `json:"slow_query_threshold"`
}

// CacheConfig holds the suggestion sample cache configuration
type CacheConfig struct {
	SuggestionTTL time.Duration `json:"suggestion_ttl"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
	RedisKey      string        `json:"redis_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	ServiceName string `json:"service_name"`
}

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Detector: DefaultDetectorConfig(),
		Database: DatabaseConfig{
			MaxOpenConns:       25,
			MaxIdleConns:       5,
			ConnMaxLifetime:    5 * time.Minute,
			ConnMaxIdleTime:    5 * time.Minute,
			PingTimeout:        5 * time.Second,
			MaxRetries:         3,
			RetryBaseDelay:     100 * time.Millisecond,
			RetryMaxDelay:      2 * time.Second,
			SlowQueryThreshold: 500 * time.Millisecond,
		},
		Cache: CacheConfig{
			SuggestionTTL: 30 * time.Second,
			RedisKey:      "scenarios:suggestion-sample",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "scenario-dedup",
		},
	}
}

// DefaultDetectorConfig returns the thresholds used by the scenario creation form
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		InclusionThreshold:   50,
		DuplicateThreshold:   70,
		SuggestionThreshold:  40,
		TitleWeight:          0.7,
		DescriptionWeight:    0.3,
		MaxResults:           5,
		SuggestionSampleSize: 50,
		MinSuggestionLength:  5,
		RepositoryTimeout:    5 * time.Second,
		BackfillInterval:     6 * time.Hour,
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	c.Detector.validate(logger, defaults.Detector)

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
		logger.Debug("Applied default Database.MaxOpenConns")
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
		logger.Debug("Applied default Database.MaxIdleConns")
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
		logger.Debug("Applied default Database.ConnMaxLifetime")
	}
	if c.Database.ConnMaxIdleTime <= 0 {
		c.Database.ConnMaxIdleTime = defaults.Database.ConnMaxIdleTime
		logger.Debug("Applied default Database.ConnMaxIdleTime")
	}
	if c.Database.PingTimeout <= 0 {
		c.Database.PingTimeout = defaults.Database.PingTimeout
		logger.Debug("Applied default Database.PingTimeout")
	}
	if c.Database.MaxRetries < 0 {
		c.Database.MaxRetries = defaults.Database.MaxRetries
		logger.Debug("Applied default Database.MaxRetries")
	}
	if c.Database.RetryBaseDelay <= 0 {
		c.Database.RetryBaseDelay = defaults.Database.RetryBaseDelay
		logger.Debug("Applied default Database.RetryBaseDelay")
	}
	if c.Database.RetryMaxDelay <= 0 {
		c.Database.RetryMaxDelay = defaults.Database.RetryMaxDelay
		logger.Debug("Applied default Database.RetryMaxDelay")
	}
	if c.Database.SlowQueryThreshold <= 0 {
		c.Database.SlowQueryThreshold = defaults.Database.SlowQueryThreshold
		logger.Debug("Applied default Database.SlowQueryThreshold")
	}

	if c.Cache.SuggestionTTL < 0 {
		c.Cache.SuggestionTTL = defaults.Cache.SuggestionTTL
		logger.Debug("Applied default Cache.SuggestionTTL")
	}
	if c.Cache.RedisKey == "" {
		c.Cache.RedisKey = defaults.Cache.RedisKey
		logger.Debug("Applied default Cache.RedisKey")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		logger.Debug("Applied default Logging.Level")
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
		logger.Debug("Applied default Logging.Format")
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
		logger.Debug("Applied default Logging.ServiceName")
	}
}

func (d *DetectorConfig) validate(logger *logrus.Entry, defaults DetectorConfig) {
	if !validPercent(d.InclusionThreshold) {
		logger.WithField("value", d.InclusionThreshold).Debug("Applied default Detector.InclusionThreshold")
		d.InclusionThreshold = defaults.InclusionThreshold
	}
	if !validPercent(d.DuplicateThreshold) {
		logger.WithField("value", d.DuplicateThreshold).Debug("Applied default Detector.DuplicateThreshold")
		d.DuplicateThreshold = defaults.DuplicateThreshold
	}
	if !validPercent(d.SuggestionThreshold) {
		logger.WithField("value", d.SuggestionThreshold).Debug("Applied default Detector.SuggestionThreshold")
		d.SuggestionThreshold = defaults.SuggestionThreshold
	}

	// Weights must be non-negative and sum to 1 or scores leave the 0-100 range
	sum := d.TitleWeight + d.DescriptionWeight
	if d.TitleWeight < 0 || d.DescriptionWeight < 0 || sum < 0.999 || sum > 1.001 {
		logger.WithFields(logrus.Fields{
			"title_weight":       d.TitleWeight,
			"description_weight": d.DescriptionWeight,
		}).Debug("Applied default Detector weights")
		d.TitleWeight = defaults.TitleWeight
		d.DescriptionWeight = defaults.DescriptionWeight
	}

	if d.MaxResults <= 0 {
		d.MaxResults = defaults.MaxResults
		logger.Debug("Applied default Detector.MaxResults")
	}
	if d.SuggestionSampleSize <= 0 {
		d.SuggestionSampleSize = defaults.SuggestionSampleSize
		logger.Debug("Applied default Detector.SuggestionSampleSize")
	}
	if d.MinSuggestionLength <= 0 {
		d.MinSuggestionLength = defaults.MinSuggestionLength
		logger.Debug("Applied default Detector.MinSuggestionLength")
	}
	if d.RepositoryTimeout <= 0 {
		d.RepositoryTimeout = defaults.RepositoryTimeout
		logger.Debug("Applied default Detector.RepositoryTimeout")
	}
	if d.BackfillInterval < 0 {
		d.BackfillInterval = defaults.BackfillInterval
		logger.Debug("Applied default Detector.BackfillInterval")
	}
}

func validPercent(v int) bool {
	return v >= 0 && v <= 100
}

// ToJSON serializes the configuration to JSON
func (c *UnifiedConfiguration) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// LoadFromJSON deserializes configuration from JSON
func (c *UnifiedConfiguration) LoadFromJSON(jsonData []byte) error {
	if err := json.Unmarshal(jsonData, c); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	c.ValidateAndApplyDefaults()
	return nil
}

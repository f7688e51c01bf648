package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"travel-matching-engine/matching"
)

type Config struct {
	Subscription    string
	PubsubTopic     string
	GoogleProjectID string
	CredentialsFile string

	MySQLDSN string
	RedisURL string

	MetricsPort int
	LogLevel    string

	MinAgents                  int
	MaxAgents                  int
	ResponseTimeoutHours       int
	PeakResponseTimeoutHours   int
	StarRatingThreshold        float64
	StarBookingMinimum         int
	EnableBenchFallback        bool
	PeakSeasonAllowSingleAgent bool
	MaxAttempts                int
	RetryCooldownSeconds       int
	StateRetentionHours        int
	CleanupIntervalMinutes     int

	WeightTier           float64
	WeightRating         float64
	WeightResponseTime   float64
	WeightSpecialization float64
	WeightRegion         float64
	WeightWorkload       float64
}

func Load() *Config {
	cfg := &Config{
		Subscription:    strings.TrimSpace(getEnv("REQUEST_EVENTS_SUBSCRIPTION", os.Getenv("MATCHER_PUBSUB_SUBSCRIPTION"))),
		PubsubTopic:     strings.TrimSpace(getEnv("MATCH_EVENTS_TOPIC", os.Getenv("MATCHER_PUBSUB_TOPIC"))),
		CredentialsFile: strings.TrimSpace(firstNonEmpty(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), os.Getenv("MATCHER_GSA_CREDENTIALS"))),

		MySQLDSN: strings.TrimSpace(getEnv("MATCHER_MYSQL_DSN", "")),
		RedisURL: strings.TrimSpace(getEnv("MATCHER_REDIS_URL", "")),

		MetricsPort: getEnvInt("MATCHER_METRICS_PORT", 8080),
		LogLevel:    strings.TrimSpace(getEnv("MATCHER_LOG_LEVEL", "info")),

		MinAgents:                  getEnvInt("MATCHER_MIN_AGENTS", 2),
		MaxAgents:                  getEnvInt("MATCHER_MAX_AGENTS", 3),
		ResponseTimeoutHours:       getEnvInt("MATCHER_RESPONSE_TIMEOUT_HOURS", 24),
		PeakResponseTimeoutHours:   getEnvInt("MATCHER_PEAK_RESPONSE_TIMEOUT_HOURS", 48),
		StarRatingThreshold:        getEnvFloat("MATCHER_STAR_RATING_THRESHOLD", 4.5),
		StarBookingMinimum:         getEnvInt("MATCHER_STAR_BOOKING_MINIMUM", 50),
		EnableBenchFallback:        getEnvBool("MATCHER_ENABLE_BENCH_FALLBACK", true),
		PeakSeasonAllowSingleAgent: getEnvBool("MATCHER_PEAK_SINGLE_AGENT", false),
		MaxAttempts:                getEnvInt("MATCHER_MAX_ATTEMPTS", 3),
		RetryCooldownSeconds:       getEnvInt("MATCHER_RETRY_COOLDOWN_SECONDS", 300),
		StateRetentionHours:        getEnvInt("MATCHER_STATE_RETENTION_HOURS", 24),
		CleanupIntervalMinutes:     getEnvInt("MATCHER_CLEANUP_INTERVAL_MINUTES", 60),

		WeightTier:           getEnvFloat("MATCHER_WEIGHT_TIER", 0.25),
		WeightRating:         getEnvFloat("MATCHER_WEIGHT_RATING", 0.20),
		WeightResponseTime:   getEnvFloat("MATCHER_WEIGHT_RESPONSE_TIME", 0.15),
		WeightSpecialization: getEnvFloat("MATCHER_WEIGHT_SPECIALIZATION", 0.20),
		WeightRegion:         getEnvFloat("MATCHER_WEIGHT_REGION", 0.10),
		WeightWorkload:       getEnvFloat("MATCHER_WEIGHT_WORKLOAD", 0.10),
	}

	cfg.GoogleProjectID = getGoogleProjectID(cfg.CredentialsFile, strings.TrimSpace(getEnv("MATCHER_PUBSUB_PROJECT_ID", "")))
	if cfg.GoogleProjectID == "" {
		log.Warn().Msg("Google project ID not resolved; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or MATCHER_PUBSUB_PROJECT_ID")
	}
	if cfg.Subscription == "" {
		log.Warn().Msg("Pub/Sub subscription not set; set REQUEST_EVENTS_SUBSCRIPTION or MATCHER_PUBSUB_SUBSCRIPTION")
	}
	if cfg.PubsubTopic == "" {
		log.Warn().Msg("Pub/Sub topic not set; set MATCH_EVENTS_TOPIC or MATCHER_PUBSUB_TOPIC")
	}
	if cfg.MySQLDSN == "" {
		log.Warn().Msg("MySQL DSN not set; set MATCHER_MYSQL_DSN")
	}
	return cfg
}

// Validate checks the matching parameters the way the engine will see them.
// Transport and storage settings are preflighted separately at startup.
func (c *Config) Validate() error {
	if err := c.MatchingConfig().Validate(); err != nil {
		return err
	}
	if err := c.ScoringWeights().Validate(); err != nil {
		return err
	}
	if c.StarRatingThreshold < 0 || c.StarRatingThreshold > 5 {
		return fmt.Errorf("star rating threshold must be within [0, 5], got %v", c.StarRatingThreshold)
	}
	if c.StarBookingMinimum < 0 {
		return fmt.Errorf("star booking minimum must not be negative, got %d", c.StarBookingMinimum)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics port out of range: %d", c.MetricsPort)
	}
	return nil
}

// MatchingConfig converts the flat environment surface to the engine's
// configuration.
func (c *Config) MatchingConfig() matching.Config {
	return matching.Config{
		MinAgents:                  c.MinAgents,
		MaxAgents:                  c.MaxAgents,
		EnableBenchFallback:        c.EnableBenchFallback,
		PeakSeasonAllowSingleAgent: c.PeakSeasonAllowSingleAgent,
		MaxAttempts:                c.MaxAttempts,
		RetryCooldown:              time.Duration(c.RetryCooldownSeconds) * time.Second,
		ResponseTimeout:            time.Duration(c.ResponseTimeoutHours) * time.Hour,
		PeakResponseTimeout:        time.Duration(c.PeakResponseTimeoutHours) * time.Hour,
		StateRetention:             time.Duration(c.StateRetentionHours) * time.Hour,
		CleanupInterval:            time.Duration(c.CleanupIntervalMinutes) * time.Minute,
	}
}

func (c *Config) ScoringWeights() matching.Weights {
	return matching.Weights{
		Tier:           c.WeightTier,
		Rating:         c.WeightRating,
		ResponseTime:   c.WeightResponseTime,
		Specialization: c.WeightSpecialization,
		Region:         c.WeightRegion,
		Workload:       c.WeightWorkload,
	}
}

func (c *Config) HTTPAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.MetricsPort))
}

// Redacted returns a view safe for logging
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"projectID":           c.GoogleProjectID,
		"requestSubscription": c.Subscription,
		"matchEventsTopic":    c.PubsubTopic,
		"mysqlConfigured":     c.MySQLDSN != "",
		"redisConfigured":     c.RedisURL != "",
		"metricsPort":         c.MetricsPort,
		"logLevel":            c.LogLevel,
		"credentialsProvided": c.CredentialsFile != "",
		"minAgents":           c.MinAgents,
		"maxAgents":           c.MaxAgents,
		"maxAttempts":         c.MaxAttempts,
		"benchFallback":       c.EnableBenchFallback,
		"peakSingleAgent":     c.PeakSeasonAllowSingleAgent,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		iv, err := strconv.Atoi(v)
		if err == nil {
			return iv
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid int in environment, using default")
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		fv, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return fv
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid float in environment, using default")
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		bv, err := strconv.ParseBool(v)
		if err == nil {
			return bv
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid bool in environment, using default")
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func projectIDFromCredentials(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	var x struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(b, &x); err != nil {
		return "", err
	}
	return x.ProjectID, nil
}

func getGoogleProjectID(credsFile string, explicit string) string {
	// 1) Prefer GOOGLE_APPLICATION_CREDENTIALS if set
	if p := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); p != "" {
		log.Info().Str("credsFile", p).Msg("GOOGLE_APPLICATION_CREDENTIALS is set; extracting project_id from credentials file")
		if pid, err := projectIDFromCredentials(p); err == nil && pid != "" {
			return strings.TrimSpace(pid)
		}
		log.Warn().Str("credsFile", p).Msg("project_id not found in credentials file or unreadable")
	}

	// 2) Explicit override from matcher env
	if explicit := strings.TrimSpace(explicit); explicit != "" {
		log.Info().Str("projectID", explicit).Msg("using MATCHER_PUBSUB_PROJECT_ID for Google project")
		return explicit
	}

	// 3) External k8s override
	if v := strings.TrimSpace(os.Getenv("GOOGLE_PROJECT_ID")); v != "" {
		log.Info().Str("projectID", v).Msg("using GOOGLE_PROJECT_ID from environment")
		return v
	}

	// 4) Common Google envs
	if v := firstNonEmpty(os.Getenv("GOOGLE_CLOUD_PROJECT"), os.Getenv("GCLOUD_PROJECT"), os.Getenv("GCP_PROJECT")); strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		log.Info().Str("projectID", v).Msg("using Google project from common environment variables")
		return v
	}

	// 5) Fallback to provided credentials file path (MATCHER_GSA_CREDENTIALS)
	if p := strings.TrimSpace(credsFile); p != "" {
		if pid, err := projectIDFromCredentials(p); err == nil && pid != "" {
			log.Info().Str("credsFile", p).Msg("using project_id from provided credentials file")
			return strings.TrimSpace(pid)
		}
	}
	return ""
}

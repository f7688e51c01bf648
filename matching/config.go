package matching

import (
	"fmt"
	"time"
)

// Config carries the matching parameters shared by the selection and
// orchestration engines. Values come from the environment and are validated
// once at startup.
type Config struct {
	MinAgents                  int
	MaxAgents                  int
	EnableBenchFallback        bool
	PeakSeasonAllowSingleAgent bool
	MaxAttempts                int
	RetryCooldown              time.Duration
	ResponseTimeout            time.Duration
	PeakResponseTimeout        time.Duration
	StateRetention             time.Duration
	CleanupInterval            time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinAgents:                  2,
		MaxAgents:                  3,
		EnableBenchFallback:        true,
		PeakSeasonAllowSingleAgent: false,
		MaxAttempts:                3,
		RetryCooldown:              5 * time.Minute,
		ResponseTimeout:            24 * time.Hour,
		PeakResponseTimeout:        48 * time.Hour,
		StateRetention:             24 * time.Hour,
		CleanupInterval:            time.Hour,
	}
}

// Validate rejects impossible parameter combinations.
func (c Config) Validate() error {
	if c.MinAgents < 1 {
		return fmt.Errorf("minAgents must be at least 1, got %d", c.MinAgents)
	}
	if c.MaxAgents < c.MinAgents {
		return fmt.Errorf("maxAgents (%d) must be at least minAgents (%d)", c.MaxAgents, c.MinAgents)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("maxAttempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryCooldown < 0 {
		return fmt.Errorf("retryCooldown must not be negative, got %v", c.RetryCooldown)
	}
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("responseTimeout must be positive, got %v", c.ResponseTimeout)
	}
	if c.PeakResponseTimeout <= 0 {
		return fmt.Errorf("peakResponseTimeout must be positive, got %v", c.PeakResponseTimeout)
	}
	if c.StateRetention <= 0 {
		return fmt.Errorf("stateRetention must be positive, got %v", c.StateRetention)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanupInterval must be positive, got %v", c.CleanupInterval)
	}
	return nil
}

// EffectiveMinAgents is the minimum match count required for a given
// request. Peak-season single-agent mode relaxes the floor to 1 for that
// selection only; the configured value is never changed.
func (c Config) EffectiveMinAgents(isPeakSeason bool) int {
	if isPeakSeason && c.PeakSeasonAllowSingleAgent {
		return 1
	}
	return c.MinAgents
}

// TimeoutFor returns the per-match response expiry window, extended in peak
// season.
func (c Config) TimeoutFor(isPeakSeason bool) time.Duration {
	if isPeakSeason {
		return c.PeakResponseTimeout
	}
	return c.ResponseTimeout
}

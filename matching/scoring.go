package matching

import (
	"fmt"
	"math"
	"time"
)

// Sub-score normalization anchors. Response times at or beyond the ceiling
// score zero on that axis; workloads at or beyond the ceiling likewise.
const (
	responseTimeCeiling = 48 * time.Hour
	workloadCeiling     = 10

	benchTierScore          = 0.4
	benchStarEquivalentTier = 0.7

	// Wildcard markers an agent record may carry instead of an explicit
	// trip type or region.
	generalistSpecialization = "GENERAL"
	globalRegion             = "GLOBAL"

	wildcardCredit = 0.5
)

// Weights is the scoring configuration. The six weights must sum to 1.0.
type Weights struct {
	Tier           float64 `json:"tier"`
	Rating         float64 `json:"rating"`
	ResponseTime   float64 `json:"responseTime"`
	Specialization float64 `json:"specialization"`
	Region         float64 `json:"region"`
	Workload       float64 `json:"workload"`
}

// Sum returns the total of all weight components.
func (w Weights) Sum() float64 {
	return w.Tier + w.Rating + w.ResponseTime + w.Specialization + w.Region + w.Workload
}

// Validate rejects weight sets that do not sum to 1.0 or contain negative
// components. Called fail-fast at startup.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"tier":           w.Tier,
		"rating":         w.Rating,
		"responseTime":   w.ResponseTime,
		"specialization": w.Specialization,
		"region":         w.Region,
		"workload":       w.Workload,
	} {
		if v < 0 {
			return fmt.Errorf("scoring weight %s is negative: %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// DefaultWeights is the production weighting used when no override is
// configured.
func DefaultWeights() Weights {
	return Weights{
		Tier:           0.25,
		Rating:         0.20,
		ResponseTime:   0.15,
		Specialization: 0.20,
		Region:         0.10,
		Workload:       0.10,
	}
}

// Breakdown carries the normalized sub-scores behind a total, so operators
// can see why an agent ranked where it did.
type Breakdown struct {
	Tier           float64 `json:"tier"`
	Rating         float64 `json:"rating"`
	ResponseTime   float64 `json:"responseTime"`
	Specialization float64 `json:"specialization"`
	Region         float64 `json:"region"`
	Workload       float64 `json:"workload"`
	Total          float64 `json:"total"`
}

// Rationale renders the breakdown as a compact single-line summary for logs
// and audit detail.
func (b Breakdown) Rationale() string {
	return fmt.Sprintf("tier=%.2f rating=%.2f response=%.2f specialization=%.2f region=%.2f workload=%.2f total=%.4f",
		b.Tier, b.Rating, b.ResponseTime, b.Specialization, b.Region, b.Workload, b.Total)
}

// Scorer computes a weighted suitability score in [0,1] for a (request,
// agent) pair. Pure and deterministic: no I/O, no clock, no randomness.
type Scorer struct {
	weights             Weights
	starRatingThreshold float64
	starBookingMinimum  int
}

// NewScorer validates the weight set and returns a scorer. A misconfigured
// weight set is a startup error, never a runtime one.
func NewScorer(w Weights, starRatingThreshold float64, starBookingMinimum int) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if starRatingThreshold < 0 || starRatingThreshold > 5 {
		return nil, fmt.Errorf("star rating threshold out of range [0,5]: %v", starRatingThreshold)
	}
	if starBookingMinimum < 0 {
		return nil, fmt.Errorf("star booking minimum is negative: %d", starBookingMinimum)
	}
	return &Scorer{
		weights:             w,
		starRatingThreshold: starRatingThreshold,
		starBookingMinimum:  starBookingMinimum,
	}, nil
}

// Score returns the weighted suitability of agent for req. It never fails on
// valid typed input.
func (s *Scorer) Score(req TravelRequest, agent Agent) Breakdown {
	b := Breakdown{
		Tier:           s.tierScore(agent),
		Rating:         clamp01(agent.Rating / 5.0),
		ResponseTime:   s.responseTimeScore(agent.AvgResponseTime),
		Specialization: s.overlapScore(agent.ServesTripType(req.TripType), agent.ServesTripType(generalistSpecialization)),
		Region:         s.overlapScore(agent.ServesRegion(req.Region), agent.ServesRegion(globalRegion)),
		Workload:       s.workloadScore(agent.CurrentWorkload),
	}
	b.Total = s.weights.Tier*b.Tier +
		s.weights.Rating*b.Rating +
		s.weights.ResponseTime*b.ResponseTime +
		s.weights.Specialization*b.Specialization +
		s.weights.Region*b.Region +
		s.weights.Workload*b.Workload
	return b
}

// tierScore favors the STAR tier. A bench agent whose track record meets the
// star thresholds (rating and booking volume) earns partial star credit
// without changing its selection tier.
func (s *Scorer) tierScore(agent Agent) float64 {
	if agent.Tier == TierStar {
		return 1.0
	}
	if agent.Rating >= s.starRatingThreshold && agent.TotalBookings >= s.starBookingMinimum {
		return benchStarEquivalentTier
	}
	return benchTierScore
}

func (s *Scorer) responseTimeScore(avg time.Duration) float64 {
	if avg <= 0 {
		return 1.0
	}
	return clamp01(1.0 - float64(avg)/float64(responseTimeCeiling))
}

func (s *Scorer) workloadScore(workload int) float64 {
	if workload <= 0 {
		return 1.0
	}
	return clamp01(1.0 - float64(workload)/float64(workloadCeiling))
}

func (s *Scorer) overlapScore(exact, wildcard bool) float64 {
	switch {
	case exact:
		return 1.0
	case wildcard:
		return wildcardCredit
	default:
		return 0.0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

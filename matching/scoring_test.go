package matching

import (
	"math"
	"testing"
	"time"
)

func mustScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultWeights(), 4.5, 50)
	if err != nil {
		t.Fatalf("NewScorer() error: %#v", err)
	}
	return s
}

func testRequest() TravelRequest {
	return TravelRequest{
		ID:            "req-1",
		Destination:   "Kyoto",
		Region:        "ASIA",
		TripType:      "CULTURAL",
		StartDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		TravelerCount: 2,
		Budget:        "PREMIUM",
	}
}

func testAgent(id string, tier Tier, rating float64) Agent {
	return Agent{
		ID:              id,
		Tier:            tier,
		Rating:          rating,
		AvgResponseTime: 2 * time.Hour,
		Specializations: []string{"CULTURAL"},
		Regions:         []string{"ASIA"},
		CurrentWorkload: 2,
		TotalBookings:   80,
		Available:       true,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewScorer(t *testing.T) {
	badWeights := DefaultWeights()
	badWeights.Tier = 0.5
	negWeights := DefaultWeights()
	negWeights.Rating = -0.2
	negWeights.Tier = 0.65

	tests := []struct {
		name      string
		weights   Weights
		threshold float64
		bookings  int
		wantErr   bool
	}{
		{name: "default weights", weights: DefaultWeights(), threshold: 4.5, bookings: 50, wantErr: false},
		{name: "weights do not sum to one", weights: badWeights, threshold: 4.5, bookings: 50, wantErr: true},
		{name: "negative weight", weights: negWeights, threshold: 4.5, bookings: 50, wantErr: true},
		{name: "threshold above five", weights: DefaultWeights(), threshold: 5.5, bookings: 50, wantErr: true},
		{name: "negative threshold", weights: DefaultWeights(), threshold: -1, bookings: 50, wantErr: true},
		{name: "negative booking minimum", weights: DefaultWeights(), threshold: 4.5, bookings: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScorer(tt.weights, tt.threshold, tt.bookings)
			gotErr := (err != nil)
			if gotErr != tt.wantErr {
				t.Errorf("NewScorer() error mismatch\ngotErr: %#v\nwantErr: %#v\nerr: %#v", gotErr, tt.wantErr, err)
			}
		})
	}
}

func TestScorer_Score_Deterministic(t *testing.T) {
	s := mustScorer(t)
	req := testRequest()
	agent := testAgent("a1", TierStar, 4.2)

	first := s.Score(req, agent)
	for i := 0; i < 5; i++ {
		if got := s.Score(req, agent); got != first {
			t.Fatalf("Score() not deterministic\nfirst: %#v\n  got: %#v", first, got)
		}
	}
}

func TestScorer_Score_TierCredit(t *testing.T) {
	s := mustScorer(t)
	req := testRequest()

	tests := []struct {
		name  string
		agent Agent
		want  float64
	}{
		{name: "star tier", agent: testAgent("a1", TierStar, 3.0), want: 1.0},
		{name: "plain bench", agent: testAgent("a2", TierBench, 3.0), want: 0.4},
		{name: "bench meeting star thresholds", agent: testAgent("a3", TierBench, 4.8), want: 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := s.Score(req, tt.agent)
			if !almostEqual(b.Tier, tt.want) {
				t.Errorf("tier sub-score = %v, want %v", b.Tier, tt.want)
			}
		})
	}
}

func TestScorer_Score_BenchStarEquivalentNeedsBothThresholds(t *testing.T) {
	s := mustScorer(t)
	req := testRequest()

	lowBookings := testAgent("a1", TierBench, 4.8)
	lowBookings.TotalBookings = 10
	if b := s.Score(req, lowBookings); !almostEqual(b.Tier, 0.4) {
		t.Errorf("bench with high rating but low bookings tier = %v, want 0.4", b.Tier)
	}

	lowRating := testAgent("a2", TierBench, 4.0)
	lowRating.TotalBookings = 200
	if b := s.Score(req, lowRating); !almostEqual(b.Tier, 0.4) {
		t.Errorf("bench with high bookings but low rating tier = %v, want 0.4", b.Tier)
	}
}

func TestScorer_Score_ResponseTime(t *testing.T) {
	s := mustScorer(t)
	req := testRequest()

	tests := []struct {
		name string
		avg  time.Duration
		want float64
	}{
		{name: "instant", avg: 0, want: 1.0},
		{name: "half the ceiling", avg: 24 * time.Hour, want: 0.5},
		{name: "at the ceiling", avg: 48 * time.Hour, want: 0.0},
		{name: "beyond the ceiling", avg: 96 * time.Hour, want: 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := testAgent("a1", TierStar, 4.0)
			agent.AvgResponseTime = tt.avg
			b := s.Score(req, agent)
			if !almostEqual(b.ResponseTime, tt.want) {
				t.Errorf("response-time sub-score = %v, want %v", b.ResponseTime, tt.want)
			}
		})
	}
}

func TestScorer_Score_Workload(t *testing.T) {
	s := mustScorer(t)
	req := testRequest()

	tests := []struct {
		name     string
		workload int
		want     float64
	}{
		{name: "idle", workload: 0, want: 1.0},
		{name: "half loaded", workload: 5, want: 0.5},
		{name: "at the ceiling", workload: 10, want: 0.0},
		{name: "beyond the ceiling", workload: 15, want: 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := testAgent("a1", TierStar, 4.0)
			agent.CurrentWorkload = tt.workload
			b := s.Score(req, agent)
			if !almostEqual(b.Workload, tt.want) {
				t.Errorf("workload sub-score = %v, want %v", b.Workload, tt.want)
			}
		})
	}
}

func TestScorer_Score_SpecializationAndRegion(t *testing.T) {
	s := mustScorer(t)
	req := testRequest()

	tests := []struct {
		name            string
		specializations []string
		regions         []string
		wantSpec        float64
		wantRegion      float64
	}{
		{name: "exact overlap", specializations: []string{"CULTURAL"}, regions: []string{"ASIA"}, wantSpec: 1.0, wantRegion: 1.0},
		{name: "case-insensitive overlap", specializations: []string{"cultural"}, regions: []string{"asia"}, wantSpec: 1.0, wantRegion: 1.0},
		{name: "wildcard credit", specializations: []string{"GENERAL"}, regions: []string{"GLOBAL"}, wantSpec: 0.5, wantRegion: 0.5},
		{name: "no overlap", specializations: []string{"SAFARI"}, regions: []string{"AFRICA"}, wantSpec: 0.0, wantRegion: 0.0},
		{name: "exact beats wildcard", specializations: []string{"GENERAL", "CULTURAL"}, regions: []string{"GLOBAL", "ASIA"}, wantSpec: 1.0, wantRegion: 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := testAgent("a1", TierStar, 4.0)
			agent.Specializations = tt.specializations
			agent.Regions = tt.regions
			b := s.Score(req, agent)
			if !almostEqual(b.Specialization, tt.wantSpec) {
				t.Errorf("specialization sub-score = %v, want %v", b.Specialization, tt.wantSpec)
			}
			if !almostEqual(b.Region, tt.wantRegion) {
				t.Errorf("region sub-score = %v, want %v", b.Region, tt.wantRegion)
			}
		})
	}
}

func TestScorer_Score_RatingClamped(t *testing.T) {
	s := mustScorer(t)
	req := testRequest()

	agent := testAgent("a1", TierStar, 7.5)
	if b := s.Score(req, agent); !almostEqual(b.Rating, 1.0) {
		t.Errorf("rating sub-score for out-of-range rating = %v, want 1.0", b.Rating)
	}
}

func TestScorer_Score_WeightedTotal(t *testing.T) {
	s := mustScorer(t)
	req := testRequest()

	agent := testAgent("a1", TierStar, 4.0)
	agent.AvgResponseTime = 24 * time.Hour
	agent.CurrentWorkload = 5

	// tier 1.0, rating 0.8, response 0.5, specialization 1.0, region 1.0,
	// workload 0.5 under the default weights.
	want := 0.25*1.0 + 0.20*0.8 + 0.15*0.5 + 0.20*1.0 + 0.10*1.0 + 0.10*0.5
	b := s.Score(req, agent)
	if !almostEqual(b.Total, want) {
		t.Errorf("total = %v, want %v (breakdown: %s)", b.Total, want, b.Rationale())
	}
}

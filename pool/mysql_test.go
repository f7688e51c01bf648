package pool

import (
	"context"
	"reflect"
	"testing"
	"time"

	"travel-matching-engine/matching"
)

func TestAgentRecord_Agent(t *testing.T) {
	rec := AgentRecord{
		ID:                 "agent-7",
		Tier:               " star ",
		Rating:             4.7,
		AvgResponseMinutes: 90,
		Specializations:    "ADVENTURE, LUXURY , ",
		Regions:            "EUROPE,ASIA",
		CurrentWorkload:    3,
		TotalBookings:      120,
		Available:          true,
	}

	got := rec.Agent()
	want := matching.Agent{
		ID:              "agent-7",
		Tier:            matching.TierStar,
		Rating:          4.7,
		AvgResponseTime: 90 * time.Minute,
		Specializations: []string{"ADVENTURE", "LUXURY"},
		Regions:         []string{"EUROPE", "ASIA"},
		CurrentWorkload: 3,
		TotalBookings:   120,
		Available:       true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Agent() = %#v, want %#v", got, want)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "whitespace only", in: "   ", want: nil},
		{name: "single", in: "EUROPE", want: []string{"EUROPE"}},
		{name: "trims and drops blanks", in: " EUROPE ,, ASIA ,", want: []string{"EUROPE", "ASIA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitList(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStaticProvider_SnapshotIsolation(t *testing.T) {
	agents := []matching.Agent{
		{ID: "a1", Tier: matching.TierStar, Regions: []string{"EUROPE"}, Available: true},
		{ID: "a2", Tier: matching.TierBench, Regions: []string{"ASIA"}, Available: true},
	}
	p := NewStaticProvider(agents)

	snap, err := p.Snapshot(context.Background(), matching.TravelRequest{ID: "req-1"})
	if err != nil {
		t.Fatalf("Snapshot() error = %#v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("Snapshot() returned %d agents, want 2", len(snap))
	}

	// Mutating a returned snapshot must not leak back into the provider.
	snap[0].Regions[0] = "tampered"
	snap[1].Available = false

	again, err := p.Snapshot(context.Background(), matching.TravelRequest{ID: "req-1"})
	if err != nil {
		t.Fatalf("Snapshot() error = %#v", err)
	}
	if again[0].Regions[0] != "EUROPE" || !again[1].Available {
		t.Errorf("snapshot shares memory with the provider: %#v", again)
	}
}

package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestWrap(t *testing.T) {
	evt := &AgentsMatched{
		RequestID:       "req-1",
		StarAgentsCount: 2,
		Attempt:         1,
		Matches: []Match{
			{MatchID: "m1", RequestID: "req-1", AgentID: "a1", Score: 0.91, ExpiresAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)},
		},
	}

	env, err := Wrap(evt)
	if err != nil {
		t.Fatalf("Wrap() error = %#v", err)
	}
	if env.EnvelopeVersion != EnvelopeVersion {
		t.Errorf("envelope version = %q, want %q", env.EnvelopeVersion, EnvelopeVersion)
	}
	if env.Type != TypeAgentsMatched {
		t.Errorf("envelope type = %q, want %q", env.Type, TypeAgentsMatched)
	}
	if env.OccurredAt.IsZero() {
		t.Error("envelope missing its occurredAt stamp")
	}

	var got AgentsMatched
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("payload unmarshal error = %#v", err)
	}
	if got.RequestID != "req-1" || got.StarAgentsCount != 2 || len(got.Matches) != 1 {
		t.Errorf("payload round trip = %#v", got)
	}
	if got.Matches[0].Score != 0.91 {
		t.Errorf("match score = %v, want 0.91", got.Matches[0].Score)
	}
}

func TestEnvelope_WireRoundTrip(t *testing.T) {
	env, err := Wrap(&MatchingFailed{RequestID: "req-9", Reason: "no eligible candidates in pool", AttemptsMade: 3})
	if err != nil {
		t.Fatalf("Wrap() error = %#v", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("envelope marshal error = %#v", err)
	}

	var back Envelope
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("envelope unmarshal error = %#v", err)
	}
	if back.Type != TypeMatchingFailed || back.EnvelopeVersion != EnvelopeVersion {
		t.Errorf("decoded envelope = %#v", back)
	}
	var payload MatchingFailed
	if err := json.Unmarshal(back.Payload, &payload); err != nil {
		t.Fatalf("payload unmarshal error = %#v", err)
	}
	if payload.AttemptsMade != 3 {
		t.Errorf("attemptsMade = %d, want 3", payload.AttemptsMade)
	}
}

func TestEvent_Keys(t *testing.T) {
	tests := []struct {
		name string
		evt  Event
		typ  Type
		key  string
	}{
		{"matched", &AgentsMatched{RequestID: "r1"}, TypeAgentsMatched, "r1"},
		{"declined", &AgentDeclined{Decline: Decline{RequestID: "r2"}}, TypeAgentDeclined, "r2"},
		{"failed", &MatchingFailed{RequestID: "r3"}, TypeMatchingFailed, "r3"},
		{"status", &MatchingStatusChanged{RequestID: "r4"}, TypeMatchingStatusChanged, "r4"},
		{"rematch", &RematchInitiated{RequestID: "r5"}, TypeRematchInitiated, "r5"},
		{"override", &AdminOverrideApplied{RequestID: "r6"}, TypeAdminOverrideApplied, "r6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.evt.EventType() != tt.typ {
				t.Errorf("EventType() = %q, want %q", tt.evt.EventType(), tt.typ)
			}
			if tt.evt.Key() != tt.key {
				t.Errorf("Key() = %q, want %q", tt.evt.Key(), tt.key)
			}
		})
	}
}

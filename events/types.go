package events

import (
	"context"
	"encoding/json"
	"time"
)

// EnvelopeVersion is stamped on every message so consumers can reject
// payloads from a future incompatible schema.
const EnvelopeVersion = "1.0"

type Type string

// Inbound event types consumed from the request-events subscription.
const (
	TypeRequestCreated         Type = "REQUEST_CREATED"
	TypeAgentResponded         Type = "AGENT_RESPONDED_TO_MATCH"
	TypeAdminOverrideRequested Type = "ADMIN_OVERRIDE_REQUESTED"
	TypeMatchingTimeoutExpired Type = "MATCHING_TIMEOUT_EXPIRED"
)

// Outbound event types published to the match-events topic.
const (
	TypeAgentsMatched         Type = "AGENTS_MATCHED"
	TypeAgentDeclined         Type = "AGENT_DECLINED"
	TypeMatchingFailed        Type = "MATCHING_FAILED"
	TypeMatchingStatusChanged Type = "MATCHING_STATUS_CHANGED"
	TypeRematchInitiated      Type = "REMATCH_INITIATED"
	TypeAdminOverrideApplied  Type = "ADMIN_OVERRIDE_APPLIED"
)

// Envelope is the on-the-wire frame for every message on the bus.
type Envelope struct {
	EnvelopeVersion string          `json:"envelopeVersion"`
	Type            Type            `json:"type"`
	OccurredAt      time.Time       `json:"occurredAt"`
	Payload         json.RawMessage `json:"payload"`
}

// Event is implemented by every outbound payload. Key returns the request
// identifier the event belongs to; it doubles as the message attribute used
// by downstream consumers to route per-request streams.
type Event interface {
	EventType() Type
	Key() string
}

// Wrap frames an outbound event for publication.
func Wrap(evt Event) (*Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EnvelopeVersion: EnvelopeVersion,
		Type:            evt.EventType(),
		OccurredAt:      time.Now().UTC(),
		Payload:         payload,
	}, nil
}

// RequestCreated is the inbound trigger for a new matching sequence.
type RequestCreated struct {
	RequestID     string    `json:"requestId"`
	Destination   string    `json:"destination"`
	Region        string    `json:"region"`
	TripType      string    `json:"tripType"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	TravelerCount int       `json:"travelerCount"`
	Budget        string    `json:"budget"`
	IsPeakSeason  bool      `json:"isPeakSeason"`
}

// AgentResponded carries an agent's answer to a proposed match. Acceptance is
// handled by the downstream booking flow; only declines concern this engine.
type AgentResponded struct {
	MatchID   string `json:"matchId"`
	AgentID   string `json:"agentId"`
	RequestID string `json:"requestId"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
}

// AdminOverrideRequested is the inbound form of an administrative override.
// The action-specific fields are validated by the matching package before any
// state is touched.
type AdminOverrideRequested struct {
	RequestID       string   `json:"requestId"`
	Action          string   `json:"action"`
	AdminUserID     string   `json:"adminUserId"`
	Reason          string   `json:"reason"`
	TargetAgentIDs  []string `json:"targetAgentIds,omitempty"`
	NewTimeoutHours int      `json:"newTimeoutHours,omitempty"`
}

// MatchingTimeoutExpired reports that a match expired without a response.
// The engine treats it as an implicit decline with reason TIMEOUT.
type MatchingTimeoutExpired struct {
	RequestID string `json:"requestId"`
	MatchID   string `json:"matchId"`
}

// Match is the wire form of a proposed (request, agent) pairing.
type Match struct {
	MatchID   string    `json:"matchId"`
	RequestID string    `json:"requestId"`
	AgentID   string    `json:"agentId"`
	Score     float64   `json:"score"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Decline is the wire form of a recorded agent decline.
type Decline struct {
	MatchID    string    `json:"matchId"`
	AgentID    string    `json:"agentId"`
	RequestID  string    `json:"requestId"`
	Reason     string    `json:"reason"`
	DeclinedAt time.Time `json:"declinedAt"`
}

type AgentsMatched struct {
	RequestID                string    `json:"requestId"`
	Matches                  []Match   `json:"matches"`
	StarAgentsCount          int       `json:"starAgentsCount"`
	BenchAgentsCount         int       `json:"benchAgentsCount"`
	TotalCandidatesEvaluated int       `json:"totalCandidatesEvaluated"`
	MatchingDurationMs       int64     `json:"matchingDurationMs"`
	IsPeakSeason             bool      `json:"isPeakSeason"`
	Attempt                  int       `json:"attempt"`
	ExpiresAt                time.Time `json:"expiresAt"`
}

func (e *AgentsMatched) EventType() Type { return TypeAgentsMatched }
func (e *AgentsMatched) Key() string     { return e.RequestID }

type AgentDeclined struct {
	Decline          Decline `json:"decline"`
	RemainingMatches int     `json:"remainingMatches"`
	RequiresRematch  bool    `json:"requiresRematch"`
}

func (e *AgentDeclined) EventType() Type { return TypeAgentDeclined }
func (e *AgentDeclined) Key() string     { return e.Decline.RequestID }

type MatchingFailed struct {
	RequestID            string `json:"requestId"`
	Reason               string `json:"reason"`
	AttemptsMade         int    `json:"attemptsMade"`
	TotalAgentsEvaluated int    `json:"totalAgentsEvaluated"`
	IsPeakSeason         bool   `json:"isPeakSeason"`
}

func (e *MatchingFailed) EventType() Type { return TypeMatchingFailed }
func (e *MatchingFailed) Key() string     { return e.RequestID }

type MatchingStatusChanged struct {
	RequestID      string `json:"requestId"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
	Reason         string `json:"reason"`
}

func (e *MatchingStatusChanged) EventType() Type { return TypeMatchingStatusChanged }
func (e *MatchingStatusChanged) Key() string     { return e.RequestID }

type RematchInitiated struct {
	RequestID        string   `json:"requestId"`
	Attempt          int      `json:"attempt"`
	PreviousMatchIDs []string `json:"previousMatchIds"`
	Reason           string   `json:"reason"`
}

func (e *RematchInitiated) EventType() Type { return TypeRematchInitiated }
func (e *RematchInitiated) Key() string     { return e.RequestID }

type AdminOverrideApplied struct {
	RequestID        string   `json:"requestId"`
	AdminUserID      string   `json:"adminUserId"`
	Action           string   `json:"action"`
	Reason           string   `json:"reason"`
	AffectedAgentIDs []string `json:"affectedAgentIds"`
	Result           string   `json:"result"`
}

func (e *AdminOverrideApplied) EventType() Type { return TypeAdminOverrideApplied }
func (e *AdminOverrideApplied) Key() string     { return e.RequestID }

// Publisher delivers outbound events to the bus. Delivery is at-least-once
// and ordering across events is not guaranteed; callers must treat a publish
// as fire-and-forget and never block a state transition on it.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Handler receives decoded inbound events. Implementations return an error
// only when redelivery could succeed; permanently invalid input must be
// swallowed (logged) so the subscriber can ack it away.
type Handler interface {
	HandleRequestCreated(ctx context.Context, evt *RequestCreated) error
	HandleAgentResponded(ctx context.Context, evt *AgentResponded) error
	HandleAdminOverride(ctx context.Context, evt *AdminOverrideRequested) error
	HandleMatchingTimeout(ctx context.Context, evt *MatchingTimeoutExpired) error
}

// Subscriber runs the inbound receive loop until ctx is cancelled.
type Subscriber interface {
	Start(ctx context.Context, h Handler) error
}

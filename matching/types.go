package matching

import (
	"sort"
	"strings"
	"time"
)

// Tier partitions the agent pool for selection priority.
type Tier string

const (
	TierStar  Tier = "STAR"
	TierBench Tier = "BENCH"
)

// TravelRequest is the engine's read-only view of a travel-planning request.
// Mirrors events.RequestCreated but kept decoupled to avoid import loops.
// Immutable for the lifetime of a matching attempt.
type TravelRequest struct {
	ID            string    `json:"id"`
	Destination   string    `json:"destination"`
	Region        string    `json:"region"`
	TripType      string    `json:"tripType"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	TravelerCount int       `json:"travelerCount"`
	Budget        string    `json:"budget"`
	IsPeakSeason  bool      `json:"isPeakSeason"`
}

// Agent is a point-in-time snapshot of a candidate agent. The engine never
// mutates it; staleness is tolerated because every matching attempt takes a
// fresh snapshot from the pool provider.
type Agent struct {
	ID              string        `json:"id"`
	Tier            Tier          `json:"tier"`
	Rating          float64       `json:"rating"`
	AvgResponseTime time.Duration `json:"avgResponseTime"`
	Specializations []string      `json:"specializations"`
	Regions         []string      `json:"regions"`
	CurrentWorkload int           `json:"currentWorkload"`
	TotalBookings   int           `json:"totalBookings"`
	Available       bool          `json:"available"`
}

// ServesTripType reports whether the agent lists the given trip type among
// its specializations. Comparison is case-insensitive.
func (a Agent) ServesTripType(tripType string) bool {
	for _, s := range a.Specializations {
		if strings.EqualFold(s, tripType) {
			return true
		}
	}
	return false
}

// ServesRegion reports whether the agent lists the given region among its
// serviced regions. Comparison is case-insensitive.
func (a Agent) ServesRegion(region string) bool {
	for _, r := range a.Regions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

// Match is a proposed (request, agent) pairing awaiting the agent's
// response. Immutable once created: it is declined, expires, or is accepted
// by a downstream flow this engine never sees.
type Match struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	AgentID   string    `json:"agentId"`
	Score     float64   `json:"score"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DeclineReason classifies why an agent turned a match down.
type DeclineReason string

const (
	DeclineUnavailable DeclineReason = "UNAVAILABLE"
	DeclineWorkload    DeclineReason = "WORKLOAD"
	DeclineTimeout     DeclineReason = "TIMEOUT"
	DeclineUnspecified DeclineReason = "UNSPECIFIED"
)

// NormalizeDeclineReason maps a free-form inbound reason onto the canonical
// upper-case form, defaulting to UNSPECIFIED.
func NormalizeDeclineReason(s string) DeclineReason {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DeclineUnspecified
	}
	return DeclineReason(s)
}

// AgentDecline is an append-only record of one decline.
type AgentDecline struct {
	MatchID    string        `json:"matchId"`
	AgentID    string        `json:"agentId"`
	RequestID  string        `json:"requestId"`
	Reason     DeclineReason `json:"reason"`
	DeclinedAt time.Time     `json:"declinedAt"`
}

// Status is the matching lifecycle state of one request.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusInProgress       Status = "MATCHING_IN_PROGRESS"
	StatusAgentsMatched    Status = "AGENTS_MATCHED"
	StatusAwaitingResponse Status = "AWAITING_AGENT_RESPONSE"
	StatusFailed           Status = "MATCHING_FAILED"
	StatusCancelled        Status = "CANCELLED"
)

// Terminal reports whether no further automatic transition can occur. Only
// an explicit FORCE_REMATCH override resurrects a terminal request.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusCancelled
}

// Result is the immutable outcome of one selection attempt sequence.
type Result struct {
	RequestID                string        `json:"requestId"`
	Status                   Status        `json:"status"`
	Matches                  []Match       `json:"matches"`
	StarAgentsCount          int           `json:"starAgentsCount"`
	BenchAgentsCount         int           `json:"benchAgentsCount"`
	TotalCandidatesEvaluated int           `json:"totalCandidatesEvaluated"`
	MatchingDuration         time.Duration `json:"matchingDuration"`
	IsPeakSeason             bool          `json:"isPeakSeason"`
	Attempt                  int           `json:"attempt"`
	Reason                   string        `json:"reason,omitempty"`
	CompletedAt              time.Time     `json:"completedAt"`
}

// State is the per-request working record, owned exclusively by the
// orchestration engine and serialized through its per-request lock.
type State struct {
	RequestID        string          `json:"requestId"`
	Request          TravelRequest   `json:"request"`
	Status           Status          `json:"status"`
	CurrentAttempt   int             `json:"currentAttempt"`
	ExcludedAgentIDs map[string]bool `json:"excludedAgentIds"`
	ActiveMatches    []Match         `json:"activeMatches"`
	Declines         []AgentDecline  `json:"declines"`
	LastResult       *Result         `json:"lastResult,omitempty"`
	TierRelaxed      bool            `json:"tierRelaxed"`
	CancelReason     string          `json:"cancelReason,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// NewState initializes the working record for a request at PENDING.
func NewState(req TravelRequest, now time.Time) *State {
	return &State{
		RequestID:        req.ID,
		Request:          req,
		Status:           StatusPending,
		ExcludedAgentIDs: make(map[string]bool),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ExcludeAgent adds an agent to the exclusion set. The set only ever grows
// within one request's lifecycle.
func (s *State) ExcludeAgent(agentID string) {
	if s.ExcludedAgentIDs == nil {
		s.ExcludedAgentIDs = make(map[string]bool)
	}
	s.ExcludedAgentIDs[agentID] = true
}

// ExcludedList returns the exclusion set in deterministic order.
func (s *State) ExcludedList() []string {
	ids := make([]string, 0, len(s.ExcludedAgentIDs))
	for id := range s.ExcludedAgentIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveMatchIDs returns the identifiers of the matches still awaiting an
// agent response.
func (s *State) ActiveMatchIDs() []string {
	ids := make([]string, 0, len(s.ActiveMatches))
	for _, m := range s.ActiveMatches {
		ids = append(ids, m.ID)
	}
	return ids
}

// ActiveAgentIDs returns the agents behind the active matches.
func (s *State) ActiveAgentIDs() []string {
	ids := make([]string, 0, len(s.ActiveMatches))
	for _, m := range s.ActiveMatches {
		ids = append(ids, m.AgentID)
	}
	return ids
}

// findActiveMatch returns the index of the active match with the given id,
// or -1 when the id is unknown or already removed.
func (s *State) findActiveMatch(matchID string) int {
	for i, m := range s.ActiveMatches {
		if m.ID == matchID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so stores can hand out snapshots without
// exposing engine-owned state to external mutation.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.ExcludedAgentIDs = make(map[string]bool, len(s.ExcludedAgentIDs))
	for id, v := range s.ExcludedAgentIDs {
		c.ExcludedAgentIDs[id] = v
	}
	c.ActiveMatches = append([]Match(nil), s.ActiveMatches...)
	c.Declines = append([]AgentDecline(nil), s.Declines...)
	if s.LastResult != nil {
		r := *s.LastResult
		r.Matches = append([]Match(nil), s.LastResult.Matches...)
		c.LastResult = &r
	}
	return &c
}

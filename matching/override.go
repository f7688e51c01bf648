package matching

import (
	"strings"
	"time"
)

// OverrideAction names an administrative override operation.
type OverrideAction string

const (
	ActionForceMatch              OverrideAction = "FORCE_MATCH"
	ActionForceRematch            OverrideAction = "FORCE_REMATCH"
	ActionCancelMatching          OverrideAction = "CANCEL_MATCHING"
	ActionExtendTimeout           OverrideAction = "EXTEND_TIMEOUT"
	ActionOverrideTierRequirement OverrideAction = "OVERRIDE_TIER_REQUIREMENT"
)

// minOverrideReasonLen is the shortest acceptable override justification.
// Every override is reason-audited; "fixed it" is not a justification.
const minOverrideReasonLen = 10

// Action is the tagged-variant payload of an override: one concrete type per
// administrative action, each carrying exactly the fields that action needs.
// The variant validates its own required fields, so a malformed override is
// rejected before the engine touches any state.
type Action interface {
	Kind() OverrideAction
	validate() error
}

// ForceMatch assigns the named agents directly, bypassing scoring entirely.
type ForceMatch struct {
	TargetAgentIDs []string
}

func (a ForceMatch) Kind() OverrideAction { return ActionForceMatch }

func (a ForceMatch) validate() error {
	if len(a.TargetAgentIDs) == 0 {
		return newValidationError("FORCE_MATCH requires at least one target agent id")
	}
	for _, id := range a.TargetAgentIDs {
		if strings.TrimSpace(id) == "" {
			return newValidationError("FORCE_MATCH target agent ids must not be blank")
		}
	}
	return nil
}

// ForceRematch resets the exclusion set and starts a fresh attempt sequence,
// including for requests that already failed or were cancelled.
type ForceRematch struct{}

func (ForceRematch) Kind() OverrideAction { return ActionForceRematch }
func (ForceRematch) validate() error      { return nil }

// CancelMatching terminates the request's matching lifecycle.
type CancelMatching struct{}

func (CancelMatching) Kind() OverrideAction { return ActionCancelMatching }
func (CancelMatching) validate() error      { return nil }

// ExtendTimeout re-arms the response expiry of the active matches. The
// actual downstream timers belong to an external scheduler; the engine
// records the new expiry as the intent.
type ExtendTimeout struct {
	NewTimeout time.Duration
}

func (a ExtendTimeout) Kind() OverrideAction { return ActionExtendTimeout }

func (a ExtendTimeout) validate() error {
	if a.NewTimeout <= 0 {
		return newValidationError("EXTEND_TIMEOUT requires a positive timeout, got %v", a.NewTimeout)
	}
	return nil
}

// OverrideTierRequirement relaxes the bench-fallback constraint for all
// subsequent selections of this request.
type OverrideTierRequirement struct{}

func (OverrideTierRequirement) Kind() OverrideAction { return ActionOverrideTierRequirement }
func (OverrideTierRequirement) validate() error      { return nil }

// AdminOverride is a validated administrative instruction for one request.
type AdminOverride struct {
	RequestID   string
	AdminUserID string
	Reason      string
	Action      Action
}

// Validate rejects the override before any dispatch: the reason must carry a
// real justification and the action's own required fields must hold.
func (o AdminOverride) Validate() error {
	if strings.TrimSpace(o.RequestID) == "" {
		return newValidationError("override requires a request id")
	}
	if strings.TrimSpace(o.AdminUserID) == "" {
		return newValidationError("override requires an admin user id")
	}
	if len(strings.TrimSpace(o.Reason)) < minOverrideReasonLen {
		return newValidationError("override reason must be at least %d characters", minOverrideReasonLen)
	}
	if o.Action == nil {
		return newValidationError("override requires an action")
	}
	return o.Action.validate()
}

// ParseOverrideAction builds the typed action variant from its wire form.
func ParseOverrideAction(action string, targetAgentIDs []string, newTimeoutHours int) (Action, error) {
	switch OverrideAction(strings.ToUpper(strings.TrimSpace(action))) {
	case ActionForceMatch:
		return ForceMatch{TargetAgentIDs: targetAgentIDs}, nil
	case ActionForceRematch:
		return ForceRematch{}, nil
	case ActionCancelMatching:
		return CancelMatching{}, nil
	case ActionExtendTimeout:
		return ExtendTimeout{NewTimeout: time.Duration(newTimeoutHours) * time.Hour}, nil
	case ActionOverrideTierRequirement:
		return OverrideTierRequirement{}, nil
	default:
		return nil, newValidationError("unknown override action %q", action)
	}
}

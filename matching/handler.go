package matching

import (
	"context"

	"github.com/rs/zerolog/log"

	"travel-matching-engine/events"
)

// EventHandler adapts decoded inbound events to engine operations.
type EventHandler struct {
	engine *Engine
}

func NewEventHandler(engine *Engine) *EventHandler {
	return &EventHandler{engine: engine}
}

func (h *EventHandler) HandleRequestCreated(ctx context.Context, evt *events.RequestCreated) error {
	_, err := h.engine.ProcessRequest(ctx, TravelRequest{
		ID:            evt.RequestID,
		Destination:   evt.Destination,
		Region:        evt.Region,
		TripType:      evt.TripType,
		StartDate:     evt.StartDate,
		EndDate:       evt.EndDate,
		TravelerCount: evt.TravelerCount,
		Budget:        evt.Budget,
		IsPeakSeason:  evt.IsPeakSeason,
	})
	return err
}

func (h *EventHandler) HandleAgentResponded(ctx context.Context, evt *events.AgentResponded) error {
	if evt.Accepted {
		// Acceptance belongs to the downstream booking flow.
		log.Debug().Str("request_id", evt.RequestID).Str("agent_id", evt.AgentID).Msg("agent accepted match, nothing to do here")
		return nil
	}
	return h.engine.HandleAgentDecline(ctx, evt.RequestID, evt.AgentID, evt.MatchID, NormalizeDeclineReason(evt.Reason))
}

func (h *EventHandler) HandleAdminOverride(ctx context.Context, evt *events.AdminOverrideRequested) error {
	action, err := ParseOverrideAction(evt.Action, evt.TargetAgentIDs, evt.NewTimeoutHours)
	if err != nil {
		return err
	}
	return h.engine.HandleAdminOverride(ctx, AdminOverride{
		RequestID:   evt.RequestID,
		AdminUserID: evt.AdminUserID,
		Reason:      evt.Reason,
		Action:      action,
	})
}

func (h *EventHandler) HandleMatchingTimeout(ctx context.Context, evt *events.MatchingTimeoutExpired) error {
	return h.engine.HandleAgentDecline(ctx, evt.RequestID, "", evt.MatchID, DeclineTimeout)
}

var _ events.Handler = (*EventHandler)(nil)

// Package matching implements the travel-request matching engine: scoring
// and selection of candidate agents, the per-request orchestration state
// machine with retry and rematch, agent-decline handling, and the
// administrative override protocol.
package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"travel-matching-engine/audit"
	"travel-matching-engine/events"
	"travel-matching-engine/metrics"
)

// actorEngine marks audit entries produced by the engine itself, as opposed
// to entries attributed to an administrator.
const actorEngine = "engine"

// PoolProvider supplies the candidate agents for one request. Every
// selection attempt takes a fresh snapshot so agents that became available
// between attempts are considered.
type PoolProvider interface {
	Snapshot(ctx context.Context, req TravelRequest) ([]Agent, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithBackoffFactory replaces the cooldown policy between selection
// attempts. Each matching loop gets its own policy instance from the
// factory. Tests inject a zero-delay policy to run attempts back to back.
func WithBackoffFactory(f func() backoff.BackOff) Option {
	return func(e *Engine) { e.newBackoff = f }
}

// WithClock replaces the engine's time source for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// loopHandle identifies one registered matching loop so a loop only ever
// unregisters itself, never a successor that replaced it.
type loopHandle struct {
	cancel context.CancelFunc
}

// Engine owns the matching lifecycle of every travel request it has seen.
// All operations on one request are serialized through a per-request lock;
// operations on distinct requests run independently. Event publication and
// audit recording happen after the lock is released so slow sinks never
// stall a state transition.
type Engine struct {
	cfg      Config
	selector *Selector
	store    StateStore
	pool     PoolProvider
	pub      events.Publisher
	auditor  audit.Logger

	newBackoff func() backoff.BackOff
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	loops map[string]*loopHandle
}

// NewEngine validates the configuration and wires the engine's
// collaborators.
func NewEngine(cfg Config, selector *Selector, store StateStore, pool PoolProvider, pub events.Publisher, auditor audit.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if selector == nil || store == nil || pool == nil || pub == nil || auditor == nil {
		return nil, errors.New("matching: engine requires a selector, store, pool, publisher and audit logger")
	}
	e := &Engine{
		cfg:      cfg,
		selector: selector,
		store:    store,
		pool:     pool,
		pub:      pub,
		auditor:  auditor,
		newBackoff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(cfg.RetryCooldown)
		},
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
		loops: make(map[string]*loopHandle),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ProcessRequest starts the matching sequence for a newly created travel
// request and blocks until the request leaves MATCHING_IN_PROGRESS. A
// redelivered request is ignored unless its state shows an interrupted
// sequence, in which case the loop is resumed where it left off.
func (e *Engine) ProcessRequest(ctx context.Context, req TravelRequest) (*Result, error) {
	if strings.TrimSpace(req.ID) == "" {
		return nil, newValidationError("request id must not be empty")
	}

	lock := e.requestLock(req.ID)
	lock.Lock()
	existing, err := e.store.Get(ctx, req.ID)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("load state: %w", err)
	}
	if existing != nil {
		resume := existing.Status == StatusInProgress && !e.loopLive(req.ID)
		res := existing.LastResult
		lock.Unlock()
		if resume {
			log.Warn().Str("request_id", req.ID).Msg("redelivered request still in progress, resuming matching")
			return e.runMatchingLoop(ctx, req.ID)
		}
		log.Warn().Str("request_id", req.ID).Str("status", string(existing.Status)).Msg("duplicate request ignored")
		return res, nil
	}

	st := NewState(req, e.now().UTC())
	o := &outbox{}
	e.setStatus(st, StatusInProgress, "matching started", actorEngine, o)
	if err := e.store.Put(ctx, st); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("persist state: %w", err)
	}
	lock.Unlock()
	e.flush(ctx, o)

	log.Info().
		Str("request_id", req.ID).
		Str("destination", req.Destination).
		Bool("peak_season", req.IsPeakSeason).
		Msg("processing travel request")
	return e.runMatchingLoop(ctx, req.ID)
}

// HandleAgentDecline records one agent's decline of a match and decides
// whether the request keeps waiting, rematches, or fails terminally. Unknown
// requests, terminated requests and stale match ids are warned about and
// ignored, since late and duplicate deliveries are expected.
func (e *Engine) HandleAgentDecline(ctx context.Context, requestID, agentID, matchID string, reason DeclineReason) error {
	lock := e.requestLock(requestID)
	lock.Lock()

	st, err := e.store.Get(ctx, requestID)
	if err != nil {
		lock.Unlock()
		return fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		lock.Unlock()
		log.Warn().Str("request_id", requestID).Str("match_id", matchID).Msg("decline for unknown request ignored")
		return nil
	}
	if st.Status.Terminal() {
		lock.Unlock()
		log.Warn().Str("request_id", requestID).Str("status", string(st.Status)).Msg("decline for terminated request ignored")
		return nil
	}
	idx := st.findActiveMatch(matchID)
	if idx < 0 {
		lock.Unlock()
		log.Warn().Str("request_id", requestID).Str("match_id", matchID).Msg("decline for unknown or superseded match ignored")
		return nil
	}
	match := st.ActiveMatches[idx]
	now := e.now().UTC()
	if reason == DeclineTimeout && match.ExpiresAt.After(now) {
		// The expiry was extended after this timer was armed.
		lock.Unlock()
		log.Warn().Str("request_id", requestID).Str("match_id", matchID).Time("expires_at", match.ExpiresAt).Msg("timeout for unexpired match ignored")
		return nil
	}
	if agentID == "" {
		agentID = match.AgentID
	} else if agentID != match.AgentID {
		log.Warn().Str("request_id", requestID).Str("match_id", matchID).Str("claimed_agent", agentID).Str("match_agent", match.AgentID).Msg("decline agent mismatch, trusting match record")
		agentID = match.AgentID
	}

	prevMatchIDs := st.ActiveMatchIDs()
	st.Declines = append(st.Declines, AgentDecline{
		MatchID:    matchID,
		AgentID:    agentID,
		RequestID:  requestID,
		Reason:     reason,
		DeclinedAt: now,
	})
	st.ExcludeAgent(agentID)
	st.ActiveMatches = append(st.ActiveMatches[:idx], st.ActiveMatches[idx+1:]...)
	st.UpdatedAt = now

	remaining := len(st.ActiveMatches)
	effectiveMin := e.cfg.EffectiveMinAgents(st.Request.IsPeakSeason)
	requiresRematch := remaining < effectiveMin
	attemptsLeft := st.CurrentAttempt < e.cfg.MaxAttempts

	o := &outbox{}
	o.add(actorEngine, &events.AgentDeclined{
		Decline: events.Decline{
			MatchID:    matchID,
			AgentID:    agentID,
			RequestID:  requestID,
			Reason:     string(reason),
			DeclinedAt: now,
		},
		RemainingMatches: remaining,
		RequiresRematch:  requiresRematch,
	})
	metrics.AgentDeclines.WithLabelValues(string(reason)).Inc()
	log.Info().
		Str("request_id", requestID).
		Str("agent_id", agentID).
		Str("reason", string(reason)).
		Int("remaining", remaining).
		Bool("requires_rematch", requiresRematch).
		Msg("agent declined match")

	rematch := false
	switch {
	case !requiresRematch:
		// Enough matches remain, keep waiting on the survivors.
	case attemptsLeft:
		rematchReason := fmt.Sprintf("agent %s declined (%s)", agentID, reason)
		if remaining == 0 {
			rematchReason = "all agents declined"
		}
		e.stageRematch(st, prevMatchIDs, rematchReason, actorEngine, o)
		rematch = true
	case remaining == 0:
		res := Result{
			RequestID:                requestID,
			Status:                   StatusFailed,
			TotalCandidatesEvaluated: lastEvaluated(st),
			IsPeakSeason:             st.Request.IsPeakSeason,
			Attempt:                  st.CurrentAttempt,
			Reason:                   "all agents declined and no attempts remain",
			CompletedAt:              now,
		}
		st.LastResult = &res
		o.add(actorEngine, &events.MatchingFailed{
			RequestID:            requestID,
			Reason:               res.Reason,
			AttemptsMade:         st.CurrentAttempt,
			TotalAgentsEvaluated: res.TotalCandidatesEvaluated,
			IsPeakSeason:         res.IsPeakSeason,
		})
		e.setStatus(st, StatusFailed, res.Reason, actorEngine, o)
		metrics.MatchingOutcomes.WithLabelValues("failed").Inc()
	default:
		log.Warn().
			Str("request_id", requestID).
			Int("remaining", remaining).
			Int("effective_min", effectiveMin).
			Msg("request below minimum with no attempts remaining, keeping surviving matches")
	}

	if err := e.store.Put(ctx, st); err != nil {
		lock.Unlock()
		return fmt.Errorf("persist state: %w", err)
	}
	lock.Unlock()
	e.flush(ctx, o)

	if rematch {
		_, err := e.runMatchingLoop(ctx, requestID)
		return err
	}
	return nil
}

// HandleAdminOverride validates and applies one administrative override.
// Validation failures are returned before any state is read or mutated.
// Every applied override publishes exactly one ADMIN_OVERRIDE_APPLIED event
// naming the administrator, the action and the affected agents.
func (e *Engine) HandleAdminOverride(ctx context.Context, ov AdminOverride) error {
	if err := ov.Validate(); err != nil {
		return err
	}

	lock := e.requestLock(ov.RequestID)
	lock.Lock()
	st, err := e.store.Get(ctx, ov.RequestID)
	if err != nil {
		lock.Unlock()
		return fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		lock.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRequest, ov.RequestID)
	}

	o := &outbox{}
	var affected []string
	var result string
	stopLoop := false
	startLoop := false

	switch act := ov.Action.(type) {
	case ForceMatch:
		pool, err := e.pool.Snapshot(ctx, st.Request)
		if err != nil {
			lock.Unlock()
			return fmt.Errorf("pool snapshot: %w", err)
		}
		byID := make(map[string]Agent, len(pool))
		for _, a := range pool {
			byID[a.ID] = a
		}
		now := e.now().UTC()
		expiresAt := now.Add(e.cfg.TimeoutFor(st.Request.IsPeakSeason))
		matches := make([]Match, 0, len(act.TargetAgentIDs))
		starCount, benchCount := 0, 0
		for _, id := range act.TargetAgentIDs {
			agent, ok := byID[id]
			if !ok {
				lock.Unlock()
				return newValidationError("force match target %q not in the current agent pool", id)
			}
			if agent.Tier == TierStar {
				starCount++
			} else {
				benchCount++
			}
			// Forced matches bypass scoring; the zero score marks them.
			matches = append(matches, Match{
				ID:        uuid.NewString(),
				RequestID: st.RequestID,
				AgentID:   agent.ID,
				Score:     0,
				ExpiresAt: expiresAt,
			})
		}
		st.ActiveMatches = matches
		res := Result{
			RequestID:        st.RequestID,
			Status:           StatusAgentsMatched,
			Matches:          append([]Match(nil), matches...),
			StarAgentsCount:  starCount,
			BenchAgentsCount: benchCount,
			IsPeakSeason:     st.Request.IsPeakSeason,
			Attempt:          st.CurrentAttempt,
			CompletedAt:      now,
		}
		st.LastResult = &res
		o.add(ov.AdminUserID, matchedEvent(&res))
		e.setStatus(st, StatusAwaitingResponse, "admin force match", ov.AdminUserID, o)
		affected = act.TargetAgentIDs
		result = fmt.Sprintf("assigned %d agents directly", len(matches))
		stopLoop = true
		metrics.MatchingOutcomes.WithLabelValues("matched").Inc()

	case ForceRematch:
		if st.Status == StatusInProgress {
			lock.Unlock()
			return newValidationError("matching already in progress for request %s", ov.RequestID)
		}
		affected = st.ActiveAgentIDs()
		prevMatchIDs := st.ActiveMatchIDs()
		st.ExcludedAgentIDs = make(map[string]bool)
		st.CurrentAttempt = 0
		st.CancelReason = ""
		e.stageRematch(st, prevMatchIDs, "admin force rematch", ov.AdminUserID, o)
		result = "matching restarted with a clean exclusion set"
		startLoop = true

	case CancelMatching:
		if st.Status.Terminal() {
			lock.Unlock()
			return newValidationError("request %s is already %s", ov.RequestID, st.Status)
		}
		affected = st.ActiveAgentIDs()
		st.ActiveMatches = nil
		st.CancelReason = ov.Reason
		now := e.now().UTC()
		st.LastResult = &Result{
			RequestID:    st.RequestID,
			Status:       StatusCancelled,
			IsPeakSeason: st.Request.IsPeakSeason,
			Attempt:      st.CurrentAttempt,
			Reason:       ov.Reason,
			CompletedAt:  now,
		}
		e.setStatus(st, StatusCancelled, ov.Reason, ov.AdminUserID, o)
		result = "matching cancelled"
		stopLoop = true
		metrics.MatchingOutcomes.WithLabelValues("cancelled").Inc()

	case ExtendTimeout:
		if len(st.ActiveMatches) == 0 {
			lock.Unlock()
			return newValidationError("request %s has no active matches to extend", ov.RequestID)
		}
		newExpiry := e.now().UTC().Add(act.NewTimeout)
		for i := range st.ActiveMatches {
			st.ActiveMatches[i].ExpiresAt = newExpiry
		}
		st.UpdatedAt = e.now().UTC()
		affected = st.ActiveAgentIDs()
		result = fmt.Sprintf("response window extended to %s", newExpiry.Format(time.RFC3339))

	case OverrideTierRequirement:
		st.TierRelaxed = true
		st.UpdatedAt = e.now().UTC()
		result = "tier requirement relaxed for subsequent selections"

	default:
		lock.Unlock()
		return newValidationError("unsupported override action %q", ov.Action.Kind())
	}

	o.add(ov.AdminUserID, &events.AdminOverrideApplied{
		RequestID:        ov.RequestID,
		AdminUserID:      ov.AdminUserID,
		Action:           string(ov.Action.Kind()),
		Reason:           ov.Reason,
		AffectedAgentIDs: affected,
		Result:           result,
	})
	if err := e.store.Put(ctx, st); err != nil {
		lock.Unlock()
		return fmt.Errorf("persist state: %w", err)
	}
	lock.Unlock()

	if stopLoop {
		e.cancelLoop(ov.RequestID)
	}
	e.flush(ctx, o)
	metrics.AdminOverrides.WithLabelValues(string(ov.Action.Kind())).Inc()
	log.Info().
		Str("request_id", ov.RequestID).
		Str("admin", ov.AdminUserID).
		Str("action", string(ov.Action.Kind())).
		Str("result", result).
		Msg("admin override applied")

	if startLoop {
		_, err := e.runMatchingLoop(ctx, ov.RequestID)
		return err
	}
	return nil
}

// RunCleanup sweeps terminal request states past the retention window until
// ctx is cancelled.
func (e *Engine) RunCleanup(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

// sweep deletes terminal states whose outcome is older than the retention
// window. It works on a snapshot and re-checks each state under its request
// lock before deleting, so an in-flight FORCE_REMATCH resurrection is never
// swept away.
func (e *Engine) sweep(ctx context.Context) {
	states, err := e.store.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("state snapshot failed, skipping cleanup pass")
		return
	}
	cutoff := e.now().UTC().Add(-e.cfg.StateRetention)
	removed := 0
	for _, st := range states {
		if !st.Status.Terminal() || completedAt(st).After(cutoff) {
			continue
		}
		lock := e.requestLock(st.RequestID)
		lock.Lock()
		cur, err := e.store.Get(ctx, st.RequestID)
		if err != nil {
			lock.Unlock()
			log.Error().Err(err).Str("request_id", st.RequestID).Msg("state load failed during cleanup")
			continue
		}
		deleted := false
		if cur != nil && cur.Status.Terminal() && !completedAt(cur).After(cutoff) {
			if err := e.store.Delete(ctx, st.RequestID); err != nil {
				log.Error().Err(err).Str("request_id", st.RequestID).Msg("state delete failed during cleanup")
			} else {
				removed++
				deleted = true
			}
		}
		lock.Unlock()
		if deleted {
			e.dropLock(st.RequestID)
		}
	}
	metrics.ActiveStates.Set(float64(len(states) - removed))
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("cleaned up expired request states")
	}
}

// runMatchingLoop drives selection attempts for one request until it leaves
// MATCHING_IN_PROGRESS. The cooldown between attempts is waited out off-lock
// and is pre-empted when an override moves the request's status.
func (e *Engine) runMatchingLoop(ctx context.Context, requestID string) (*Result, error) {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h := e.registerLoop(requestID, cancel)
	defer e.unregisterLoop(requestID, h)

	started := e.now()
	pol := e.newBackoff()
	totalEvaluated := 0

	for {
		lock := e.requestLock(requestID)
		lock.Lock()
		st, err := e.store.Get(ctx, requestID)
		if err != nil {
			lock.Unlock()
			return nil, fmt.Errorf("load state: %w", err)
		}
		if st == nil {
			lock.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
		}
		if st.Status != StatusInProgress {
			res := st.LastResult
			lock.Unlock()
			log.Debug().Str("request_id", requestID).Str("status", string(st.Status)).Msg("matching loop stopped, request no longer in progress")
			return res, nil
		}

		if st.CurrentAttempt >= e.cfg.MaxAttempts {
			// Recovered state that had already spent its attempt budget
			// before the previous process stopped. Close it out.
			now := e.now().UTC()
			res := Result{
				RequestID:                requestID,
				Status:                   StatusFailed,
				TotalCandidatesEvaluated: totalEvaluated,
				MatchingDuration:         e.now().Sub(started),
				IsPeakSeason:             st.Request.IsPeakSeason,
				Attempt:                  st.CurrentAttempt,
				Reason:                   "attempt budget exhausted",
				CompletedAt:              now,
			}
			st.LastResult = &res
			o := &outbox{}
			o.add(actorEngine, &events.MatchingFailed{
				RequestID:            requestID,
				Reason:               res.Reason,
				AttemptsMade:         st.CurrentAttempt,
				TotalAgentsEvaluated: totalEvaluated,
				IsPeakSeason:         res.IsPeakSeason,
			})
			e.setStatus(st, StatusFailed, res.Reason, actorEngine, o)
			if err := e.store.Put(ctx, st); err != nil {
				lock.Unlock()
				return nil, fmt.Errorf("persist state: %w", err)
			}
			lock.Unlock()
			e.flush(ctx, o)
			metrics.MatchingOutcomes.WithLabelValues("failed").Inc()
			return &res, nil
		}

		attempt := st.CurrentAttempt + 1
		st.CurrentAttempt = attempt
		pool, err := e.pool.Snapshot(ctx, st.Request)
		if err != nil {
			lock.Unlock()
			return nil, fmt.Errorf("pool snapshot: %w", err)
		}
		metrics.MatchingAttempts.Inc()
		res := e.selector.SelectAgents(st.Request, pool, attempt, st.ExcludedAgentIDs, st.TierRelaxed, e.now().UTC())
		totalEvaluated += res.TotalCandidatesEvaluated

		if res.Status == StatusAgentsMatched {
			res.MatchingDuration = e.now().Sub(started)
			st.ActiveMatches = append([]Match(nil), res.Matches...)
			st.LastResult = &res
			o := &outbox{}
			o.add(actorEngine, matchedEvent(&res))
			e.setStatus(st, StatusAwaitingResponse, "agents matched", actorEngine, o)
			if err := e.store.Put(ctx, st); err != nil {
				lock.Unlock()
				return nil, fmt.Errorf("persist state: %w", err)
			}
			lock.Unlock()
			e.flush(ctx, o)
			metrics.MatchingOutcomes.WithLabelValues("matched").Inc()
			metrics.MatchingDuration.Observe(res.MatchingDuration.Seconds())
			log.Info().
				Str("request_id", requestID).
				Int("attempt", attempt).
				Int("matches", len(res.Matches)).
				Int("stars", res.StarAgentsCount).
				Int("bench", res.BenchAgentsCount).
				Dur("took", res.MatchingDuration).
				Msg("agents matched")
			return &res, nil
		}

		if attempt >= e.cfg.MaxAttempts {
			res.MatchingDuration = e.now().Sub(started)
			st.LastResult = &res
			o := &outbox{}
			o.add(actorEngine, &events.MatchingFailed{
				RequestID:            requestID,
				Reason:               res.Reason,
				AttemptsMade:         attempt,
				TotalAgentsEvaluated: totalEvaluated,
				IsPeakSeason:         res.IsPeakSeason,
			})
			e.setStatus(st, StatusFailed, res.Reason, actorEngine, o)
			if err := e.store.Put(ctx, st); err != nil {
				lock.Unlock()
				return nil, fmt.Errorf("persist state: %w", err)
			}
			lock.Unlock()
			e.flush(ctx, o)
			metrics.MatchingOutcomes.WithLabelValues("failed").Inc()
			metrics.MatchingDuration.Observe(res.MatchingDuration.Seconds())
			log.Warn().
				Str("request_id", requestID).
				Int("attempts", attempt).
				Str("reason", res.Reason).
				Msg("matching failed")
			return &res, nil
		}

		// Attempts remain. Persist the spent attempt, then wait out the
		// cooldown without holding the request lock.
		st.LastResult = &res
		st.UpdatedAt = e.now().UTC()
		if err := e.store.Put(ctx, st); err != nil {
			lock.Unlock()
			return nil, fmt.Errorf("persist state: %w", err)
		}
		lock.Unlock()
		log.Warn().
			Str("request_id", requestID).
			Int("attempt", attempt).
			Str("reason", res.Reason).
			Msg("selection attempt failed, retrying after cooldown")

		wait := pol.NextBackOff()
		if wait == backoff.Stop {
			wait = 0
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-loopCtx.Done():
				timer.Stop()
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				// Woken by an override; the next pass observes the new
				// status and exits.
			}
		}
	}
}

// stageRematch abandons the active matches and stages the transition back to
// MATCHING_IN_PROGRESS. The caller holds the request lock and re-enters the
// matching loop after persisting and flushing.
func (e *Engine) stageRematch(st *State, prevMatchIDs []string, reason, actor string, o *outbox) {
	st.ActiveMatches = nil
	o.add(actor, &events.RematchInitiated{
		RequestID:        st.RequestID,
		Attempt:          st.CurrentAttempt + 1,
		PreviousMatchIDs: prevMatchIDs,
		Reason:           reason,
	})
	e.setStatus(st, StatusInProgress, reason, actor, o)
	metrics.Rematches.Inc()
}

// setStatus applies a state-machine transition and stages the matching
// status-changed event. A same-status call is not a transition and stages
// nothing.
func (e *Engine) setStatus(st *State, next Status, reason, actor string, o *outbox) {
	if st.Status == next {
		return
	}
	prev := st.Status
	st.Status = next
	st.UpdatedAt = e.now().UTC()
	o.add(actor, &events.MatchingStatusChanged{
		RequestID:      st.RequestID,
		PreviousStatus: string(prev),
		NewStatus:      string(next),
		Reason:         reason,
	})
}

// pendingEvent pairs a staged event with the actor it is attributed to in
// the audit trail.
type pendingEvent struct {
	actor string
	evt   events.Event
}

// outbox collects the events staged under a request lock so they can be
// recorded and published after the lock is released.
type outbox struct {
	pending []pendingEvent
}

func (o *outbox) add(actor string, evt events.Event) {
	o.pending = append(o.pending, pendingEvent{actor: actor, evt: evt})
}

// flush records every staged event in the audit trail and publishes it to
// the bus. Sink failures are logged, never propagated: the committed state
// transition stands and both sinks are at-least-once with their own retries.
func (e *Engine) flush(ctx context.Context, o *outbox) {
	for _, p := range o.pending {
		detail, err := json.Marshal(p.evt)
		if err != nil {
			log.Error().Err(err).Str("event_type", string(p.evt.EventType())).Msg("event marshal failed, audit detail dropped")
			detail = nil
		}
		entry := audit.Entry{
			ID:         uuid.NewString(),
			RequestID:  p.evt.Key(),
			Actor:      p.actor,
			EventType:  string(p.evt.EventType()),
			Detail:     string(detail),
			OccurredAt: e.now().UTC(),
		}
		if err := e.auditor.Record(ctx, entry); err != nil {
			log.Error().Err(err).Str("request_id", entry.RequestID).Str("event_type", entry.EventType).Msg("audit record failed")
		}
		if err := e.pub.Publish(ctx, p.evt); err != nil {
			log.Error().Err(err).Str("request_id", entry.RequestID).Str("event_type", entry.EventType).Msg("event publish failed")
		}
	}
	o.pending = nil
}

// matchedEvent converts a successful selection result to its wire form.
func matchedEvent(res *Result) *events.AgentsMatched {
	wire := make([]events.Match, 0, len(res.Matches))
	var expiresAt time.Time
	for _, m := range res.Matches {
		wire = append(wire, events.Match{
			MatchID:   m.ID,
			RequestID: m.RequestID,
			AgentID:   m.AgentID,
			Score:     m.Score,
			ExpiresAt: m.ExpiresAt,
		})
		expiresAt = m.ExpiresAt
	}
	return &events.AgentsMatched{
		RequestID:                res.RequestID,
		Matches:                  wire,
		StarAgentsCount:          res.StarAgentsCount,
		BenchAgentsCount:         res.BenchAgentsCount,
		TotalCandidatesEvaluated: res.TotalCandidatesEvaluated,
		MatchingDurationMs:       res.MatchingDuration.Milliseconds(),
		IsPeakSeason:             res.IsPeakSeason,
		Attempt:                  res.Attempt,
		ExpiresAt:                expiresAt,
	}
}

// lastEvaluated reports how many candidates the most recent selection
// attempt considered, for failure events raised outside the matching loop.
func lastEvaluated(st *State) int {
	if st.LastResult != nil {
		return st.LastResult.TotalCandidatesEvaluated
	}
	return 0
}

// completedAt is the moment a terminal state reached its outcome, falling
// back to the last update when no result was recorded.
func completedAt(st *State) time.Time {
	if st.LastResult != nil && !st.LastResult.CompletedAt.IsZero() {
		return st.LastResult.CompletedAt
	}
	return st.UpdatedAt
}

// requestLock returns the mutex serializing all operations on one request.
func (e *Engine) requestLock(requestID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[requestID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[requestID] = l
	}
	return l
}

func (e *Engine) dropLock(requestID string) {
	e.mu.Lock()
	delete(e.locks, requestID)
	e.mu.Unlock()
}

func (e *Engine) registerLoop(requestID string, cancel context.CancelFunc) *loopHandle {
	h := &loopHandle{cancel: cancel}
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.loops[requestID]; ok {
		prev.cancel()
	}
	e.loops[requestID] = h
	return h
}

func (e *Engine) unregisterLoop(requestID string, h *loopHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.loops[requestID]; ok && cur == h {
		delete(e.loops, requestID)
	}
}

// cancelLoop wakes a matching loop waiting out a cooldown so it observes a
// status change immediately instead of after the full wait.
func (e *Engine) cancelLoop(requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.loops[requestID]; ok {
		cur.cancel()
		delete(e.loops, requestID)
	}
}

func (e *Engine) loopLive(requestID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.loops[requestID]
	return ok
}

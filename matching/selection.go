package matching

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Selector assembles a bounded, ranked match set for a request. It is
// side-effect free apart from minting match identifiers: the caller owns
// persistence and event publication.
type Selector struct {
	scorer *Scorer
	cfg    Config
}

func NewSelector(scorer *Scorer, cfg Config) *Selector {
	return &Selector{scorer: scorer, cfg: cfg}
}

type candidate struct {
	agent Agent
	score Breakdown
}

// SelectAgents filters pool down to eligible candidates, applies the tiered
// selection strategy, and returns either an AGENTS_MATCHED result with
// minted matches or a MATCHING_FAILED result naming why.
//
// Strategy: STAR candidates fill up to MaxAgents slots by score; BENCH
// candidates top the set up to MinAgents when star coverage is short and
// bench fallback is enabled (or relaxed for this request). Peak-season
// single-agent mode lowers the acceptance floor to one match for this
// selection only.
//
// Ranking ties break by lower current workload, then by agent identifier,
// so the ordering is stable and testable.
func (s *Selector) SelectAgents(req TravelRequest, pool []Agent, attempt int, excluded map[string]bool, tierRelaxed bool, now time.Time) Result {
	eligible := make([]candidate, 0, len(pool))
	for _, agent := range pool {
		if !agent.Available || excluded[agent.ID] {
			continue
		}
		eligible = append(eligible, candidate{agent: agent, score: s.scorer.Score(req, agent)})
	}

	stars := make([]candidate, 0, len(eligible))
	bench := make([]candidate, 0, len(eligible))
	for _, c := range eligible {
		if c.agent.Tier == TierStar {
			stars = append(stars, c)
		} else {
			bench = append(bench, c)
		}
	}
	rankCandidates(stars)
	rankCandidates(bench)

	picks := stars
	if len(picks) > s.cfg.MaxAgents {
		picks = picks[:s.cfg.MaxAgents]
	}
	if len(picks) < s.cfg.MinAgents && (s.cfg.EnableBenchFallback || tierRelaxed) {
		for _, c := range bench {
			if len(picks) >= s.cfg.MinAgents {
				break
			}
			picks = append(picks, c)
		}
	}

	effectiveMin := s.cfg.EffectiveMinAgents(req.IsPeakSeason)
	if len(picks) < effectiveMin {
		reason := fmt.Sprintf("insufficient candidates: assembled %d of minimum %d", len(picks), effectiveMin)
		if len(eligible) == 0 {
			reason = "no eligible candidates in pool"
		}
		return Result{
			RequestID:                req.ID,
			Status:                   StatusFailed,
			TotalCandidatesEvaluated: len(eligible),
			IsPeakSeason:             req.IsPeakSeason,
			Attempt:                  attempt,
			Reason:                   reason,
			CompletedAt:              now,
		}
	}

	expiresAt := now.Add(s.cfg.TimeoutFor(req.IsPeakSeason))
	matches := make([]Match, 0, len(picks))
	starCount, benchCount := 0, 0
	for _, c := range picks {
		if c.agent.Tier == TierStar {
			starCount++
		} else {
			benchCount++
		}
		matches = append(matches, Match{
			ID:        uuid.NewString(),
			RequestID: req.ID,
			AgentID:   c.agent.ID,
			Score:     c.score.Total,
			ExpiresAt: expiresAt,
		})
	}

	return Result{
		RequestID:                req.ID,
		Status:                   StatusAgentsMatched,
		Matches:                  matches,
		StarAgentsCount:          starCount,
		BenchAgentsCount:         benchCount,
		TotalCandidatesEvaluated: len(eligible),
		IsPeakSeason:             req.IsPeakSeason,
		Attempt:                  attempt,
		CompletedAt:              now,
	}
}

// rankCandidates orders by score descending, breaking ties by lower current
// workload and finally by agent identifier.
func rankCandidates(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].score.Total != cs[j].score.Total {
			return cs[i].score.Total > cs[j].score.Total
		}
		if cs[i].agent.CurrentWorkload != cs[j].agent.CurrentWorkload {
			return cs[i].agent.CurrentWorkload < cs[j].agent.CurrentWorkload
		}
		return cs[i].agent.ID < cs[j].agent.ID
	})
}

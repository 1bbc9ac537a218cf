package priority

import (
	"context"

	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
	"github.com/jordigilh/territory-assignment-core/pkg/policy"
	"github.com/jordigilh/territory-assignment-core/pkg/rephash"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

const notApplicableSentinel = "not-applicable"

// mappedRegion implements spec §4.3 "Mapped region":
// mapped_region(account) = territory_mappings[account.sales_territory].
// The sentinel disables P1/P2 for the account.
func mappedRegion(a *snapshot.Account, cfg *config.Config) (region string, disabled bool) {
	region, ok := cfg.TerritoryMappings[a.SalesTerritory]
	if !ok {
		return "", true
	}
	if region == notApplicableSentinel {
		return "", true
	}
	return region, false
}

// rule is the capability set every priority implements (spec §9
// "Polymorphism over rules"): a stable id/label, an applicability
// predicate, and a candidate-selection function.
type rule interface {
	ID() Rule
	Applies(ctx *evalContext, a *snapshot.Account) bool
	Choose(ctx *evalContext, a *snapshot.Account) (repID string, warnings []string, ok bool)
}

// evalContext bundles everything a rule needs to evaluate one account,
// threaded through every Choose call instead of captured globally so the
// catalogue stays a plain, testable slice of values.
type evalContext struct {
	ctx        context.Context
	snap       *snapshot.Snapshot
	cfg        *config.Config
	bands      *calibrator.Result
	loads      map[string]*RepLoad
	deltas     map[string]accountDeltas
	buildID    string
	policyEval *policy.Evaluator
	relaxed    bool
}

// --- P0 Protected ---

type protectedRule struct{}

func (protectedRule) ID() Rule { return RuleProtected }

func (protectedRule) Applies(c *evalContext, a *snapshot.Account) bool {
	return a.IsStrategicAccount || a.IsManualHoldover
}

func (protectedRule) Choose(c *evalContext, a *snapshot.Account) (string, []string, bool) {
	if a.DesignatedStrategicRepID == "" {
		return "", []string{"protected account has no designated strategic rep"}, false
	}
	if _, ok := c.snap.Rep(a.DesignatedStrategicRepID); !ok {
		return "", []string{"designated strategic rep not present in snapshot"}, false
	}
	// P0 overrides hard caps and suppresses geo warnings (spec S2).
	return a.DesignatedStrategicRepID, nil, true
}

// --- P1 Continuity+Geo ---

type continuityGeoRule struct{}

func (continuityGeoRule) ID() Rule { return RuleContinuityGeo }

func (continuityGeoRule) Applies(c *evalContext, a *snapshot.Account) bool {
	if a.OwnerID == "" {
		return false
	}
	region, disabled := mappedRegion(a, c.cfg)
	if disabled {
		return false
	}
	rep, ok := c.snap.Rep(a.OwnerID)
	if !ok || !rep.IsActive || !rep.IncludeInAssignments {
		return false
	}
	return rep.Region == region
}

func (continuityGeoRule) Choose(c *evalContext, a *snapshot.Account) (string, []string, bool) {
	rep, _ := c.snap.Rep(a.OwnerID)
	d := c.deltas[a.AccountID]
	load := c.loads[rep.RepID]
	if !eligible(rep, load, d, c.bands) {
		return "", []string{"prior owner ineligible under current caps"}, false
	}
	return a.OwnerID, nil, true
}

// --- P2 Geography ---

type geographyRule struct{}

func (geographyRule) ID() Rule { return RuleGeography }

func (geographyRule) Applies(c *evalContext, a *snapshot.Account) bool {
	_, disabled := mappedRegion(a, c.cfg)
	return !disabled
}

func (geographyRule) Choose(c *evalContext, a *snapshot.Account) (string, []string, bool) {
	region, _ := mappedRegion(a, c.cfg)
	d := c.deltas[a.AccountID]
	candidates := candidatesInRegion(c, region, d)
	candidates = applyPolicyVeto(c, a, candidates)
	if len(candidates) == 0 {
		return "", []string{"no eligible rep in mapped region " + region}, false
	}
	return pickByDistanceThenTieBreak(c, a, candidates, d), nil, true
}

func candidatesInRegion(c *evalContext, region string, d accountDeltas) []string {
	var out []string
	for _, rep := range c.snap.Reps {
		if rep.Region != region {
			continue
		}
		if eligible(rep, c.loads[rep.RepID], d, c.bands) {
			out = append(out, rep.RepID)
		}
	}
	return out
}

// --- P3 Continuity ---

type continuityRule struct{}

func (continuityRule) ID() Rule { return RuleContinuity }

func (continuityRule) Applies(c *evalContext, a *snapshot.Account) bool {
	if a.OwnerID == "" {
		return false
	}
	rep, ok := c.snap.Rep(a.OwnerID)
	return ok && rep.IsActive && rep.IncludeInAssignments
}

func (continuityRule) Choose(c *evalContext, a *snapshot.Account) (string, []string, bool) {
	rep, _ := c.snap.Rep(a.OwnerID)
	d := c.deltas[a.AccountID]
	load := c.loads[rep.RepID]
	if !eligible(rep, load, d, c.bands) {
		return "", []string{"prior owner ineligible under current caps"}, false
	}
	warnings := []string{"geo mismatch: continuity retained outside mapped region"}
	return a.OwnerID, warnings, true
}

// --- P4/RO Residual Balance ---

type residualBalanceRule struct{}

func (residualBalanceRule) ID() Rule { return RuleResidualBalance }

func (residualBalanceRule) Applies(*evalContext, *snapshot.Account) bool { return true }

func (residualBalanceRule) Choose(c *evalContext, a *snapshot.Account) (string, []string, bool) {
	d := c.deltas[a.AccountID]
	var candidates []string
	for _, rep := range c.snap.Reps {
		if eligible(rep, c.loads[rep.RepID], d, c.bands) {
			candidates = append(candidates, rep.RepID)
		}
	}
	candidates = applyPolicyVeto(c, a, candidates)
	if len(candidates) == 0 {
		return "", []string{"no rep admits this account under any hard cap"}, false
	}
	return pickByDistanceThenTieBreak(c, a, candidates, d), []string{"residual balance: no geo/continuity candidate available"}, true
}

// applyPolicyVeto filters candidates through the optional Custom-mode OPA
// policy (spec §4.3 NEW). A nil/unready evaluator allows everyone.
func applyPolicyVeto(c *evalContext, a *snapshot.Account, candidates []string) []string {
	if c.policyEval == nil {
		return candidates
	}
	out := candidates[:0:0]
	for _, repID := range candidates {
		rep, _ := c.snap.Rep(repID)
		in := policy.Input{
			AccountID:    a.AccountID,
			AccountGeo:   a.Geo,
			HQCountry:    a.HQCountry,
			RepID:        repID,
			RepRegion:    rep.Region,
			RepHQCountry: rep.Region,
		}
		allowed, err := c.policyEval.Allow(c.ctx, in)
		if err != nil || allowed {
			out = append(out, repID)
		}
	}
	return out
}

// pickByDistanceThenTieBreak implements P2/P4's candidate ranking: smallest
// distance-to-target, tie-broken by (1) fewer customers, (2) fewer CRE, (3)
// fewer Tier1, (4) stable hash of rep_id (spec §4.3 table).
type scoredCandidate struct {
	repID      string
	dist       float64
	custCount  int
	creCount   int
	tier1Count int
}

// less implements the tie-break order from spec §4.3: distance, then (1)
// fewer customers, (2) fewer CRE, (3) fewer Tier1. The stable hash (4) is
// applied afterward, only among whatever remains tied on all of the above.
func (s scoredCandidate) less(o scoredCandidate) bool {
	if s.dist != o.dist {
		return s.dist < o.dist
	}
	if s.custCount != o.custCount {
		return s.custCount < o.custCount
	}
	if s.creCount != o.creCount {
		return s.creCount < o.creCount
	}
	return s.tier1Count < o.tier1Count
}

func (s scoredCandidate) tiedWith(o scoredCandidate) bool {
	return s.dist == o.dist && s.custCount == o.custCount &&
		s.creCount == o.creCount && s.tier1Count == o.tier1Count
}

func pickByDistanceThenTieBreak(c *evalContext, a *snapshot.Account, candidates []string, d accountDeltas) string {
	scoredCandidates := make([]scoredCandidate, 0, len(candidates))
	for _, repID := range candidates {
		load := c.loads[repID]
		scoredCandidates = append(scoredCandidates, scoredCandidate{
			repID:      repID,
			dist:       distance(load, d, c.bands, c.cfg.BalanceIntensity, c.relaxed),
			custCount:  load.CustomerCount,
			creCount:   load.CRECount,
			tier1Count: load.Tier1Count,
		})
	}

	best := scoredCandidates[0]
	for _, s := range scoredCandidates[1:] {
		if s.less(best) {
			best = s
		}
	}

	// Collect every candidate tied with best on all four ranks, then break
	// the final tie with the deterministic hash (spec §4.3 tie-break 4).
	var tied []string
	for _, s := range scoredCandidates {
		if s.tiedWith(best) {
			tied = append(tied, s.repID)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	return rephash.Least(c.buildID, tied)
}

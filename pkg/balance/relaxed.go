package balance

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
	"github.com/jordigilh/territory-assignment-core/pkg/priority"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

// relax implements spec §4.4 "Relaxed mode": an LP-style reassignment pass
// over every non-fixed proposal, minimizing a weighted deviation objective
// plus a continuity bonus, subject to hard caps. There is no general-purpose
// LP/MIP solver in the example corpus's domain stack (see DESIGN.md); this
// is a deterministic local-search rounding heuristic instead, with the
// objective accumulated in shopspring/decimal. It returns a non-empty warning
// and, undoing any moves it already made, leaves proposals and loads untouched
// if it cannot find a feasible reassignment for some account, so the caller
// can degrade to waterfall mode (spec §4.4, §9 open question).
func relax(s *snapshot.Snapshot, proposals []*priority.Proposal, loads map[string]*priority.RepLoad, arrIndex map[string]accountARR, bands *calibrator.Result, cfg *config.Config) string {
	deltas := priority.ComputeDeltas(s)
	repIDs := sortedRepIDs(loads)

	// Fixed proposals (P0 protected, P1 continuity+geo) are never moved;
	// everything else is a free decision variable.
	movable := make([]*priority.Proposal, 0, len(proposals))
	for _, p := range proposals {
		if p.RuleApplied == priority.RuleProtected || p.RuleApplied == priority.RuleContinuityGeo {
			continue
		}
		movable = append(movable, p)
	}
	sort.Slice(movable, func(i, j int) bool { return movable[i].AccountID < movable[j].AccountID })

	// moves records every reassignment made so far, so a failed pass can be
	// undone and proposals/loads handed back as they came in.
	type move struct {
		p    *priority.Proposal
		from string
		d    priority.AccountLoadDelta
	}
	var moves []move

	for _, p := range movable {
		d, ok := deltas[p.AccountID]
		if !ok {
			continue
		}
		currentRep := p.ProposedOwnerID
		bestRep := ""
		bestObjective := math.Inf(1)

		for _, repID := range repIDs {
			candidateLoad := withoutAccount(loads, repID, currentRep, d)
			if !withinHardCaps(candidateLoad, d, bands) {
				continue
			}
			obj := objective(candidateLoad, d, bands, cfg.BalanceIntensity)
			if repID == p.CurrentOwnerID {
				obj -= continuityBonus(p.RuleApplied)
			}
			if obj < bestObjective {
				bestObjective = obj
				bestRep = repID
			}
		}

		if bestRep == "" {
			for i := len(moves) - 1; i >= 0; i-- {
				m := moves[i]
				moveAccount(loads, m.p.ProposedOwnerID, m.from, m.p.AccountID, m.d)
				m.p.ProposedOwnerID = m.from
			}
			return "infeasible_solver_state: no hard-cap-respecting rep found for account " + p.AccountID
		}
		if bestRep != currentRep {
			moves = append(moves, move{p: p, from: currentRep, d: d})
			moveAccount(loads, currentRep, bestRep, p.AccountID, d)
			p.ProposedOwnerID = bestRep
		}
	}
	return ""
}

func sortedRepIDs(loads map[string]*priority.RepLoad) []string {
	out := make([]string, 0, len(loads))
	for repID := range loads {
		out = append(out, repID)
	}
	sort.Strings(out)
	return out
}

// withoutAccount returns what repID's load would look like with delta added,
// first subtracting delta from fromRep if repID == fromRep (i.e. the account
// already lives there and isn't being "added" twice).
func withoutAccount(loads map[string]*priority.RepLoad, repID, fromRep string, d priority.AccountLoadDelta) priority.RepLoad {
	load := *loads[repID]
	if repID == fromRep {
		return load
	}
	load.CustomerARR += d.CustomerARR
	load.ATR += d.ATR
	load.Pipeline += d.Pipeline
	load.CRECount += d.CRE
	load.Tier1Count += d.Tier1
	load.Tier2Count += d.Tier2
	for i := 0; i < 4; i++ {
		load.QuarterCount[i] += d.Quarter[i]
	}
	return load
}

func withinHardCaps(load priority.RepLoad, d priority.AccountLoadDelta, bands *calibrator.Result) bool {
	checks := []struct {
		dim   calibrator.Dimension
		total float64
	}{
		{calibrator.DimCustomerARR, load.CustomerARR},
		{calibrator.DimATR, load.ATR},
		{calibrator.DimPipeline, load.Pipeline},
		{calibrator.DimCRE, float64(load.CRECount)},
		{calibrator.DimTier1, float64(load.Tier1Count)},
		{calibrator.DimTier2, float64(load.Tier2Count)},
		{calibrator.DimQ1, float64(load.QuarterCount[0])},
		{calibrator.DimQ2, float64(load.QuarterCount[1])},
		{calibrator.DimQ3, float64(load.QuarterCount[2])},
		{calibrator.DimQ4, float64(load.QuarterCount[3])},
	}
	for _, c := range checks {
		b, ok := bands.Bands[c.dim]
		if !ok || b.Disabled {
			continue
		}
		if c.total > b.Max {
			return false
		}
	}
	return true
}

// objective is the weighted soft-dimension deviation term of spec §4.4's
// relaxed-mode objective (ARR/ATR/Pipeline weighted by band width and
// balance intensity); the continuity-bonus term is applied by the caller.
// Accumulated with shopspring/decimal rather than plain float64: the
// objective is re-evaluated once per candidate rep per movable account, and
// the repeated addition/subtraction across a full relaxed-mode pass is
// exactly the kind of accumulated float drift decimal exists to avoid.
func objective(load priority.RepLoad, d priority.AccountLoadDelta, bands *calibrator.Result, intensity config.BalanceIntensity) float64 {
	weight := decimal.NewFromFloat(intensity.Multiplier())
	total := decimal.Zero
	total = total.Add(weight.Mul(deviationTerm(bands, calibrator.DimCustomerARR, load.CustomerARR)))
	total = total.Add(weight.Mul(deviationTerm(bands, calibrator.DimATR, load.ATR)))
	total = total.Add(weight.Mul(deviationTerm(bands, calibrator.DimPipeline, load.Pipeline)))
	f, _ := total.Float64()
	return f
}

func deviationTerm(bands *calibrator.Result, dim calibrator.Dimension, total float64) decimal.Decimal {
	b, ok := bands.Bands[dim]
	if !ok || b.Disabled {
		return decimal.Zero
	}
	width := b.Max - b.Min
	if width <= 0 {
		return decimal.Zero
	}
	diff := decimal.NewFromFloat(total).Sub(decimal.NewFromFloat(b.Target)).Abs()
	return diff.Div(decimal.NewFromFloat(width))
}

// continuityBonus rewards keeping prior owners; lower-ranked priorities
// contribute a smaller bonus (spec §4.4 "Lower-ranked priorities contribute
// smaller bonuses").
func continuityBonus(rule priority.Rule) float64 {
	switch rule {
	case priority.RuleGeography:
		return 0.5
	case priority.RuleContinuity:
		return 0.3
	case priority.RuleResidualBalance:
		return 0.1
	default:
		return 0
	}
}

func moveAccount(loads map[string]*priority.RepLoad, fromRep, toRep, accountID string, d priority.AccountLoadDelta) {
	applyDelta(loads[fromRep], d, -1)
	removeAssigned(loads[fromRep], accountID)
	applyDelta(loads[toRep], d, 1)
	loads[toRep].AssignedAccountIDs = append(loads[toRep].AssignedAccountIDs, accountID)
}

func applyDelta(load *priority.RepLoad, d priority.AccountLoadDelta, sign float64) {
	load.CustomerARR += sign * d.CustomerARR
	load.ATR += sign * d.ATR
	load.Pipeline += sign * d.Pipeline
	load.CRECount += int(sign) * d.CRE
	load.Tier1Count += int(sign) * d.Tier1
	load.Tier2Count += int(sign) * d.Tier2
	for i := 0; i < 4; i++ {
		load.QuarterCount[i] += int(sign) * d.Quarter[i]
	}
}

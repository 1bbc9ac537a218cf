package priority

import (
	"context"
	"sort"

	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
	"github.com/jordigilh/territory-assignment-core/pkg/policy"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

// catalogue is the fixed set of priorities the engine knows how to apply,
// indexed by their stable Rule id (spec §4.3 table).
var catalogue = map[Rule]rule{
	RuleProtected:       protectedRule{},
	RuleContinuityGeo:   continuityGeoRule{},
	RuleGeography:       geographyRule{},
	RuleContinuity:      continuityRule{},
	RuleResidualBalance: residualBalanceRule{},
}

// Run executes the Priority Engine over every parent account in s (spec
// §4.3, component C3): it builds the effective priority order from
// cfg.PriorityConfig, walks accounts in a fixed deterministic order, and
// applies priorities top-down until one admits a candidate.
//
// policyEval is the optional Custom-mode OPA veto (spec §4.3 NEW); pass nil
// when cfg.AssignmentMode is not "Custom".
func Run(ctx context.Context, s *snapshot.Snapshot, bands *calibrator.Result, cfg *config.Config, policyEval *policy.Evaluator) (*Result, error) {
	order := effectivePriorityOrder(cfg)
	relaxed := cfg.OptimizationModel == config.ModelRelaxed

	pipeline := pipelineTotals(s)
	loads := make(map[string]*RepLoad, len(s.Reps))
	for _, r := range s.Reps {
		loads[r.RepID] = newRepLoad()
	}
	deltas := make(map[string]accountDeltas, len(s.Accounts))
	for _, a := range s.Accounts {
		if a.IsParent {
			deltas[a.AccountID] = deltasFor(a, pipeline)
		}
	}

	ec := &evalContext{
		ctx:        ctx,
		snap:       s,
		cfg:        cfg,
		bands:      bands,
		loads:      loads,
		deltas:     deltas,
		buildID:    s.BuildID,
		policyEval: policyEval,
		relaxed:    relaxed,
	}

	result := &Result{RepLoads: loads, Bands: bands}

	for _, a := range parentAccountsInOrder(s) {
		d := deltas[a.AccountID]

		if !d.IsCustomer && a.HierarchyBookingsARR < cfg.SalesToolsARRThreshold && a.ARR < cfg.SalesToolsARRThreshold {
			// Low-ARR prospects route to the sales-tools bucket instead of
			// the waterfall (spec §4.3 "SALES-TOOLS bucket").
			result.SalesToolsPool = append(result.SalesToolsPool, a.AccountID)
			continue
		}

		proposal, conflict := applyWaterfall(ec, order, a, d)
		if conflict != nil {
			result.Conflicts = append(result.Conflicts, conflict)
			continue
		}
		loads[proposal.ProposedOwnerID].apply(d, a.AccountID)
		result.Proposals = append(result.Proposals, proposal)
	}

	return result, nil
}

// applyWaterfall walks the effective priority order for one account,
// returning the first priority's choice that admits a candidate, or a
// CAPACITY-OVERFLOW conflict if none does (spec §4.3 "Failure semantics").
func applyWaterfall(ec *evalContext, order []Rule, a *snapshot.Account, d accountDeltas) (*Proposal, *Conflict) {
	var lastReason string
	for _, id := range order {
		r, ok := catalogue[id]
		if !ok || !r.Applies(ec, a) {
			continue
		}
		repID, warnings, ok := r.Choose(ec, a)
		if !ok {
			if len(warnings) > 0 {
				lastReason = warnings[0]
			}
			continue
		}
		return buildProposal(ec, a, d, r.ID(), repID, warnings), nil
	}

	if lastReason == "" {
		lastReason = "no priority admitted a candidate"
	}
	return nil, &Conflict{AccountID: a.AccountID, Rule: RuleCapacityOverflow, Reason: lastReason}
}

func buildProposal(ec *evalContext, a *snapshot.Account, d accountDeltas, appliedRule Rule, repID string, warnings []string) *Proposal {
	rep, _ := ec.snap.Rep(repID)
	p := &Proposal{
		AccountID:        a.AccountID,
		CurrentOwnerID:   a.OwnerID,
		CurrentOwnerName: a.OwnerName,
		ProposedOwnerID:  repID,
		WarningDetails:   warnings,
		RuleApplied:      appliedRule,
	}
	if rep != nil {
		p.ProposedOwnerName = rep.Name
	}
	p.AssignmentReason = reasonFor(appliedRule)
	p.Confidence = gradeConfidence(ec, a, appliedRule, repID, warnings)
	return p
}

func reasonFor(r Rule) string {
	switch r {
	case RuleProtected:
		return "protected account: retained by designated strategic rep"
	case RuleContinuityGeo:
		return "prior owner retained: continuity and mapped region both satisfied"
	case RuleGeography:
		return "assigned by mapped region"
	case RuleContinuity:
		return "prior owner retained outside mapped region"
	case RuleResidualBalance:
		return "assigned by residual balance: no geography or continuity candidate available"
	default:
		return "assigned"
	}
}

// gradeConfidence implements the confidence grading table (spec §4.3
// "Confidence grading"): High when the proposal carries no warnings and
// changed nothing unusual; Medium for geo mismatch/near-ceiling
// concentration; Low when a protected account's designated rep was
// overridden or the current customer owner changed under P2/RO.
func gradeConfidence(ec *evalContext, a *snapshot.Account, appliedRule Rule, repID string, warnings []string) Confidence {
	if appliedRule == RuleProtected {
		return ConfidenceHigh
	}

	ownerChanged := a.OwnerID != "" && a.OwnerID != repID
	if ownerChanged && a.IsCustomer && (appliedRule == RuleGeography || appliedRule == RuleResidualBalance) {
		return ConfidenceLow
	}

	if renewalConcentrationNearCeiling(ec, repID) {
		return ConfidenceMedium
	}

	if len(warnings) > 0 {
		return ConfidenceMedium
	}
	return ConfidenceHigh
}

// renewalConcentrationNearCeiling reports whether repID's post-assignment
// renewal-quarter concentration sits within 5 percentage points of the
// configured ceiling (spec §4.3 "renewal concentration near ceiling").
func renewalConcentrationNearCeiling(ec *evalContext, repID string) bool {
	ceiling := ec.bands.RenewalConcentrationMax
	if ceiling <= 0 {
		return false
	}
	load := ec.loads[repID]
	total := 0
	max := 0
	for _, c := range load.QuarterCount {
		total += c
		if c > max {
			max = c
		}
	}
	if total == 0 {
		return false
	}
	concentration := float64(max) / float64(total)
	return concentration >= ceiling-0.05 && concentration <= ceiling
}

// effectivePriorityOrder builds the ordered, enabled subset of the catalogue
// the engine applies, per cfg.PriorityConfig (spec §6 "priority_config", §9
// "AssignmentMode Custom" reorders or drops priorities entirely).
func effectivePriorityOrder(cfg *config.Config) []Rule {
	var order []Rule
	for _, entry := range cfg.PriorityConfig {
		if !entry.Enabled {
			continue
		}
		order = append(order, Rule(entry.PriorityID))
	}
	return order
}

// parentAccountsInOrder returns every parent account, sorted by account_id,
// so the waterfall's order (and therefore every mid-flight RepLoad) is
// reproducible across runs regardless of Snapshot.Accounts' original order
// (spec §8 property 6, determinism under input permutation).
func parentAccountsInOrder(s *snapshot.Snapshot) []*snapshot.Account {
	out := make([]*snapshot.Account, 0, len(s.Accounts))
	for _, a := range s.Accounts {
		if a.IsParent {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

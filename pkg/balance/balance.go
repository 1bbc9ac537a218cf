// Package balance implements the Balance Optimizer (spec §4.4, component
// C4): it finalizes the Priority Engine's proposals by correcting greedy
// imbalance, either through post-pass donation repair (waterfall mode) or
// a constrained optimization over soft dimensions (relaxed mode).
package balance

import (
	"math"
	"sort"
	"strconv"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
	"github.com/jordigilh/territory-assignment-core/pkg/priority"
	"github.com/jordigilh/territory-assignment-core/pkg/rephash"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

// maxDonationPasses bounds the waterfall repair loop of each partition: each
// pass donates at most one account, so this is also the max number of
// donations accepted per partition.
const maxDonationPasses = 10000

// Result is the Balance Optimizer's output (spec §4.4 "Result semantics").
type Result struct {
	Proposals              []*priority.Proposal
	Conflicts              []*priority.Conflict
	RebalanceWarnings      []string
	RebalancingSuggestions []string
	DonationsApplied       int
}

// Run finalizes pr's proposals against bands, using cfg.OptimizationModel to
// select waterfall or relaxed mode (spec §4.4). Conflicts are passed through
// unchanged: the Balance Optimizer repairs committed proposals, it never
// resolves a CAPACITY-OVERFLOW conflict the Priority Engine already raised.
// An error is only ever returned for a genuine waterfall-mode infeasibility
// (spec §8 invariant 2): every other dimension that stays out of its target
// band after repair is advisory and surfaces as a RebalancingSuggestion
// instead.
func Run(s *snapshot.Snapshot, pr *priority.Result, bands *calibrator.Result, cfg *config.Config) (*Result, error) {
	proposals := cloneProposals(pr.Proposals)
	loads := cloneLoads(pr.RepLoads)
	deltasByAccount := deltaIndex(s, proposals)

	result := &Result{Conflicts: pr.Conflicts}

	var err error
	if cfg.OptimizationModel == config.ModelRelaxed {
		warning := relax(s, proposals, loads, deltasByAccount, bands, cfg)
		if warning != "" {
			result.RebalanceWarnings = append(result.RebalanceWarnings, warning)
			result.DonationsApplied, err = waterfallRepair(s.BuildID, proposals, loads, deltasByAccount, bands)
		}
	} else {
		result.DonationsApplied, err = waterfallRepair(s.BuildID, proposals, loads, deltasByAccount, bands)
	}
	if err != nil {
		return nil, err
	}

	result.RebalancingSuggestions = suggestRebalancing(loads, bands)
	result.Proposals = proposals
	return result, nil
}

func cloneProposals(in []*priority.Proposal) []*priority.Proposal {
	out := make([]*priority.Proposal, len(in))
	for i, p := range in {
		cp := *p
		out[i] = &cp
	}
	return out
}

func cloneLoads(in map[string]*priority.RepLoad) map[string]*priority.RepLoad {
	out := make(map[string]*priority.RepLoad, len(in))
	for repID, l := range in {
		cp := *l
		out[repID] = &cp
	}
	return out
}

// accountARR carries a proposal's account id alongside its full per-dimension
// load delta: ARR orders donation candidates (spec §4.4 "largest signed
// deviation from target ARR"), while the rest of the delta lets bestRecipient
// check every hard-capped dimension before accepting a candidate, not just
// ARR.
type accountARR struct {
	accountID string
	arr       float64
	delta     priority.AccountLoadDelta
}

func deltaIndex(s *snapshot.Snapshot, proposals []*priority.Proposal) map[string]accountARR {
	deltas := priority.ComputeDeltas(s)
	out := make(map[string]accountARR, len(proposals))
	for _, p := range proposals {
		d, ok := deltas[p.AccountID]
		if !ok {
			continue
		}
		out[p.AccountID] = accountARR{accountID: p.AccountID, arr: d.CustomerARR, delta: d}
	}
	return out
}

// waterfallRepair implements spec §4.4 "Waterfall mode": partition accounts
// by the priority that selected them, then within each partition donate
// ascending-ARR accounts from over-target reps to the under-target rep that
// minimizes post-swap distance, accepting a donation only if it strictly
// improves the global L1 ARR deviation.
func waterfallRepair(buildID string, proposals []*priority.Proposal, loads map[string]*priority.RepLoad, arrIndex map[string]accountARR, bands *calibrator.Result) (int, error) {
	target, ok := arrTarget(bands)
	if !ok {
		return 0, nil
	}

	partitions := partitionByRule(proposals)
	applied := 0

	for _, rule := range orderedPartitionKeys(partitions) {
		if rule == priority.RuleProtected || rule == priority.RuleContinuityGeo {
			// P0/P1 accounts are never donated (spec §4.4), but their
			// partition still participates in repair as a no-op pass.
			continue
		}
		n, err := repairPartition(buildID, partitions[rule], loads, arrIndex, bands, target)
		applied += n
		if err != nil {
			return applied, err
		}
	}
	return applied, nil
}

func arrTarget(bands *calibrator.Result) (float64, bool) {
	b, ok := bands.Bands[calibrator.DimCustomerARR]
	if !ok || b.Disabled {
		return 0, false
	}
	return b.Target, true
}

func partitionByRule(proposals []*priority.Proposal) map[priority.Rule][]*priority.Proposal {
	out := make(map[priority.Rule][]*priority.Proposal)
	for _, p := range proposals {
		out[p.RuleApplied] = append(out[p.RuleApplied], p)
	}
	return out
}

func orderedPartitionKeys(partitions map[priority.Rule][]*priority.Proposal) []priority.Rule {
	fixed := []priority.Rule{
		priority.RuleProtected, priority.RuleContinuityGeo, priority.RuleGeography,
		priority.RuleContinuity, priority.RuleResidualBalance,
	}
	var out []priority.Rule
	for _, r := range fixed {
		if _, ok := partitions[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// repairPartition donates within this partition until no strictly-improving
// donation remains. A rep that is itself above the calibrated customer_arr
// max, and whose smallest donatable account is blocked by a hard cap on every
// under-target rep (spec invariant 2), is reported as an infeasible_balance
// error rather than silently skipped. A blocked account on a rep that is over
// target but within its max is not an infeasibility; a partition that simply runs out of
// strictly-improving donations (the common case, ARR rarely divides evenly
// across reps) returns cleanly, leaving the residual imbalance to
// suggestRebalancing.
func repairPartition(buildID string, partition []*priority.Proposal, loads map[string]*priority.RepLoad, arrIndex map[string]accountARR, bands *calibrator.Result, target float64) (int, error) {
	applied := 0
	for pass := 0; pass < maxDonationPasses; pass++ {
		overReps := repsByDeviation(loads, target, buildID)
		if len(overReps) == 0 {
			return applied, nil
		}

		donated := false
		blockedByHardCap := false
		var blockedRep string
		for _, overRep := range overReps {
			if loads[overRep].CustomerARR <= target {
				break // no more over-target reps remain
			}
			account, ok := smallestDonatable(partition, loads[overRep], arrIndex)
			if !ok {
				continue
			}
			underRep, ok := bestRecipient(loads, overRep, account, target, bands, buildID)
			if !ok {
				if loads[overRep].CustomerARR > bands.Bands[calibrator.DimCustomerARR].Max {
					blockedByHardCap = true
					blockedRep = overRep
				}
				continue
			}
			if !improvesGlobalDeviation(loads, overRep, underRep, account.arr, target) {
				continue
			}
			transfer(partition, loads, overRep, underRep, account.accountID, account.arr)
			applied++
			donated = true
			break
		}
		if !donated {
			if blockedByHardCap {
				return applied, apperrors.NewInfeasibleBalance(string(calibrator.DimCustomerARR), blockedRep)
			}
			return applied, nil
		}
	}
	return applied, nil
}

// repsByDeviation sorts reps carrying this partition by descending ARR
// deviation from target, most-over first (spec §4.4). Ties are broken by
// pkg/rephash's deterministic build-seeded order rather than Go's randomized
// map iteration, so a tie never depends on map order (spec §4.3, §8).
func repsByDeviation(loads map[string]*priority.RepLoad, target float64, buildID string) []string {
	var candidates []string
	for repID, l := range loads {
		if l.CustomerARR > target {
			candidates = append(candidates, repID)
		}
	}
	ordered := rephash.Order(buildID, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return loads[ordered[i]].CustomerARR-target > loads[ordered[j]].CustomerARR-target
	})
	return ordered
}

// smallestDonatable finds the smallest-ARR account currently owned by
// overRep within this partition (spec §4.4 "in ascending ARR").
func smallestDonatable(partition []*priority.Proposal, load *priority.RepLoad, arrIndex map[string]accountARR) (accountARR, bool) {
	var candidates []accountARR
	owned := make(map[string]bool, len(load.AssignedAccountIDs))
	for _, id := range load.AssignedAccountIDs {
		owned[id] = true
	}
	for _, p := range partition {
		if !owned[p.AccountID] {
			continue
		}
		if a, ok := arrIndex[p.AccountID]; ok {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return accountARR{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].arr < candidates[j].arr })
	return candidates[0], true
}

// bestRecipient picks the under-target rep that minimizes distance-to-target
// after receiving account (spec §4.4), rejecting any candidate that would
// push a hard-capped dimension (CRE/Tier1/Tier2/quarter/ATR/Pipeline/ARR)
// past its calibrated max (spec invariant 2), mirroring relaxed.go's
// withinHardCaps so waterfall repair enforces the same caps relaxed mode
// does. Ties are broken by pkg/rephash's deterministic build-seeded order,
// never by map iteration order (spec §4.3, §8).
func bestRecipient(loads map[string]*priority.RepLoad, excludeRep string, account accountARR, target float64, bands *calibrator.Result, buildID string) (string, bool) {
	candidates := make([]string, 0, len(loads))
	for repID := range loads {
		candidates = append(candidates, repID)
	}

	best := ""
	bestDist := math.Inf(1)
	for _, repID := range rephash.Order(buildID, candidates) {
		if repID == excludeRep {
			continue
		}
		l := loads[repID]
		if l.CustomerARR >= target {
			continue
		}
		candidate := *l
		applyDelta(&candidate, account.delta, 1)
		if !withinHardCaps(candidate, account.delta, bands) {
			continue
		}
		dist := math.Abs(l.CustomerARR + account.arr - target)
		if dist < bestDist {
			bestDist = dist
			best = repID
		}
	}
	return best, best != ""
}

func improvesGlobalDeviation(loads map[string]*priority.RepLoad, fromRep, toRep string, arr, target float64) bool {
	before := globalDeviation(loads, target)
	after := before
	after -= math.Abs(loads[fromRep].CustomerARR - target)
	after -= math.Abs(loads[toRep].CustomerARR - target)
	after += math.Abs(loads[fromRep].CustomerARR - arr - target)
	after += math.Abs(loads[toRep].CustomerARR + arr - target)
	return after < before
}

func globalDeviation(loads map[string]*priority.RepLoad, target float64) float64 {
	total := 0.0
	for _, l := range loads {
		total += math.Abs(l.CustomerARR - target)
	}
	return total
}

func transfer(partition []*priority.Proposal, loads map[string]*priority.RepLoad, fromRep, toRep, accountID string, arr float64) {
	loads[fromRep].CustomerARR -= arr
	loads[toRep].CustomerARR += arr

	removeAssigned(loads[fromRep], accountID)
	loads[toRep].AssignedAccountIDs = append(loads[toRep].AssignedAccountIDs, accountID)

	for _, p := range partition {
		if p.AccountID == accountID {
			p.ProposedOwnerID = toRep
			p.WarningDetails = append(p.WarningDetails, "balance repair: reassigned from over-target rep")
			if p.Confidence == priority.ConfidenceHigh {
				p.Confidence = priority.ConfidenceMedium
			}
			break
		}
	}
}

func removeAssigned(load *priority.RepLoad, accountID string) {
	for i, id := range load.AssignedAccountIDs {
		if id == accountID {
			load.AssignedAccountIDs = append(load.AssignedAccountIDs[:i], load.AssignedAccountIDs[i+1:]...)
			return
		}
	}
}

// suggestRebalancing lists every rep still outside the calibrated
// customer_arr band once repair is done (spec §4.5 "rebalancingSuggestions"):
// residual deviation repair could not or need not fully close, left for a
// future manual or next-build pass rather than treated as a repair failure.
// Sorted by rep id so the result is deterministic without depending on map
// iteration order (spec §4.3).
func suggestRebalancing(loads map[string]*priority.RepLoad, bands *calibrator.Result) []string {
	b, ok := bands.Bands[calibrator.DimCustomerARR]
	if !ok || b.Disabled {
		return nil
	}

	repIDs := make([]string, 0, len(loads))
	for repID := range loads {
		repIDs = append(repIDs, repID)
	}
	sort.Strings(repIDs)

	var suggestions []string
	for _, repID := range repIDs {
		arr := loads[repID].CustomerARR
		switch {
		case arr > b.Max:
			suggestions = append(suggestions, "rep "+repID+" carries "+strconv.FormatFloat(arr, 'f', 2, 64)+
				" customer ARR, above the calibrated max "+strconv.FormatFloat(b.Max, 'f', 2, 64)+"; consider manual rebalancing")
		case arr < b.Min:
			suggestions = append(suggestions, "rep "+repID+" carries "+strconv.FormatFloat(arr, 'f', 2, 64)+
				" customer ARR, below the calibrated min "+strconv.FormatFloat(b.Min, 'f', 2, 64)+"; consider manual rebalancing")
		}
	}
	return suggestions
}

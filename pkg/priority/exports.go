package priority

import "github.com/jordigilh/territory-assignment-core/pkg/snapshot"

// AccountLoadDelta is the exported form of accountDeltas, used by pkg/balance
// to recompute per-dimension contributions without duplicating the rollup
// logic the Priority Engine already performs (spec §4.3/§4.4 share one
// definition of "what an account contributes to a rep's load").
type AccountLoadDelta struct {
	CustomerARR float64
	ATR         float64
	Pipeline    float64
	CRE         int
	Tier1       int
	Tier2       int
	Quarter     [4]int
	IsCustomer  bool
}

// ComputeDeltas returns every parent account's load contribution, keyed by
// account id (spec §4.4 "The model must admit the P0/P1 choices... as
// fixed", which requires the same per-account deltas the waterfall pass used).
func ComputeDeltas(s *snapshot.Snapshot) map[string]AccountLoadDelta {
	pipeline := pipelineTotals(s)
	out := make(map[string]AccountLoadDelta, len(s.Accounts))
	for _, a := range s.Accounts {
		if !a.IsParent {
			continue
		}
		d := deltasFor(a, pipeline)
		out[a.AccountID] = AccountLoadDelta(d)
	}
	return out
}

package priority

import (
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

// accountDeltas is how much a parent account would add to each balanced
// dimension if assigned. Customer accounts contribute ARR/ATR/tier/quarter
// dimensions; prospect accounts contribute the pipeline dimension (spec
// §4.2, §4.3).
type accountDeltas struct {
	CustomerARR float64
	ATR         float64
	Pipeline    float64
	CRE         int
	Tier1       int
	Tier2       int
	Quarter     [4]int
	IsCustomer  bool
}

// pipelineTotals sums prospect opportunities' net_arr per parent account,
// mirroring the ATR rollup the loader performs for customer ATR (spec §3
// Opportunity "net_arr (for prospect pipeline)").
func pipelineTotals(s *snapshot.Snapshot) map[string]float64 {
	totals := make(map[string]float64)
	accountToParent := make(map[string]string, len(s.Accounts))
	for _, a := range s.Accounts {
		if a.IsParent {
			accountToParent[a.AccountID] = a.AccountID
		}
	}
	for parentID, children := range s.Children {
		for _, childID := range children {
			accountToParent[childID] = parentID
		}
	}
	for _, opp := range s.Opportunities {
		parentID, ok := accountToParent[opp.AccountID]
		if !ok {
			continue
		}
		parent, _ := s.Account(parentID)
		if parent.IsCustomer {
			continue
		}
		totals[parentID] += opp.NetARR
	}
	return totals
}

func deltasFor(a *snapshot.Account, pipeline map[string]float64) accountDeltas {
	d := accountDeltas{IsCustomer: a.IsCustomer, CRE: a.CRECount}
	if a.IsCustomer {
		d.CustomerARR = a.HierarchyBookingsARR
		d.ATR = a.ATR
	} else {
		d.Pipeline = pipeline[a.AccountID]
	}
	switch a.ExpansionTier {
	case snapshot.Tier1:
		d.Tier1 = 1
	case snapshot.Tier2:
		d.Tier2 = 1
	}
	switch a.RenewalQuarter {
	case snapshot.Q1:
		d.Quarter[0] = 1
	case snapshot.Q2:
		d.Quarter[1] = 1
	case snapshot.Q3:
		d.Quarter[2] = 1
	case snapshot.Q4:
		d.Quarter[3] = 1
	}
	return d
}

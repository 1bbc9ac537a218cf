// Package priority implements the Priority Engine (spec §4.3, component
// C3): for each eligible parent account, it evaluates an ordered list of
// priorities and selects a candidate owner, stamping the winning rule,
// confidence grade, and any warnings onto a Proposal.
package priority

import (
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
)

// Rule is the stable priority id from the catalogue (spec §4.3 table).
type Rule string

const (
	RuleProtected        Rule = "P0"
	RuleContinuityGeo    Rule = "P1"
	RuleGeography        Rule = "P2"
	RuleContinuity       Rule = "P3"
	RuleResidualBalance  Rule = "RO"
	RuleSalesTools       Rule = "SALES-TOOLS"
	RuleCapacityOverflow Rule = "CAPACITY-OVERFLOW"
)

// Confidence is the grade assigned after a proposal is formed (spec §4.3
// "Confidence grading").
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Proposal is the candidate assignment produced by the Priority Engine for
// one parent account (spec §3 "Assignment Proposal").
type Proposal struct {
	AccountID         string
	CurrentOwnerID    string
	CurrentOwnerName  string
	ProposedOwnerID   string
	ProposedOwnerName string
	RuleApplied       Rule
	Confidence        Confidence
	AssignmentReason  string
	WarningDetails    []string
}

// Conflict is an account for which no priority admitted a candidate (spec
// §4.3 "Failure semantics").
type Conflict struct {
	AccountID string
	Rule      Rule
	Reason    string
}

// RepLoad is the running per-rep accumulation of assigned dimensions,
// mutated as the waterfall assigns accounts in priority order. Every
// eligibility check and distance computation reads this mid-flight state,
// never the final snapshot totals.
type RepLoad struct {
	CustomerARR  float64
	ATR          float64
	Pipeline     float64
	CRECount     int
	Tier1Count   int
	Tier2Count   int
	QuarterCount [4]int // index 0..3 = Q1..Q4
	CustomerCount int
	AssignedAccountIDs []string
}

func newRepLoad() *RepLoad { return &RepLoad{} }

// apply adds an account's deltas onto a rep's running load.
func (rl *RepLoad) apply(d accountDeltas, accountID string) {
	rl.CustomerARR += d.CustomerARR
	rl.ATR += d.ATR
	rl.Pipeline += d.Pipeline
	rl.CRECount += d.CRE
	rl.Tier1Count += d.Tier1
	rl.Tier2Count += d.Tier2
	for i := 0; i < 4; i++ {
		rl.QuarterCount[i] += d.Quarter[i]
	}
	if d.IsCustomer {
		rl.CustomerCount++
	}
	rl.AssignedAccountIDs = append(rl.AssignedAccountIDs, accountID)
}

// Result is the full output of a Priority Engine pass.
type Result struct {
	Proposals       []*Proposal
	Conflicts       []*Conflict
	SalesToolsPool  []string // account ids routed to the sales-tools bucket
	RepLoads        map[string]*RepLoad
	Bands           *calibrator.Result
}

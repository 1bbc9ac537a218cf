// Package policy evaluates the optional Rego veto consulted by the Priority
// Engine when assignment_mode is Custom (spec §4.3 NEW "Custom ordering via
// OPA"). It is an additional eligibility predicate layered on top of the
// hard-cap eligibility rule in spec §4.3; it never replaces the waterfall
// ordering.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Input is the fact base handed to the Rego policy for one candidate
// (account, rep) pair.
type Input struct {
	AccountID    string            `json:"account_id"`
	AccountGeo   string            `json:"account_geo"`
	HQCountry    string            `json:"hq_country"`
	RepID        string            `json:"rep_id"`
	RepRegion    string            `json:"rep_region"`
	RepHQCountry string            `json:"rep_hq_country"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Evaluator evaluates a compiled Rego bundle's "allow" rule for a candidate.
// A zero-value Evaluator (no bundle loaded) always allows, so a missing or
// failing policy degrades to "no additional veto" rather than failing the
// run (spec §4.3, §7 non-fatal-by-default stance).
type Evaluator struct {
	query rego.PreparedEvalQuery
	ready bool
}

// Load compiles a Rego module from source. The module must define
// `data.territory.allow` as a boolean.
func Load(ctx context.Context, regoModule string) (*Evaluator, error) {
	query, err := rego.New(
		rego.Query("data.territory.allow"),
		rego.Module("territory.rego", regoModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	return &Evaluator{query: query, ready: true}, nil
}

// Allow evaluates the policy for one candidate. It returns (true, nil) when
// no policy was loaded.
func (e *Evaluator) Allow(ctx context.Context, in Input) (bool, error) {
	if e == nil || !e.ready {
		return true, nil
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return true, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return true, nil
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return true, nil
	}
	return allowed, nil
}

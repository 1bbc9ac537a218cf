// Package calibrator implements the Threshold Calibrator (spec §4.2,
// component C2): given a Snapshot, it computes per-rep target/min/max bands
// for the six balanced dimensions from population totals and configured
// variance.
package calibrator

import (
	"math"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

// Dimension is one of the six balanced dimensions named in spec §2/§4.2.
type Dimension string

const (
	DimCustomerARR Dimension = "customer_arr"
	DimATR         Dimension = "atr"
	DimPipeline    Dimension = "pipeline"
	DimCRE         Dimension = "cre"
	DimTier1       Dimension = "tier1"
	DimTier2       Dimension = "tier2"
	DimQ1          Dimension = "q1"
	DimQ2          Dimension = "q2"
	DimQ3          Dimension = "q3"
	DimQ4          Dimension = "q4"
)

const countDimensionVariance = 0.20

// Band is a calibrated target/min/max triple for one dimension. Disabled is
// set when the population total for the dimension is zero (spec §4.2 edge
// case "T_d = 0 yields zeros and disables that dimension in balancing").
type Band struct {
	Target   float64
	Min      float64
	Max      float64
	Disabled bool
}

// Result is the full calibration output for a build.
type Result struct {
	Bands                    map[Dimension]Band
	RenewalConcentrationMax  float64 // absolute % ceiling, passed through unchanged (spec §4.2)
	RepCount                 int     // N
}

// Calibrate computes per-rep bands for every dimension (spec §4.2).
func Calibrate(s *snapshot.Snapshot, cfg *config.Config) (*Result, error) {
	n := calibrationPopulation(s)
	if n == 0 {
		return nil, apperrors.NewInsufficientReps()
	}
	nf := float64(n)

	totals, maxByAccount := populationTotals(s)

	result := &Result{
		Bands:                   make(map[Dimension]Band, 10),
		RenewalConcentrationMax: cfg.RenewalConcentrationMaxPct,
		RepCount:                n,
	}

	result.Bands[DimCustomerARR] = band(totals[DimCustomerARR], nf, cfg.CustomerARR.VariancePct, maxByAccount[DimCustomerARR], true)
	result.Bands[DimATR] = band(totals[DimATR], nf, cfg.CustomerATR.VariancePct, maxByAccount[DimATR], true)
	result.Bands[DimPipeline] = band(totals[DimPipeline], nf, cfg.Prospect.VariancePct, maxByAccount[DimPipeline], true)
	result.Bands[DimCRE] = creBand(totals[DimCRE], nf, maxByAccount[DimCRE])
	result.Bands[DimTier1] = band(totals[DimTier1], nf, countDimensionVariance, 0, false)
	result.Bands[DimTier2] = band(totals[DimTier2], nf, countDimensionVariance, 0, false)
	result.Bands[DimQ1] = band(totals[DimQ1], nf, countDimensionVariance, 0, false)
	result.Bands[DimQ2] = band(totals[DimQ2], nf, countDimensionVariance, 0, false)
	result.Bands[DimQ3] = band(totals[DimQ3], nf, countDimensionVariance, 0, false)
	result.Bands[DimQ4] = band(totals[DimQ4], nf, countDimensionVariance, 0, false)

	applyOverrides(result, cfg)
	return result, nil
}

// calibrationPopulation is N: active, included, non-strategic reps with a
// non-empty region (spec §4.2 "Algorithm").
func calibrationPopulation(s *snapshot.Snapshot) int {
	n := 0
	for _, r := range s.Reps {
		if r.IsActive && r.IncludeInAssignments && !r.IsStrategicRep && r.Region != "" {
			n++
		}
	}
	return n
}

func populationTotals(s *snapshot.Snapshot) (totals map[Dimension]float64, maxByAccount map[Dimension]float64) {
	totals = make(map[Dimension]float64, 10)
	maxByAccount = make(map[Dimension]float64, 3)

	for _, a := range s.Accounts {
		if !a.IsParent {
			continue
		}
		if a.IsCustomer {
			totals[DimCustomerARR] += a.HierarchyBookingsARR
			totals[DimATR] += a.ATR
			if a.HierarchyBookingsARR > maxByAccount[DimCustomerARR] {
				maxByAccount[DimCustomerARR] = a.HierarchyBookingsARR
			}
			if a.ATR > maxByAccount[DimATR] {
				maxByAccount[DimATR] = a.ATR
			}
			switch a.RenewalQuarter {
			case snapshot.Q1:
				totals[DimQ1]++
			case snapshot.Q2:
				totals[DimQ2]++
			case snapshot.Q3:
				totals[DimQ3]++
			case snapshot.Q4:
				totals[DimQ4]++
			}
		}

		totals[DimCRE] += float64(a.CRECount)
		if float64(a.CRECount) > maxByAccount[DimCRE] {
			maxByAccount[DimCRE] = float64(a.CRECount)
		}

		switch a.ExpansionTier {
		case snapshot.Tier1:
			totals[DimTier1]++
		case snapshot.Tier2:
			totals[DimTier2]++
		}
	}

	for _, opp := range s.Opportunities {
		parentID, ok := parentOf(s, opp.AccountID)
		if !ok {
			continue
		}
		parent, _ := s.Account(parentID)
		if parent.IsCustomer {
			continue // pipeline is the prospect-side dimension
		}
		totals[DimPipeline] += opp.NetARR
		if opp.NetARR > maxByAccount[DimPipeline] {
			maxByAccount[DimPipeline] = opp.NetARR
		}
	}

	return totals, maxByAccount
}

func parentOf(s *snapshot.Snapshot, accountID string) (string, bool) {
	a, ok := s.Account(accountID)
	if !ok {
		return "", false
	}
	if a.IsParent {
		return a.AccountID, true
	}
	if a.IsVirtualParent {
		return "", false
	}
	return a.UltimateParentID, true
}

// band computes target/min/max for a dimension (spec §4.2). When
// enforceAccountFeasibility is true, max is widened so the largest single
// account still fits (spec §4.2 "the largest single account must fit").
func band(total, n, variance, maxAccount float64, enforceAccountFeasibility bool) Band {
	if total == 0 {
		return Band{Disabled: true}
	}
	target := total / n
	min := target * (1 - variance)
	max := target * (1 + variance)
	if enforceAccountFeasibility {
		if feasibilityFloor := 1.2 * maxAccount; feasibilityFloor > max {
			max = feasibilityFloor
		}
	}
	return Band{Target: target, Min: min, Max: max}
}

// creBand implements the CRE-specific max formula (spec §4.2): "max(ceil(avg
// · 1.2), ceil(max_account_cre · 1.2))".
func creBand(total, n, maxAccount float64) Band {
	if total == 0 {
		return Band{Disabled: true}
	}
	avg := total / n
	min := avg * (1 - countDimensionVariance)
	fromAvg := math.Ceil(avg * 1.2)
	fromMax := math.Ceil(maxAccount * 1.2)
	max := fromAvg
	if fromMax > max {
		max = fromMax
	}
	return Band{Target: avg, Min: min, Max: max}
}

// applyOverrides implements "Explicit per-field *_override values take
// precedence when present" (spec §4.2). max_cre_per_rep is treated as the
// override for the CRE band's max (spec §6: single-valued config entry that
// supersedes the calibrated recommendation when set).
func applyOverrides(result *Result, cfg *config.Config) {
	applyBandOverride(result.Bands, DimCustomerARR, cfg.CustomerARR)
	applyBandOverride(result.Bands, DimATR, cfg.CustomerATR)
	applyBandOverride(result.Bands, DimPipeline, cfg.Prospect)

	if cfg.MaxCREPerRep > 0 {
		b := result.Bands[DimCRE]
		b.Max = float64(cfg.MaxCREPerRep)
		b.Disabled = false
		result.Bands[DimCRE] = b
	}
}

func applyBandOverride(bands map[Dimension]Band, d Dimension, cfg config.BandConfig) {
	b, ok := bands[d]
	if !ok {
		return
	}
	if cfg.TargetOverr != nil {
		b.Target = *cfg.TargetOverr
	}
	if cfg.MinOverride != nil {
		b.Min = *cfg.MinOverride
	}
	if cfg.MaxOverride != nil {
		b.Max = *cfg.MaxOverride
	}
	bands[d] = b
}

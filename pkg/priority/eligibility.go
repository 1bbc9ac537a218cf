package priority

import (
	"math"

	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

// eligible reports whether rep can take on account's deltas without pushing
// any hard-capped dimension above its configured max (spec §4.3
// "Eligibility"). Strategic reps are exempt from every cap.
func eligible(rep *snapshot.Rep, load *RepLoad, d accountDeltas, bands *calibrator.Result) bool {
	if !rep.IsActive || !rep.IncludeInAssignments {
		return false
	}
	if rep.IsStrategicRep {
		return true
	}

	checks := []struct {
		dim     calibrator.Dimension
		current float64
		delta   float64
	}{
		{calibrator.DimCustomerARR, load.CustomerARR, d.CustomerARR},
		{calibrator.DimATR, load.ATR, d.ATR},
		{calibrator.DimPipeline, load.Pipeline, d.Pipeline},
		{calibrator.DimCRE, float64(load.CRECount), float64(d.CRE)},
		{calibrator.DimTier1, float64(load.Tier1Count), float64(d.Tier1)},
		{calibrator.DimTier2, float64(load.Tier2Count), float64(d.Tier2)},
		{calibrator.DimQ1, float64(load.QuarterCount[0]), float64(d.Quarter[0])},
		{calibrator.DimQ2, float64(load.QuarterCount[1]), float64(d.Quarter[1])},
		{calibrator.DimQ3, float64(load.QuarterCount[2]), float64(d.Quarter[2])},
		{calibrator.DimQ4, float64(load.QuarterCount[3]), float64(d.Quarter[3])},
	}
	for _, c := range checks {
		b, ok := bands.Bands[c.dim]
		if !ok || b.Disabled {
			continue
		}
		if c.current+c.delta > b.Max {
			return false
		}
	}
	return true
}

// distance computes the weighted L1 distance-to-target a candidate rep
// would have after taking on account's deltas (spec §4.3
// "Distance-to-target"). ARR is always weighted; ATR and Pipeline are only
// weighted in relaxed mode. Tier/quarter/CRE counts are hard caps only and
// never contribute to the distance.
func distance(load *RepLoad, d accountDeltas, bands *calibrator.Result, intensity config.BalanceIntensity, relaxed bool) float64 {
	weight := intensity.Multiplier()
	total := 0.0

	total += weight * weightedTerm(bands, calibrator.DimCustomerARR, load.CustomerARR, d.CustomerARR)
	if relaxed {
		total += weight * weightedTerm(bands, calibrator.DimATR, load.ATR, d.ATR)
		total += weight * weightedTerm(bands, calibrator.DimPipeline, load.Pipeline, d.Pipeline)
	}
	return total
}

func weightedTerm(bands *calibrator.Result, dim calibrator.Dimension, current, delta float64) float64 {
	b, ok := bands.Bands[dim]
	if !ok || b.Disabled {
		return 0
	}
	width := b.Max - b.Min
	if width <= 0 {
		return 0
	}
	return math.Abs(current+delta-b.Target) / width
}

package balance

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
	"github.com/jordigilh/territory-assignment-core/pkg/priority"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

func TestBalance(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Balance Suite")
}

func waterfallCfg() *config.Config {
	return &config.Config{
		OptimizationModel: config.ModelWaterfall,
		BalanceIntensity:  config.IntensityNormal,
	}
}

func bandsWithARRTarget(target, maxVal float64) *calibrator.Result {
	return &calibrator.Result{
		Bands: map[calibrator.Dimension]calibrator.Band{
			calibrator.DimCustomerARR: {Target: target, Min: target * 0.8, Max: maxVal},
		},
	}
}

func arrDelta(accountID string, arr float64) accountARR {
	return accountARR{accountID: accountID, arr: arr, delta: priority.AccountLoadDelta{CustomerARR: arr, IsCustomer: true}}
}

var _ = Describe("Run (waterfall mode)", func() {
	It("donates accounts from an over-target rep to an under-target rep", func() {
		proposals := []*priority.Proposal{
			{AccountID: "A1", ProposedOwnerID: "RepOver", RuleApplied: priority.RuleGeography},
			{AccountID: "A2", ProposedOwnerID: "RepOver", RuleApplied: priority.RuleGeography},
			{AccountID: "A3", ProposedOwnerID: "RepUnder", RuleApplied: priority.RuleGeography},
		}
		loads := map[string]*priority.RepLoad{
			"RepOver":  {CustomerARR: 180000, AssignedAccountIDs: []string{"A1", "A2"}},
			"RepUnder": {CustomerARR: 20000, AssignedAccountIDs: []string{"A3"}},
		}
		arrIndex := map[string]accountARR{
			"A1": arrDelta("A1", 130000),
			"A2": arrDelta("A2", 50000),
			"A3": arrDelta("A3", 20000),
		}
		// Max is set high enough that the second pass's only remaining
		// donation (A1) isn't hard-cap blocked, so repair stops because it
		// would overshoot the target rather than because of infeasibility.
		bands := bandsWithARRTarget(100000, 260000)

		applied, err := waterfallRepair("build-1", proposals, loads, arrIndex, bands)
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeNumerically(">", 0))

		var a2 *priority.Proposal
		for _, p := range proposals {
			if p.AccountID == "A2" {
				a2 = p
			}
		}
		Expect(a2.ProposedOwnerID).To(Equal("RepUnder"))
	})

	It("never donates P0 or P1 accounts", func() {
		proposals := []*priority.Proposal{
			{AccountID: "A1", ProposedOwnerID: "RepOver", RuleApplied: priority.RuleProtected},
		}
		loads := map[string]*priority.RepLoad{
			"RepOver":  {CustomerARR: 500000, AssignedAccountIDs: []string{"A1"}},
			"RepUnder": {CustomerARR: 0},
		}
		arrIndex := map[string]accountARR{"A1": arrDelta("A1", 500000)}
		bands := bandsWithARRTarget(100000, 150000)

		applied, err := waterfallRepair("build-1", proposals, loads, arrIndex, bands)
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(Equal(0))
		Expect(proposals[0].ProposedOwnerID).To(Equal("RepOver"))
	})

	It("reports infeasible_balance when every under-target rep is blocked by a hard cap", func() {
		proposals := []*priority.Proposal{
			{AccountID: "A1", ProposedOwnerID: "RepOver", RuleApplied: priority.RuleGeography},
		}
		loads := map[string]*priority.RepLoad{
			"RepOver":  {CustomerARR: 500000, AssignedAccountIDs: []string{"A1"}},
			"RepUnder": {CustomerARR: 0},
		}
		arrIndex := map[string]accountARR{"A1": arrDelta("A1", 500000)}
		bands := bandsWithARRTarget(100000, 150000)

		applied, err := waterfallRepair("build-1", proposals, loads, arrIndex, bands)
		Expect(err).To(HaveOccurred())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeInfeasibleBalance)).To(BeTrue())
		Expect(applied).To(Equal(0))
	})

	It("passes conflicts through unchanged", func() {
		pr := &priority.Result{
			Conflicts: []*priority.Conflict{{AccountID: "A9", Rule: priority.RuleCapacityOverflow}},
			RepLoads:  map[string]*priority.RepLoad{},
		}
		result, err := Run(&snapshot.Snapshot{}, pr, bandsWithARRTarget(100000, 150000), waterfallCfg())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Conflicts).To(HaveLen(1))
	})
})

var _ = Describe("suggestRebalancing", func() {
	It("flags reps left outside the calibrated band after repair", func() {
		loads := map[string]*priority.RepLoad{
			"RepHigh": {CustomerARR: 200000},
			"RepLow":  {CustomerARR: 10000},
			"RepMid":  {CustomerARR: 100000},
		}
		bands := bandsWithARRTarget(100000, 150000)

		suggestions := suggestRebalancing(loads, bands)
		Expect(suggestions).To(HaveLen(2))
		Expect(suggestions[0]).To(ContainSubstring("RepHigh"))
		Expect(suggestions[1]).To(ContainSubstring("RepLow"))
	})

	It("returns nothing when the customer_arr band is disabled", func() {
		loads := map[string]*priority.RepLoad{"RepHigh": {CustomerARR: 999999}}
		bands := &calibrator.Result{Bands: map[calibrator.Dimension]calibrator.Band{
			calibrator.DimCustomerARR: {Disabled: true},
		}}
		Expect(suggestRebalancing(loads, bands)).To(BeEmpty())
	})
})

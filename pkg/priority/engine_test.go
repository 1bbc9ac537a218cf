package priority

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

func TestPriority(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Priority Suite")
}

func baseCfg() *config.Config {
	return &config.Config{
		CustomerARR:       config.BandConfig{VariancePct: 0.2},
		CustomerATR:       config.BandConfig{VariancePct: 0.2},
		Prospect:          config.BandConfig{VariancePct: 0.2},
		OptimizationModel: config.ModelWaterfall,
		BalanceIntensity:  config.IntensityNormal,
		TerritoryMappings: map[string]string{"US-WEST": "AMER", "US-EAST": "AMER"},
		PriorityConfig: []config.PriorityEntry{
			{PriorityID: "P0", Enabled: true},
			{PriorityID: "P1", Enabled: true},
			{PriorityID: "P2", Enabled: true},
			{PriorityID: "P3", Enabled: true},
			{PriorityID: "RO", Enabled: true},
		},
	}
}

func reps() []*snapshot.Rep {
	return []*snapshot.Rep{
		{RepID: "RepA", Name: "Rep A", IsActive: true, IncludeInAssignments: true, Region: "AMER"},
		{RepID: "RepB", Name: "Rep B", IsActive: true, IncludeInAssignments: true, Region: "AMER"},
	}
}

var _ = Describe("Run", func() {
	It("retains continuity+geo when prior owner matches mapped region", func() {
		s, err := snapshot.Load(&snapshot.RawSnapshot{
			Reps: reps(),
			Accounts: []*snapshot.Account{
				{AccountID: "A1", OwnerID: "RepA", SalesTerritory: "US-WEST", ARR: 100000, HierarchyBookingsARR: 100000},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		cfg := baseCfg()
		bands, err := calibrator.Calibrate(s, cfg)
		Expect(err).NotTo(HaveOccurred())

		result, err := Run(context.Background(), s, bands, cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Proposals).To(HaveLen(1))
		Expect(result.Proposals[0].ProposedOwnerID).To(Equal("RepA"))
		Expect(result.Proposals[0].RuleApplied).To(Equal(RuleContinuityGeo))
		Expect(result.Proposals[0].Confidence).To(Equal(ConfidenceHigh))
	})

	It("falls through to geography when prior owner is unmapped", func() {
		s, err := snapshot.Load(&snapshot.RawSnapshot{
			Reps: reps(),
			Accounts: []*snapshot.Account{
				{AccountID: "A1", SalesTerritory: "US-WEST", ARR: 100000, HierarchyBookingsARR: 100000},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		cfg := baseCfg()
		bands, err := calibrator.Calibrate(s, cfg)
		Expect(err).NotTo(HaveOccurred())

		result, err := Run(context.Background(), s, bands, cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Proposals).To(HaveLen(1))
		Expect(result.Proposals[0].RuleApplied).To(Equal(RuleGeography))
		Expect([]string{"RepA", "RepB"}).To(ContainElement(result.Proposals[0].ProposedOwnerID))
	})

	It("routes low-ARR prospects to the sales-tools bucket", func() {
		s, err := snapshot.Load(&snapshot.RawSnapshot{
			Reps: reps(),
			Accounts: []*snapshot.Account{
				{AccountID: "A1", SalesTerritory: "US-WEST", ARR: 0},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		cfg := baseCfg()
		cfg.SalesToolsARRThreshold = 5000
		bands, err := calibrator.Calibrate(s, cfg)
		Expect(err).NotTo(HaveOccurred())

		result, err := Run(context.Background(), s, bands, cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Proposals).To(BeEmpty())
		Expect(result.SalesToolsPool).To(ConsistOf("A1"))
	})

	It("reports CAPACITY-OVERFLOW when no priority admits a candidate", func() {
		s, err := snapshot.Load(&snapshot.RawSnapshot{
			Reps: reps(),
			Accounts: []*snapshot.Account{
				{AccountID: "A1", SalesTerritory: "US-WEST", ARR: 100000, HierarchyBookingsARR: 100000},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		cfg := baseCfg()
		cfg.PriorityConfig = []config.PriorityEntry{
			{PriorityID: "P0", Enabled: false},
			{PriorityID: "P1", Enabled: false},
			{PriorityID: "P2", Enabled: false},
			{PriorityID: "P3", Enabled: false},
			{PriorityID: "RO", Enabled: false},
		}
		bands, err := calibrator.Calibrate(s, cfg)
		Expect(err).NotTo(HaveOccurred())

		result, err := Run(context.Background(), s, bands, cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Proposals).To(BeEmpty())
		Expect(result.Conflicts).To(HaveLen(1))
		Expect(result.Conflicts[0].Rule).To(Equal(RuleCapacityOverflow))
	})

	It("always grades the P0 Protected rule as High confidence", func() {
		s, err := snapshot.Load(&snapshot.RawSnapshot{
			Reps: reps(),
			Accounts: []*snapshot.Account{
				{
					AccountID:                "A1",
					ARR:                      100000,
					HierarchyBookingsARR:     100000,
					IsStrategicAccount:       true,
					DesignatedStrategicRepID: "RepB",
				},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		cfg := baseCfg()
		bands, err := calibrator.Calibrate(s, cfg)
		Expect(err).NotTo(HaveOccurred())

		result, err := Run(context.Background(), s, bands, cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Proposals).To(HaveLen(1))
		Expect(result.Proposals[0].ProposedOwnerID).To(Equal("RepB"))
		Expect(result.Proposals[0].Confidence).To(Equal(ConfidenceHigh))
	})

	It("accumulates RepLoad as accounts are assigned", func() {
		s, err := snapshot.Load(&snapshot.RawSnapshot{
			Reps: reps(),
			Accounts: []*snapshot.Account{
				{AccountID: "A1", OwnerID: "RepA", SalesTerritory: "US-WEST", ARR: 100000, HierarchyBookingsARR: 100000},
				{AccountID: "A2", OwnerID: "RepA", SalesTerritory: "US-WEST", ARR: 50000, HierarchyBookingsARR: 50000},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		cfg := baseCfg()
		bands, err := calibrator.Calibrate(s, cfg)
		Expect(err).NotTo(HaveOccurred())

		result, err := Run(context.Background(), s, bands, cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		// The calibrated customer_arr max is 120000 (1.2 x the largest
		// account), so A2 does not fit on RepA beside A1 and goes to RepB.
		Expect(result.RepLoads["RepA"].CustomerARR).To(Equal(100000.0))
		Expect(result.RepLoads["RepA"].CustomerCount).To(Equal(1))
	})
})

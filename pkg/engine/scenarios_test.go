package engine

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/territory-assignment-core/pkg/priority"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

func TestEngine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Engine Suite")
}

func proposalFor(pr *priority.Result, accountID string) *priority.Proposal {
	for _, p := range pr.Proposals {
		if p.AccountID == accountID {
			return p
		}
	}
	return nil
}

var _ = Describe("S1 geo-first", func() {
	It("assigns each account to the rep in its mapped region at High confidence", func() {
		raw := &snapshot.RawSnapshot{
			BuildID: "b1",
			Reps:    []*snapshot.Rep{rep("R1", "EMEA"), rep("R2", "AMER")},
			Accounts: []*snapshot.Account{
				customerAccount("A1", "EMEA", 1_000_000),
				customerAccount("A2", "AMER", 1_000_000),
			},
		}
		_, _, pr, _, err := pipeline(raw, baseConfig())
		Expect(err).NotTo(HaveOccurred())

		a1 := proposalFor(pr, "A1")
		Expect(a1).NotTo(BeNil())
		Expect(a1.ProposedOwnerID).To(Equal("R1"))
		Expect(a1.RuleApplied).To(Equal(priority.RuleGeography))
		Expect(a1.Confidence).To(Equal(priority.ConfidenceHigh))

		a2 := proposalFor(pr, "A2")
		Expect(a2).NotTo(BeNil())
		Expect(a2.ProposedOwnerID).To(Equal("R2"))
		Expect(a2.RuleApplied).To(Equal(priority.RuleGeography))
		Expect(a2.Confidence).To(Equal(priority.ConfidenceHigh))
	})
})

var _ = Describe("S2 protected wins", func() {
	It("retains the designated strategic rep over geography", func() {
		r1 := rep("R1", "EMEA")
		r2 := rep("R2", "AMER")
		r2.IsStrategicRep = true

		a3 := customerAccount("A3", "EMEA", 1_000_000)
		a3.OwnerID = "R2"
		a3.IsStrategicAccount = true
		a3.DesignatedStrategicRepID = "R2"

		raw := &snapshot.RawSnapshot{
			BuildID:  "b2",
			Reps:     []*snapshot.Rep{r1, r2},
			Accounts: []*snapshot.Account{a3},
		}
		_, _, pr, _, err := pipeline(raw, baseConfig())
		Expect(err).NotTo(HaveOccurred())

		p := proposalFor(pr, "A3")
		Expect(p).NotTo(BeNil())
		Expect(p.ProposedOwnerID).To(Equal("R2"))
		Expect(p.RuleApplied).To(Equal(priority.RuleProtected))
		Expect(p.Confidence).To(Equal(priority.ConfidenceHigh))
		Expect(p.WarningDetails).To(BeEmpty())
	})
})

var _ = Describe("S3 continuity+geo beats raw geo", func() {
	It("retains the prior owner when they still satisfy the mapped region", func() {
		a4 := customerAccount("A4", "AMER", 1_000_000)
		a4.OwnerID = "R3"

		raw := &snapshot.RawSnapshot{
			BuildID:  "b3",
			Reps:     []*snapshot.Rep{rep("R3", "AMER"), rep("R2", "AMER")},
			Accounts: []*snapshot.Account{a4},
		}
		_, _, pr, _, err := pipeline(raw, baseConfig())
		Expect(err).NotTo(HaveOccurred())

		p := proposalFor(pr, "A4")
		Expect(p).NotTo(BeNil())
		Expect(p.ProposedOwnerID).To(Equal("R3"))
		Expect(p.RuleApplied).To(Equal(priority.RuleContinuityGeo))
	})
})

var _ = Describe("S4 capacity overflow", func() {
	It("emits a conflict for the account that would push the rep above its cap", func() {
		cfg := baseConfig()
		maxARR := 2_000_000.0
		cfg.CustomerARR.MaxOverride = &maxARR

		raw := &snapshot.RawSnapshot{
			BuildID: "b4",
			Reps:    []*snapshot.Rep{rep("R1", "EMEA")},
			Accounts: []*snapshot.Account{
				customerAccount("A5", "EMEA", 1_000_000),
				customerAccount("A6", "EMEA", 1_000_000),
				customerAccount("A7", "EMEA", 1_000_000),
			},
		}
		_, _, pr, _, err := pipeline(raw, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(proposalFor(pr, "A5")).NotTo(BeNil())
		Expect(proposalFor(pr, "A6")).NotTo(BeNil())
		Expect(proposalFor(pr, "A7")).To(BeNil())

		Expect(pr.Conflicts).To(HaveLen(1))
		Expect(pr.Conflicts[0].AccountID).To(Equal("A7"))
		Expect(pr.Conflicts[0].Rule).To(Equal(priority.RuleCapacityOverflow))
	})
})

package engine

import (
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/territory-assignment-core/pkg/priority"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

// fixturePopulation is the shared table of snapshots the universal
// invariants (spec §8) are checked against: a mix of clean geo-routing, a
// prior-owner-retained case, and a mid-size population so hard caps and
// tie-breaks both exercise real candidates.
func fixturePopulation() []*snapshot.RawSnapshot {
	mid := &snapshot.RawSnapshot{
		BuildID: "bulk",
		Reps: []*snapshot.Rep{
			rep("R1", "EMEA"), rep("R2", "EMEA"), rep("R3", "AMER"), rep("R4", "AMER"),
		},
		Accounts: []*snapshot.Account{
			customerAccount("A1", "EMEA", 500_000),
			customerAccount("A2", "EMEA", 700_000),
			customerAccount("A3", "AMER", 300_000),
			customerAccount("A4", "AMER", 900_000),
			customerAccount("A5", "EMEA", 200_000),
			customerAccount("A6", "AMER", 400_000),
		},
	}
	return []*snapshot.RawSnapshot{
		{
			BuildID:  "small",
			Reps:     []*snapshot.Rep{rep("R1", "EMEA"), rep("R2", "AMER")},
			Accounts: []*snapshot.Account{customerAccount("A1", "EMEA", 1_000_000), customerAccount("A2", "AMER", 1_000_000)},
		},
		mid,
	}
}

var _ = Describe("universal invariants", func() {
	cfg := baseConfig()

	It("1: every proposal references a rep and account present in the snapshot, and a cataloguedrule", func() {
		for _, raw := range fixturePopulation() {
			snap, _, pr, _, err := pipeline(raw, cfg)
			Expect(err).NotTo(HaveOccurred())
			for _, p := range pr.Proposals {
				_, repOK := snap.Rep(p.ProposedOwnerID)
				Expect(repOK).To(BeTrue(), "proposed owner %s must be in snapshot", p.ProposedOwnerID)
				_, acctOK := snap.Account(p.AccountID)
				Expect(acctOK).To(BeTrue(), "account %s must be in snapshot", p.AccountID)
				switch p.RuleApplied {
				case "P0", "P1", "P2", "P3", "RO":
				default:
					Fail("proposal carries an uncatalogued rule: " + string(p.RuleApplied))
				}
			}
		}
	})

	It("2: no non-strategic rep's final load exceeds a hard-capped dimension's max", func() {
		for _, raw := range fixturePopulation() {
			snap, bands, _, bal, err := pipeline(raw, cfg)
			Expect(err).NotTo(HaveOccurred())

			loadByRep := map[string]float64{}
			for _, p := range bal.Proposals {
				a, ok := snap.Account(p.AccountID)
				Expect(ok).To(BeTrue())
				loadByRep[p.ProposedOwnerID] += a.HierarchyBookingsARR
			}
			arrBand := bands.Bands["customer_arr"]
			if arrBand.Disabled {
				continue
			}
			for repID, total := range loadByRep {
				r, _ := snap.Rep(repID)
				if r.IsStrategicRep {
					continue
				}
				Expect(total).To(BeNumerically("<=", arrBand.Max), "rep %s exceeds customer_arr max", repID)
			}
		}
	})

	It("3: an account with no mapped region is never assigned by P1 or P2", func() {
		cfgNoMapping := baseConfig()
		cfgNoMapping.TerritoryMappings = map[string]string{} // every territory is unmapped

		raw := &snapshot.RawSnapshot{
			BuildID:  "unmapped",
			Reps:     []*snapshot.Rep{rep("R1", "EMEA")},
			Accounts: []*snapshot.Account{customerAccount("A1", "UNKNOWN", 500_000)},
		}
		_, _, pr, _, err := pipeline(raw, cfgNoMapping)
		Expect(err).NotTo(HaveOccurred())

		p := proposalFor(pr, "A1")
		Expect(p).NotTo(BeNil())
		Expect(p.RuleApplied).NotTo(Equal(priority.RuleContinuityGeo))
		Expect(p.RuleApplied).NotTo(Equal(priority.RuleGeography))
	})

	It("5: a rep excluded from assignments leaves every other proposal unchanged", func() {
		raw := fixturePopulation()[1]

		_, _, withExtra, _, err := pipeline(raw, cfg)
		Expect(err).NotTo(HaveOccurred())

		excludedRep := rep("R5", "EMEA")
		excludedRep.IsActive = false
		withExcluded := &snapshot.RawSnapshot{
			BuildID:  raw.BuildID,
			Reps:     append(append([]*snapshot.Rep{}, raw.Reps...), excludedRep),
			Accounts: raw.Accounts,
		}
		_, _, withoutExtra, _, err := pipeline(withExcluded, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(proposalSet(withoutExtra.Proposals)).To(Equal(proposalSet(withExtra.Proposals)))
	})

	It("6: shuffling account and rep input order does not change the output", func() {
		raw := fixturePopulation()[1]
		reversedAccounts := make([]*snapshot.Account, len(raw.Accounts))
		for i, a := range raw.Accounts {
			reversedAccounts[len(raw.Accounts)-1-i] = a
		}
		reversedReps := make([]*snapshot.Rep, len(raw.Reps))
		for i, r := range raw.Reps {
			reversedReps[len(raw.Reps)-1-i] = r
		}
		reversed := &snapshot.RawSnapshot{BuildID: raw.BuildID, Reps: reversedReps, Accounts: reversedAccounts}

		_, _, original, _, err := pipeline(raw, cfg)
		Expect(err).NotTo(HaveOccurred())
		_, _, shuffled, _, err := pipeline(reversed, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(proposalSet(shuffled.Proposals)).To(Equal(proposalSet(original.Proposals)))
	})

	It("4: running the pipeline twice on the same snapshot and configuration is idempotent", func() {
		raw := fixturePopulation()[1]
		_, _, first, firstBal, err := pipeline(raw, cfg)
		Expect(err).NotTo(HaveOccurred())
		_, _, second, secondBal, err := pipeline(raw, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(reflect.DeepEqual(proposalSet(first.Proposals), proposalSet(second.Proposals))).To(BeTrue())
		Expect(firstBal.DonationsApplied).To(Equal(secondBal.DonationsApplied))
	})
})

type proposalKey struct {
	accountID string
	ownerID   string
	rule      string
}

func proposalSet(proposals []*priority.Proposal) map[proposalKey]bool {
	out := make(map[proposalKey]bool, len(proposals))
	for _, p := range proposals {
		out[proposalKey{accountID: p.AccountID, ownerID: p.ProposedOwnerID, rule: string(p.RuleApplied)}] = true
	}
	return out
}

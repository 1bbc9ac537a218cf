package snapshot

import (
	"sort"
	"strings"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
)

const normalizedRenewalType = "renewals"

// Load transforms a RawSnapshot into a validated, derived Snapshot (spec
// §4.1). It never invents reps or accounts: referential integrity failures
// are reported as a fatal *apperrors.AppError, not silently repaired.
func Load(raw *RawSnapshot) (*Snapshot, error) {
	if raw == nil {
		return nil, apperrors.NewInvalidSnapshot("raw snapshot is nil")
	}

	s := &Snapshot{
		BuildID:             raw.BuildID,
		Accounts:            raw.Accounts,
		AccountIndex:        make(map[string]int, len(raw.Accounts)),
		Reps:                raw.Reps,
		RepIndex:            make(map[string]int, len(raw.Reps)),
		Opportunities:       raw.Opportunities,
		Children:            make(map[string][]string),
		VirtualParentGroups: make(map[string]*VirtualParentGroup),
	}

	for i, a := range s.Accounts {
		if _, dup := s.AccountIndex[a.AccountID]; dup {
			return nil, apperrors.NewInvalidSnapshot("duplicate account_id: " + a.AccountID)
		}
		s.AccountIndex[a.AccountID] = i
	}
	for i, r := range s.Reps {
		if _, dup := s.RepIndex[r.RepID]; dup {
			return nil, apperrors.NewInvalidSnapshot("duplicate rep_id: " + r.RepID)
		}
		s.RepIndex[r.RepID] = i
	}

	for _, r := range s.Reps {
		if r.IsBackfillSource && r.IsBackfillTarget {
			return nil, apperrors.NewInvalidSnapshot(
				"rep " + r.RepID + " flagged both is_backfill_source and is_backfill_target")
		}
	}

	if err := classifyHierarchy(s); err != nil {
		return nil, err
	}

	classifyCustomerProspect(s)
	deriveATR(s)
	deriveFiscalQuarters(s)
	deriveSplitOwnership(s)

	return s, nil
}

// classifyHierarchy derives IsParent/IsVirtualParent and populates Children
// and VirtualParentGroups (spec §4.1(a), §9 "Parent/child relations").
func classifyHierarchy(s *Snapshot) error {
	for _, a := range s.Accounts {
		if a.UltimateParentID == a.AccountID && a.AccountID != "" {
			// Self-reference: treat as parent, clear the reference, surface
			// a validation warning (spec §4.1(a)).
			a.UltimateParentID = ""
			s.Warnings = append(s.Warnings, Warning{
				Code:    "self_referencing_parent",
				Message: "account " + a.AccountID + " referenced itself as ultimate_parent_id; cleared",
			})
		}
		a.IsParent = a.UltimateParentID == ""
	}

	for _, a := range s.Accounts {
		if a.IsParent {
			continue
		}
		if _, ok := s.AccountIndex[a.UltimateParentID]; !ok {
			// Orphan child: parent not present in the snapshot. Becomes a
			// virtual-parent group, owned (for display) by the child's
			// current owner, excluded from balance math.
			a.IsVirtualParent = true
			group, ok := s.VirtualParentGroups[a.UltimateParentID]
			if !ok {
				group = &VirtualParentGroup{MissingParentID: a.UltimateParentID}
				s.VirtualParentGroups[a.UltimateParentID] = group
			}
			group.ChildAccountIDs = append(group.ChildAccountIDs, a.AccountID)
			continue
		}
		s.Children[a.UltimateParentID] = append(s.Children[a.UltimateParentID], a.AccountID)
	}

	// Stable ordering keeps Children deterministic regardless of input
	// iteration order (spec §8 property 6).
	for parentID := range s.Children {
		sort.Strings(s.Children[parentID])
	}
	for _, g := range s.VirtualParentGroups {
		sort.Strings(g.ChildAccountIDs)
	}
	return nil
}

// classifyCustomerProspect applies the parent-hierarchy-level Customer/
// Prospect classification (spec §3 invariant 3, §4.1(b)): any account in the
// hierarchy with positive booked ARR makes the whole hierarchy a Customer.
// Virtual-parent groups (orphan children with no real parent row) are
// classified individually, since there is no real parent to roll up to.
func classifyCustomerProspect(s *Snapshot) {
	for _, parentID := range sortedParentIDs(s) {
		parentIdx, ok := s.AccountIndex[parentID]
		if !ok {
			continue
		}
		parent := s.Accounts[parentIdx]
		isCustomer := parent.ARR > 0
		var hierarchyARR float64 = parent.ARR
		for _, childID := range s.Children[parentID] {
			child, _ := s.Account(childID)
			if child.ARR > 0 {
				isCustomer = true
			}
			hierarchyARR += child.ARR
		}
		parent.IsCustomer = isCustomer
		parent.HierarchyBookingsARR = hierarchyARR
		for _, childID := range s.Children[parentID] {
			child, _ := s.Account(childID)
			child.IsCustomer = isCustomer
			child.HierarchyBookingsARR = hierarchyARR
		}
	}

	for _, g := range s.VirtualParentGroups {
		for _, childID := range g.ChildAccountIDs {
			child, _ := s.Account(childID)
			child.IsCustomer = child.ARR > 0
			child.HierarchyBookingsARR = child.ARR
		}
	}
}

func sortedParentIDs(s *Snapshot) []string {
	ids := make([]string, 0, len(s.Accounts))
	for _, a := range s.Accounts {
		if a.IsParent {
			ids = append(ids, a.AccountID)
		}
	}
	sort.Strings(ids)
	return ids
}

// deriveATR computes per-parent ATR as the sum of available_to_renew over
// renewals-typed opportunities across the parent's whole hierarchy,
// restricted to Customer parents (spec §4.1(c)). Children's own ATR field
// mirrors the parent's, matching the single-proposal-per-parent invariant
// (spec §3 invariant 4): balance math always reads the parent's ATR.
func deriveATR(s *Snapshot) {
	sumByParent := make(map[string]float64)
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
		if normalize(opp.OpportunityType) != normalizedRenewalType {
			continue
		}
		parentID, ok := accountToParent[opp.AccountID]
		if !ok {
			continue
		}
		parent, _ := s.Account(parentID)
		if !parent.IsCustomer {
			continue
		}
		sumByParent[parentID] += opp.AvailableToRenew
	}

	for _, parentID := range sortedParentIDs(s) {
		parent, _ := s.Account(parentID)
		if !parent.IsCustomer {
			continue
		}
		atr := sumByParent[parentID]
		if atr == 0 {
			atr = parent.CalculatedATR
		}
		parent.ATR = atr
		for _, childID := range s.Children[parentID] {
			child, _ := s.Account(childID)
			child.ATR = atr
		}
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// deriveFiscalQuarters fills RenewalQuarter from RenewalEventDate for every
// account that carries one (spec §4.1(d)).
func deriveFiscalQuarters(s *Snapshot) {
	for _, a := range s.Accounts {
		if a.RenewalEventDate.IsZero() {
			continue
		}
		a.RenewalQuarter = FiscalQuarter(a.RenewalEventDate)
	}
}

// deriveSplitOwnership flags children whose new_owner_id diverges from
// their parent's (spec §3 invariant 6). It is re-evaluated any time
// new_owner_* changes, not just at load; Load runs it once over whatever
// new_owner_* values the raw rows already carry (e.g. a reload after manager
// edits), and pkg/workflow re-runs the same check after every mutation.
func deriveSplitOwnership(s *Snapshot) {
	for parentID, children := range s.Children {
		parent, ok := s.Account(parentID)
		if !ok {
			continue
		}
		for _, childID := range children {
			child, _ := s.Account(childID)
			child.HasSplitOwnership = child.NewOwnerID != "" &&
				parent.NewOwnerID != "" &&
				child.NewOwnerID != parent.NewOwnerID
		}
	}
}

// RecomputeSplitOwnership re-derives HasSplitOwnership for every child of
// parentID; called by pkg/workflow after an approved reassignment changes
// new_owner_* fields (spec §3 invariant 6, §4.5).
func RecomputeSplitOwnership(s *Snapshot, parentID string) {
	parent, ok := s.Account(parentID)
	if !ok {
		return
	}
	for _, childID := range s.Children[parentID] {
		child, _ := s.Account(childID)
		child.HasSplitOwnership = child.NewOwnerID != "" &&
			parent.NewOwnerID != "" &&
			child.NewOwnerID != parent.NewOwnerID
	}
}

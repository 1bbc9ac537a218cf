package workflow

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
)

func TestWorkflow(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Workflow Suite")
}

var _ = Describe("InitialStatus", func() {
	It("is approved immediately for RevOps", func() {
		Expect(InitialStatus(RoleRevOps)).To(Equal(StatusApproved))
	})
	It("is pending_revops for SLM", func() {
		Expect(InitialStatus(RoleSLM)).To(Equal(StatusPendingRevOps))
	})
	It("is pending_slm for FLM", func() {
		Expect(InitialStatus(RoleFLM)).To(Equal(StatusPendingSLM))
	})
})

var _ = Describe("Transition", func() {
	It("moves pending_slm to pending_revops on SLM approval", func() {
		r := &Reassignment{ApprovalStatus: StatusPendingSLM}
		Expect(Transition(r, Actor{Role: RoleSLM}, true)).To(Succeed())
		Expect(r.ApprovalStatus).To(Equal(StatusPendingRevOps))
	})

	It("moves pending_slm to rejected on SLM rejection", func() {
		r := &Reassignment{ApprovalStatus: StatusPendingSLM}
		Expect(Transition(r, Actor{Role: RoleSLM}, false)).To(Succeed())
		Expect(r.ApprovalStatus).To(Equal(StatusRejected))
	})

	It("moves pending_revops to approved on RevOps approval", func() {
		r := &Reassignment{ApprovalStatus: StatusPendingRevOps}
		Expect(Transition(r, Actor{Role: RoleRevOps}, true)).To(Succeed())
		Expect(r.ApprovalStatus).To(Equal(StatusApproved))
	})

	It("rejects re-transitioning an already-terminal reassignment", func() {
		r := &Reassignment{ApprovalStatus: StatusApproved}
		err := Transition(r, Actor{Role: RoleRevOps}, true)
		Expect(err).To(HaveOccurred())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeStaleStateTransition)).To(BeTrue())
	})

	It("rejects an illegal role/state combination", func() {
		r := &Reassignment{ApprovalStatus: StatusPendingSLM}
		err := Transition(r, Actor{Role: RoleRevOps}, true)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("FlagLateSubmission", func() {
	It("flags an FLM proposal filed after SLM acceptance", func() {
		Expect(FlagLateSubmission(RoleFLM, true)).To(BeTrue())
	})
	It("does not flag when SLM has not yet accepted", func() {
		Expect(FlagLateSubmission(RoleFLM, false)).To(BeFalse())
	})
	It("never flags SLM/RevOps proposals", func() {
		Expect(FlagLateSubmission(RoleSLM, true)).To(BeFalse())
	})
})

var _ = Describe("RequiresCounterProposalConfirmation", func() {
	It("requires confirmation when stamped by a different role", func() {
		stamp := &Note{ApproverRole: RoleFLM, NoteKey: NoteKey{Category: approvalCategory}}
		Expect(RequiresCounterProposalConfirmation(stamp, RoleSLM)).To(BeTrue())
	})
	It("does not require confirmation with no existing stamp", func() {
		Expect(RequiresCounterProposalConfirmation(nil, RoleSLM)).To(BeFalse())
	})
	It("does not require confirmation when the same role re-stamps", func() {
		stamp := &Note{ApproverRole: RoleSLM, NoteKey: NoteKey{Category: approvalCategory}}
		Expect(RequiresCounterProposalConfirmation(stamp, RoleSLM)).To(BeFalse())
	})
})

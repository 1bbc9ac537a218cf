package workflow

import (
	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
)

// InitialStatus implements spec §4.5 "A reassignment proposal starts in one
// of three states based on proposer role": RevOps is approved immediately,
// SLM waits on RevOps, FLM waits on SLM.
func InitialStatus(proposerRole ApproverRole) ApprovalStatus {
	switch proposerRole {
	case RoleRevOps:
		return StatusApproved
	case RoleSLM:
		return StatusPendingRevOps
	default:
		return StatusPendingSLM
	}
}

// legalTransitions enumerates every allowed (from, actorRole, approve) move
// (spec §4.5 "Transitions"). Only the approved transition mutates
// new_owner_*; that side effect is the caller's responsibility, not this
// package's — this function only says whether the move itself is legal.
func legalTransitions(from ApprovalStatus, actorRole ApproverRole, approve bool) (ApprovalStatus, bool) {
	switch {
	case from == StatusPendingSLM && actorRole == RoleSLM && approve:
		return StatusPendingRevOps, true
	case from == StatusPendingSLM && actorRole == RoleSLM && !approve:
		return StatusRejected, true
	case from == StatusPendingRevOps && actorRole == RoleRevOps && approve:
		return StatusApproved, true
	case from == StatusPendingRevOps && actorRole == RoleRevOps && !approve:
		return StatusRejected, true
	default:
		return "", false
	}
}

// Transition validates and applies a state machine move onto r in place
// (spec §4.5 "Transitions"). It returns a stale_state_transition AppError
// for any move not named in the table above, including re-applying a
// transition to an already-terminal reassignment.
func Transition(r *Reassignment, actor Actor, approve bool) error {
	if isTerminal(r.ApprovalStatus) {
		return apperrors.NewStaleStateTransition(r.ID, "non-terminal", string(r.ApprovalStatus))
	}
	next, ok := legalTransitions(r.ApprovalStatus, actor.Role, approve)
	if !ok {
		return apperrors.NewStaleStateTransition(r.ID, "a state/role this actor may transition", string(r.ApprovalStatus))
	}
	r.ApprovalStatus = next
	return nil
}

// FlagLateSubmission implements spec §4.5 "Late submission": an FLM proposal
// filed after the SLM has already submitted their top-level review as
// accepted is flagged, but still proceeds to pending_slm.
func FlagLateSubmission(proposerRole ApproverRole, slmAlreadyAccepted bool) bool {
	return proposerRole == RoleFLM && slmAlreadyAccepted
}

// RequiresCounterProposalConfirmation implements spec §4.5
// "Counter-proposal": filing a reassignment against a target currently
// approval-stamped by a different role must be confirmed before it proceeds.
func RequiresCounterProposalConfirmation(existingStamp *Note, proposerRole ApproverRole) bool {
	if existingStamp == nil {
		return false
	}
	return existingStamp.Category == approvalCategory && existingStamp.ApproverRole != proposerRole
}

// Package workflow implements the Proposal Writer & Review Workflow (spec
// §4.5, component C5): the manager-initiated reassignment state machine,
// supersession, late-submission flagging, counter-proposal gating, approval
// stamps, and cross-build conflict detection.
package workflow

import "time"

// ApprovalStatus is the Manager Reassignment Proposal lifecycle state (spec
// §3 "Manager Reassignment Proposal").
type ApprovalStatus string

const (
	StatusPendingSLM    ApprovalStatus = "pending_slm"
	StatusPendingRevOps ApprovalStatus = "pending_revops"
	StatusApproved      ApprovalStatus = "approved"
	StatusRejected      ApprovalStatus = "rejected"
)

// ApproverRole is the management level of the actor filing or deciding a
// reassignment (spec §3 "Manager Note / Approval Stamp").
type ApproverRole string

const (
	RoleFLM    ApproverRole = "FLM"
	RoleSLM    ApproverRole = "SLM"
	RoleRevOps ApproverRole = "RevOps"
)

// Actor is whoever is performing a workflow action.
type Actor struct {
	UserID string
	Name   string
	Role   ApproverRole
}

// Reassignment is a Manager Reassignment Proposal (spec §3).
type Reassignment struct {
	ID               string
	AccountID        string
	BuildID          string
	ManagerUserID    string
	ManagerName      string
	CurrentOwner     string
	ProposedOwner    string
	ProposedOwnerName string
	Rationale        string
	ApprovalStatus   ApprovalStatus
	IsLateSubmission bool
	SupersededBy     *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Predicate selects a set of reassignments for a bulk transition (spec §4.5
// "Supersession": "all other non-terminal proposals for the same
// (account_id, build_id)").
type Predicate struct {
	AccountID   string
	BuildID     string
	ExcludeID   string
	NonTerminal bool
}

// NoteKey identifies a Manager Note / Approval Stamp (spec §3).
type NoteKey struct {
	BuildID  string
	TargetID string // account_id, "rep-book:{rep_id}", or "flm-team:{flm}"
	Category string
}

// Note is a Manager Note / Approval Stamp (spec §3). Approval stamps set
// ApproverRole/ApprovedAt; plain notes may leave them zero.
type Note struct {
	NoteKey
	Text         string
	ApproverID   string
	ApproverName string
	ApproverRole ApproverRole
	ApprovedAt   time.Time
}

// CrossBuildConflict is a read-only warning surfaced for an account that has
// a non-terminal reassignment proposal in a different build (spec §4.5
// "Cross-build conflict detection").
type CrossBuildConflict struct {
	AccountID string
	BuildName string
	Count     int
}

const approvalCategory = "approval"

func isTerminal(s ApprovalStatus) bool {
	return s == StatusApproved || s == StatusRejected
}

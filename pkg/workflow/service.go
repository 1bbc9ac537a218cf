package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
)

// store and notifier are declared locally (rather than importing
// pkg/store/pkg/notifier) because pkg/store's Store interface itself
// references workflow types — importing it back here would create a cycle.
// pkg/store.Postgres and pkg/notifier.Slack each satisfy these structurally.
type store interface {
	InsertReassignment(ctx context.Context, r *Reassignment) (string, error)
	TransitionReassignment(ctx context.Context, id string, newState ApprovalStatus, actor Actor, rationale string) error
	BulkRejectReassignments(ctx context.Context, pred Predicate, actor Actor, rationale string) (int, error)
	UpsertNote(ctx context.Context, n *Note) error
	DeleteNote(ctx context.Context, key NoteKey) error
	ReadCrossBuildReassignments(ctx context.Context, accountIDs []string, excludeBuildID string) ([]CrossBuildConflict, error)
}

type notifier interface {
	NotifyProposalRejected(ctx context.Context, recipient, accountName, actorName, reason string) error
	NotifySuperseded(ctx context.Context, recipient, accountName, actorName string) error
}

// Service wires the state machine onto a Store and Notifier, serializing
// approval-stamp writes per target key (spec §5 "per-key mutual exclusion").
type Service struct {
	store    store
	notifier notifier
	keys     *keyLock
}

func NewService(s store, n notifier) *Service {
	return &Service{store: s, notifier: n, keys: newKeyLock()}
}

// FileReassignment implements spec §4.5's creation path: computes the
// initial state from the proposer's role, flags late submissions, and
// persists the reassignment (spec §3 "Manager reassignments are
// append-only").
func (svc *Service) FileReassignment(ctx context.Context, r *Reassignment, proposer Actor, slmAlreadyAccepted bool) (string, error) {
	r.ManagerUserID = proposer.UserID
	r.IsLateSubmission = FlagLateSubmission(proposer.Role, slmAlreadyAccepted)
	r.ApprovalStatus = InitialStatus(proposer.Role)
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return svc.store.InsertReassignment(ctx, r)
}

// Decide applies an SLM/RevOps approve-or-reject action (spec §4.5
// "Transitions"). When the action approves a RevOps-level decision, the
// caller is responsible for invoking Supersede afterward — Decide only
// performs this one reassignment's transition.
func (svc *Service) Decide(ctx context.Context, r *Reassignment, actor Actor, approve bool, rationale string) error {
	if err := Transition(r, actor, approve); err != nil {
		return err
	}
	return svc.store.TransitionReassignment(ctx, r.ID, r.ApprovalStatus, actor, rationale)
}

// Supersede implements spec §4.5 "Supersession": when a reassignment is
// directly approved by RevOps, every other non-terminal proposal for the
// same (account_id, build_id) transitions to rejected with a standard
// rationale, and each proposer is notified. The competing proposals are
// rejected together in a single BulkRejectReassignments call (spec §5
// "Ordering guarantees"); that call runs after, and separately from, the
// write that recorded the approval.
func (svc *Service) Supersede(ctx context.Context, approved *Reassignment, actor Actor, notifyRecipients map[string]string) error {
	if approved.ApprovalStatus != StatusApproved {
		return apperrors.NewStaleStateTransition(approved.ID, string(StatusApproved), string(approved.ApprovalStatus))
	}
	rationale := "Superseded: RevOps directly assigned this account to " + approved.ProposedOwnerName

	pred := Predicate{AccountID: approved.AccountID, BuildID: approved.BuildID, ExcludeID: approved.ID, NonTerminal: true}
	n, err := svc.store.BulkRejectReassignments(ctx, pred, actor, rationale)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	for proposerID, accountName := range notifyRecipients {
		if err := svc.notifier.NotifySuperseded(ctx, proposerID, accountName, actor.Name); err != nil {
			// Notifier failures are non-fatal (spec §7): the supersession
			// already committed; only the notification is best-effort.
			continue
		}
	}
	return nil
}

// CrossBuildConflicts implements spec §4.5 "Cross-build conflict detection":
// read-only, never mutates proposals in other builds.
func (svc *Service) CrossBuildConflicts(ctx context.Context, accountIDs []string, currentBuildID string) ([]CrossBuildConflict, error) {
	return svc.store.ReadCrossBuildReassignments(ctx, accountIDs, currentBuildID)
}

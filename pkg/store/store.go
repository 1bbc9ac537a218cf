// Package store implements the Store external interface (spec §6) against
// Postgres, and the run-result/statistics persistence the engine writes at
// the end of every build (spec §4.5 "Engine output persistence").
package store

import (
	"context"

	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
	"github.com/jordigilh/territory-assignment-core/pkg/workflow"
)

// RunResult is what pkg/engine hands WriteProposals: everything a run
// produces, persisted atomically in place of the build's prior proposals
// (spec §4.5 "Each run atomically replaces prior proposals for the build").
type RunResult struct {
	BuildID                string
	Proposals              []ProposalRecord
	Conflicts              int
	UnassignedAccounts     int
	RebalanceWarnings      []string
	RebalancingSuggestions []string
	PerGeoRollup           map[string]int
	PerRepRollup           map[string]int
}

// ProposalRecord is the persisted form of a priority.Proposal plus whatever
// the Balance Optimizer finalized.
type ProposalRecord struct {
	AccountID         string
	CurrentOwnerID    string
	ProposedOwnerID   string
	RuleApplied       string
	Confidence        string
	AssignmentReason  string
	WarningDetails    []string
}

// Store is the external interface the engine depends on (spec §6). It is
// satisfied by Postgres here; test code may substitute an in-memory fake.
type Store interface {
	ReadSnapshot(ctx context.Context, buildID string) (*snapshot.Snapshot, error)
	WriteProposals(ctx context.Context, buildID string, out *RunResult) error

	InsertReassignment(ctx context.Context, r *workflow.Reassignment) (string, error)
	TransitionReassignment(ctx context.Context, id string, newState workflow.ApprovalStatus, actor workflow.Actor, rationale string) error
	BulkRejectReassignments(ctx context.Context, pred workflow.Predicate, actor workflow.Actor, rationale string) (int, error)
	UpsertNote(ctx context.Context, n *workflow.Note) error
	DeleteNote(ctx context.Context, key workflow.NoteKey) error
	ReadCrossBuildReassignments(ctx context.Context, accountIDs []string, excludeBuildID string) ([]workflow.CrossBuildConflict, error)
}

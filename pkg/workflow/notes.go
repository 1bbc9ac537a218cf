package workflow

import (
	"context"
	"strings"
)

// RepBookTarget and FLMTeamTarget build the NoteKey.TargetID conventions
// named in spec §3 ("rep-book:{rep_id}", "flm-team:{flm_name_encoded}").
func RepBookTarget(repID string) string { return "rep-book:" + repID }

func FLMTeamTarget(flmName string) string {
	return "flm-team:" + strings.ReplaceAll(strings.ToLower(flmName), " ", "_")
}

// StampApproval idempotently records an approval stamp (spec §4.5
// "Approval stamps... are idempotent"): writing the same (build_id,
// target_id, category) key twice leaves one row, last write wins on the
// approver fields.
func (svc *Service) StampApproval(ctx context.Context, key NoteKey, approver Actor) error {
	return svc.keys.withKey(key.TargetID, func() error {
		return svc.store.UpsertNote(ctx, &Note{
			NoteKey:      key,
			ApproverID:   approver.UserID,
			ApproverName: approver.Name,
			ApproverRole: approver.Role,
		})
	})
}

// UndoFLMTeamStamp implements spec §4.5 "Undoing an FLM-team stamp also
// cascades the deletion of rep-book stamps under that FLM": repIDsUnderFLM
// is supplied by the caller, which must hold the Snapshot's FLM-to-rep
// mapping, since this package has no access to the Snapshot.
func (svc *Service) UndoFLMTeamStamp(ctx context.Context, buildID, flmName string, repIDsUnderFLM []string) error {
	flmTarget := FLMTeamTarget(flmName)
	return svc.keys.withKey(flmTarget, func() error {
		flmKey := NoteKey{BuildID: buildID, TargetID: flmTarget, Category: approvalCategory}
		if err := svc.store.DeleteNote(ctx, flmKey); err != nil {
			return err
		}
		for _, repID := range repIDsUnderFLM {
			repKey := NoteKey{BuildID: buildID, TargetID: RepBookTarget(repID), Category: approvalCategory}
			if err := svc.store.DeleteNote(ctx, repKey); err != nil {
				return err
			}
		}
		return nil
	})
}

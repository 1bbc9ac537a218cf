package store

import (
	"context"
	"encoding/json"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
	"github.com/jordigilh/territory-assignment-core/pkg/workflow"
)

// Postgres is the Store implementation. It reads snapshots from the accounts,
// reps and opportunities tables and writes the five tables named in
// SPEC_FULL.md §6: proposals, run_statistics, reassignments, notes,
// cross_build_index. Schema lives under pkg/store/migrations, run through
// pressly/goose at process startup.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to Postgres via the pgx stdlib driver, matching the
// teacher's sqlx+pgx pairing.
func Open(cfg config.StoreConfig) (*Postgres, error) {
	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
			db.SetConnMaxLifetime(d)
		}
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// ReadSnapshot loads the three row sets for buildID and hands them to
// snapshot.Load, which performs every derivation (spec §4.1). Postgres is
// only a row source here; no business logic lives in SQL.
func (p *Postgres) ReadSnapshot(ctx context.Context, buildID string) (*snapshot.Snapshot, error) {
	var accountRows []accountRow
	var repRows []repRow
	var oppRows []opportunityRow

	if err := p.db.SelectContext(ctx, &accountRows, accountsQuery, buildID); err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if err := p.db.SelectContext(ctx, &repRows, repsQuery, buildID); err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if err := p.db.SelectContext(ctx, &oppRows, opportunitiesQuery, buildID); err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}

	raw := &snapshot.RawSnapshot{
		BuildID:       buildID,
		Accounts:      make([]*snapshot.Account, len(accountRows)),
		Reps:          make([]*snapshot.Rep, len(repRows)),
		Opportunities: make([]*snapshot.Opportunity, len(oppRows)),
	}
	for i, r := range accountRows {
		raw.Accounts[i] = r.toDomain()
	}
	for i, r := range repRows {
		raw.Reps[i] = r.toDomain()
	}
	for i, r := range oppRows {
		raw.Opportunities[i] = r.toDomain()
	}
	return snapshot.Load(raw)
}

const accountsQuery = `
SELECT account_id, display_name, ultimate_parent_id, arr, atr, calculated_arr,
       calculated_atr, hierarchy_bookings_arr, expansion_tier, initial_sale_tier,
       sales_territory, geo, hq_country, renewal_quarter, renewal_event_date,
       cre_count, cre_risk, risk_flag, cre_status, owner_id, owner_name,
       new_owner_id, new_owner_name, is_strategic_account, is_manual_holdover,
       designated_strategic_rep_id
FROM accounts WHERE build_id = $1`

const repsQuery = `
SELECT rep_id, name, team, flm, slm, region, is_active, include_in_assignments,
       is_strategic_rep, is_backfill_source, is_backfill_target, is_placeholder
FROM reps WHERE build_id = $1`

const opportunitiesQuery = `
SELECT opportunity_id, account_id, opportunity_type, available_to_renew,
       renewal_event_date, owner_id, new_owner_id, cre_status, net_arr
FROM opportunities WHERE build_id = $1`

// WriteProposals implements spec §4.5 "Each run atomically replaces prior
// proposals for the build": delete-then-insert inside one transaction,
// alongside the run's aggregate statistics.
func (p *Postgres) WriteProposals(ctx context.Context, buildID string, out *RunResult) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM proposals WHERE build_id = $1`, buildID); err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	for _, prop := range out.Proposals {
		warnings, _ := json.Marshal(prop.WarningDetails)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO proposals
				(build_id, account_id, current_owner_id, proposed_owner_id,
				 rule_applied, confidence, assignment_reason, warning_details)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			buildID, prop.AccountID, prop.CurrentOwnerID, prop.ProposedOwnerID,
			prop.RuleApplied, prop.Confidence, prop.AssignmentReason, warnings)
		if err != nil {
			return apperrors.NewStoreUnavailable(err)
		}
	}

	rebalanceWarnings, _ := json.Marshal(out.RebalanceWarnings)
	suggestions, _ := json.Marshal(out.RebalancingSuggestions)
	perGeo, _ := json.Marshal(out.PerGeoRollup)
	perRep, _ := json.Marshal(out.PerRepRollup)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_statistics
			(build_id, proposals_count, conflicts_count, unassigned_accounts,
			 rebalance_warnings, rebalancing_suggestions, per_geo_rollup, per_rep_rollup, run_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (build_id) DO UPDATE SET
			proposals_count = EXCLUDED.proposals_count,
			conflicts_count = EXCLUDED.conflicts_count,
			unassigned_accounts = EXCLUDED.unassigned_accounts,
			rebalance_warnings = EXCLUDED.rebalance_warnings,
			rebalancing_suggestions = EXCLUDED.rebalancing_suggestions,
			per_geo_rollup = EXCLUDED.per_geo_rollup,
			per_rep_rollup = EXCLUDED.per_rep_rollup,
			run_at = EXCLUDED.run_at`,
		buildID, len(out.Proposals), out.Conflicts, out.UnassignedAccounts,
		rebalanceWarnings, suggestions, perGeo, perRep)
	if err != nil {
		return apperrors.NewStoreUnavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	return nil
}

// InsertReassignment implements spec §3 "Manager reassignments are
// append-only".
func (p *Postgres) InsertReassignment(ctx context.Context, r *workflow.Reassignment) (string, error) {
	row := p.db.QueryRowxContext(ctx, `
		INSERT INTO reassignments
			(account_id, build_id, manager_user_id, manager_name, current_owner,
			 proposed_owner, proposed_owner_name, rationale, approval_status,
			 is_late_submission, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		RETURNING id`,
		r.AccountID, r.BuildID, r.ManagerUserID, r.ManagerName, r.CurrentOwner,
		r.ProposedOwner, r.ProposedOwnerName, r.Rationale, r.ApprovalStatus, r.IsLateSubmission)

	var id string
	if err := row.Scan(&id); err != nil {
		return "", apperrors.NewStoreUnavailable(err)
	}
	return id, nil
}

// TransitionReassignment persists a single reassignment's state change
// inside one transaction (spec §5 "each manager reassignment transition is
// one transaction").
func (p *Postgres) TransitionReassignment(ctx context.Context, id string, newState workflow.ApprovalStatus, actor workflow.Actor, rationale string) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE reassignments SET approval_status = $1, rationale = $2, updated_at = now()
		WHERE id = $3`, newState, rationale, id)
	if err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewStaleStateTransition(id, string(newState), "not found")
	}
	return tx.Commit()
}

// BulkRejectReassignments implements spec §4.5 "Supersession": transitions
// every matching non-terminal proposal to rejected in one UPDATE inside one
// transaction, so the competing proposals are rejected all together or not
// at all. That transaction is separate from the one that wrote the
// triggering approval.
func (p *Postgres) BulkRejectReassignments(ctx context.Context, pred workflow.Predicate, actor workflow.Actor, rationale string) (int, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewStoreUnavailable(err)
	}
	defer tx.Rollback()

	query := `UPDATE reassignments SET approval_status = $1, rationale = $2, superseded_by = $5, updated_at = now()
		WHERE account_id = $3 AND build_id = $4 AND id != $5`
	args := []any{workflow.StatusRejected, rationale, pred.AccountID, pred.BuildID, pred.ExcludeID}
	if pred.NonTerminal {
		query += ` AND approval_status NOT IN ($6, $7)`
		args = append(args, workflow.StatusApproved, workflow.StatusRejected)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewStoreUnavailable(err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewStoreUnavailable(err)
	}
	return int(n), nil
}

// UpsertNote implements spec §4.5 "Approval stamps... are idempotent":
// writing the same (build_id, target_id, category) key twice leaves one row.
func (p *Postgres) UpsertNote(ctx context.Context, n *workflow.Note) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notes (build_id, target_id, category, text, approver_id,
		                    approver_name, approver_role, approved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (build_id, target_id, category) DO UPDATE SET
			text = EXCLUDED.text,
			approver_id = EXCLUDED.approver_id,
			approver_name = EXCLUDED.approver_name,
			approver_role = EXCLUDED.approver_role,
			approved_at = EXCLUDED.approved_at`,
		n.BuildID, n.TargetID, n.Category, n.Text, n.ApproverID, n.ApproverName, n.ApproverRole)
	if err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	return nil
}

func (p *Postgres) DeleteNote(ctx context.Context, key workflow.NoteKey) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM notes WHERE build_id = $1 AND target_id = $2 AND category = $3`,
		key.BuildID, key.TargetID, key.Category)
	if err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	return nil
}

// ReadCrossBuildReassignments implements spec §4.5 "Cross-build conflict
// detection": read-only, scoped to every build other than excludeBuildID.
type crossBuildRow struct {
	AccountID string `db:"account_id"`
	BuildName string `db:"build_name"`
	Count     int    `db:"count"`
}

func (p *Postgres) ReadCrossBuildReassignments(ctx context.Context, accountIDs []string, excludeBuildID string) ([]workflow.CrossBuildConflict, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT r.account_id, b.build_name AS build_name, count(*) AS count
		FROM reassignments r
		JOIN cross_build_index b ON b.build_id = r.build_id
		WHERE r.account_id IN (?) AND r.build_id != ?
		  AND r.approval_status NOT IN (?, ?)
		GROUP BY r.account_id, b.build_name`,
		accountIDs, excludeBuildID, workflow.StatusApproved, workflow.StatusRejected)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	query = p.db.Rebind(query)

	var rows []crossBuildRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	conflicts := make([]workflow.CrossBuildConflict, len(rows))
	for i, r := range rows {
		conflicts[i] = workflow.CrossBuildConflict{AccountID: r.AccountID, BuildName: r.BuildName, Count: r.Count}
	}
	return conflicts, nil
}

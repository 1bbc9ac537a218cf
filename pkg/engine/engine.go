// Package engine orchestrates one build run end to end (spec §4, §5):
// Snapshot Loader, Calibrator, Priority Engine, Balance Optimizer, then
// persistence, wrapped in the per-build advisory lock, an OTel span and
// Prometheus series per component, and a run-level deadline.
package engine

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/internal/observability/logging"
	"github.com/jordigilh/territory-assignment-core/internal/observability/metrics"
	"github.com/jordigilh/territory-assignment-core/internal/observability/tracing"
	"github.com/jordigilh/territory-assignment-core/pkg/balance"
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
	"github.com/jordigilh/territory-assignment-core/pkg/lock"
	"github.com/jordigilh/territory-assignment-core/pkg/policy"
	"github.com/jordigilh/territory-assignment-core/pkg/priority"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
	"github.com/jordigilh/territory-assignment-core/pkg/store"
)

// RunResult is the engine's full internal view of one build run, richer
// than store.RunResult: it keeps the structured proposals/conflicts/bands
// around for the caller (e.g. cmd/territory-api) in addition to whatever
// gets persisted.
type RunResult struct {
	BuildID                string
	Bands                  *calibrator.Result
	Proposals              []*priority.Proposal
	Conflicts              []*priority.Conflict
	SalesToolsPool         []string
	RebalanceWarnings      []string
	RebalancingSuggestions []string
	DonationsApplied       int
}

// Engine wires C1-C5 onto a Store, an advisory BuildLock, metrics and a
// logger. The optional policy Evaluator for Custom assignment mode (spec
// §4.3 NEW) is passed to each Run call, not held here.
type Engine struct {
	Store   store.Store
	Lock    lock.BuildLock
	Metrics *metrics.Registry
	Logger  logr.Logger
}

func New(s store.Store, l lock.BuildLock, m *metrics.Registry, log logr.Logger) *Engine {
	return &Engine{Store: s, Lock: l, Metrics: m, Logger: log}
}

// Run executes one full build pass (spec §5 "Processing pipeline"): it
// acquires the per-build advisory lock first, so two concurrent runs for
// the same build_id can never interleave (spec §5 "the external caller is
// responsible for enforcing this"), then loads, calibrates, prioritizes,
// balances and persists within cfg.RunTimeout.
func (e *Engine) Run(ctx context.Context, buildID string, cfg *config.Config, policyEval *policy.Evaluator) (*RunResult, error) {
	timeout, err := time.ParseDuration(cfg.RunTimeout)
	if err != nil {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handle, err := e.Lock.Acquire(ctx, buildID)
	if err != nil {
		return nil, err
	}
	defer handle.Release(ctx)

	log := logging.WithBuild(e.Logger, buildID)

	snap, err := e.loadSnapshot(ctx, buildID, log)
	if err != nil {
		return nil, err
	}

	bands, err := e.calibrate(ctx, snap, cfg, log)
	if err != nil {
		return nil, err
	}

	prResult, err := e.prioritize(ctx, snap, bands, cfg, policyEval, log)
	if err != nil {
		return nil, err
	}

	balResult, err := e.balanceFinalize(ctx, snap, prResult, bands, cfg, log)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		BuildID:                buildID,
		Bands:                  bands,
		Proposals:              balResult.Proposals,
		Conflicts:              balResult.Conflicts,
		SalesToolsPool:         prResult.SalesToolsPool,
		RebalanceWarnings:      balResult.RebalanceWarnings,
		RebalancingSuggestions: balResult.RebalancingSuggestions,
		DonationsApplied:       balResult.DonationsApplied,
	}

	if err := e.persist(ctx, snap, result, log); err != nil {
		return nil, err
	}

	e.recordMetrics(result)
	return result, nil
}

func (e *Engine) loadSnapshot(ctx context.Context, buildID string, log logr.Logger) (*snapshot.Snapshot, error) {
	ctx, span := tracing.StartComponent(ctx, buildID, "C1-snapshot-loader")
	defer span.End()
	start := time.Now()
	defer e.observe("C1-snapshot-loader", start)

	snap, err := e.Store.ReadSnapshot(ctx, buildID)
	if err != nil {
		log.Error(err, "snapshot load failed")
		return nil, err
	}
	for _, w := range snap.Warnings {
		log.Info("snapshot warning", "code", w.Code, "message", w.Message)
	}
	return snap, nil
}

func (e *Engine) calibrate(ctx context.Context, snap *snapshot.Snapshot, cfg *config.Config, log logr.Logger) (*calibrator.Result, error) {
	_, span := tracing.StartComponent(ctx, snap.BuildID, "C2-calibrator")
	defer span.End()
	start := time.Now()
	defer e.observe("C2-calibrator", start)

	bands, err := calibrator.Calibrate(snap, cfg)
	if err != nil {
		log.Error(err, "calibration failed")
		return nil, err
	}
	if e.Metrics != nil {
		for dim, b := range bands.Bands {
			e.Metrics.CalibrationBands.WithLabelValues(string(dim)).Set(b.Target)
		}
	}
	return bands, nil
}

func (e *Engine) prioritize(ctx context.Context, snap *snapshot.Snapshot, bands *calibrator.Result, cfg *config.Config, policyEval *policy.Evaluator, log logr.Logger) (*priority.Result, error) {
	ctx, span := tracing.StartComponent(ctx, snap.BuildID, "C3-priority-engine")
	defer span.End()
	start := time.Now()
	defer e.observe("C3-priority-engine", start)

	result, err := priority.Run(ctx, snap, bands, cfg, policyEval)
	if err != nil {
		log.Error(err, "priority engine failed")
		return nil, err
	}
	log.Info("priority engine complete", "proposals", len(result.Proposals), "conflicts", len(result.Conflicts))
	return result, nil
}

func (e *Engine) balanceFinalize(ctx context.Context, snap *snapshot.Snapshot, pr *priority.Result, bands *calibrator.Result, cfg *config.Config, log logr.Logger) (*balance.Result, error) {
	_, span := tracing.StartComponent(ctx, snap.BuildID, "C4-balance-optimizer")
	defer span.End()
	start := time.Now()
	defer e.observe("C4-balance-optimizer", start)

	result, err := balance.Run(snap, pr, bands, cfg)
	if err != nil {
		log.Error(err, "balance optimizer failed")
		return nil, err
	}
	for _, w := range result.RebalanceWarnings {
		log.Info("balance warning", "detail", w)
	}
	return result, nil
}

func (e *Engine) persist(ctx context.Context, snap *snapshot.Snapshot, result *RunResult, log logr.Logger) error {
	_, span := tracing.StartComponent(ctx, snap.BuildID, "C5-persistence")
	defer span.End()
	start := time.Now()
	defer e.observe("C5-persistence", start)

	out := toStoreResult(snap, result)
	if err := e.Store.WriteProposals(ctx, result.BuildID, out); err != nil {
		log.Error(err, "persisting proposals failed")
		return apperrors.NewStoreUnavailable(err)
	}
	return nil
}

func toStoreResult(snap *snapshot.Snapshot, r *RunResult) *store.RunResult {
	out := &store.RunResult{
		BuildID:                r.BuildID,
		Conflicts:              len(r.Conflicts),
		UnassignedAccounts:     len(r.Conflicts),
		RebalanceWarnings:      r.RebalanceWarnings,
		RebalancingSuggestions: r.RebalancingSuggestions,
		PerGeoRollup:           map[string]int{},
		PerRepRollup:           map[string]int{},
	}
	for _, p := range r.Proposals {
		out.Proposals = append(out.Proposals, store.ProposalRecord{
			AccountID:        p.AccountID,
			CurrentOwnerID:   p.CurrentOwnerID,
			ProposedOwnerID:  p.ProposedOwnerID,
			RuleApplied:      string(p.RuleApplied),
			Confidence:       string(p.Confidence),
			AssignmentReason: p.AssignmentReason,
			WarningDetails:   p.WarningDetails,
		})
		out.PerRepRollup[p.ProposedOwnerID]++
		if a, ok := snap.Account(p.AccountID); ok && a.Geo != "" {
			out.PerGeoRollup[a.Geo]++
		}
	}
	return out
}

func (e *Engine) observe(component string, start time.Time) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.RunDuration.WithLabelValues(component).Observe(time.Since(start).Seconds())
}

func (e *Engine) recordMetrics(r *RunResult) {
	if e.Metrics == nil {
		return
	}
	for _, p := range r.Proposals {
		e.Metrics.ProposalsTotal.WithLabelValues(string(p.RuleApplied)).Inc()
	}
	for range r.Conflicts {
		e.Metrics.ConflictsTotal.Inc()
	}
}

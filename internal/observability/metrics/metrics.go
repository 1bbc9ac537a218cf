// Package metrics registers the Prometheus series emitted by each engine
// run: per-component duration, proposals by rule, and conflicts.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the series the engine updates; callers hold one instance
// for the process lifetime and register it with a prometheus.Registerer.
type Registry struct {
	RunDuration      *prometheus.HistogramVec
	ProposalsTotal   *prometheus.CounterVec
	ConflictsTotal   prometheus.Counter
	CalibrationBands *prometheus.GaugeVec
}

// New constructs a Registry and registers its series with reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "territory_engine",
			Name:      "run_duration_seconds",
			Help:      "Duration of each engine component within a build run.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
		ProposalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "territory_engine",
			Name:      "proposals_total",
			Help:      "Number of assignment proposals emitted, by rule_applied.",
		}, []string{"rule"}),
		ConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "territory_engine",
			Name:      "conflicts_total",
			Help:      "Number of CAPACITY-OVERFLOW conflicts emitted.",
		}),
		CalibrationBands: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "territory_engine",
			Name:      "calibration_target",
			Help:      "Per-dimension calibrated target, by dimension.",
		}, []string{"dimension"}),
	}
	reg.MustRegister(r.RunDuration, r.ProposalsTotal, r.ConflictsTotal, r.CalibrationBands)
	return r
}

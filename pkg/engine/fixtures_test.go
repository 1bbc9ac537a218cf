package engine

import (
	"context"

	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/pkg/balance"
	"github.com/jordigilh/territory-assignment-core/pkg/calibrator"
	"github.com/jordigilh/territory-assignment-core/pkg/priority"
	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

// baseConfig returns a minimal valid Config with every priority enabled in
// catalogue order and an identity territory mapping, the same shape every
// scenario in this package starts from and narrows.
func baseConfig() *config.Config {
	return &config.Config{
		CustomerARR:       config.BandConfig{VariancePct: 0.2},
		CustomerATR:       config.BandConfig{VariancePct: 0.2},
		Prospect:          config.BandConfig{VariancePct: 0.2},
		TerritoryMappings: map[string]string{"EMEA": "EMEA", "AMER": "AMER"},
		OptimizationModel: config.ModelWaterfall,
		BalanceIntensity:  config.IntensityNormal,
		AssignmentMode:    "Standard",
		PriorityConfig: []config.PriorityEntry{
			{PriorityID: "P0", Enabled: true},
			{PriorityID: "P1", Enabled: true},
			{PriorityID: "P2", Enabled: true},
			{PriorityID: "P3", Enabled: true},
			{PriorityID: "RO", Enabled: true},
		},
	}
}

// pipeline is the full C1-C4 sequence exercised without a Store, so property
// and scenario tests run against literal in-memory fixtures (spec §4.1
// implementation note: the loader is a pure function, testable without a
// database).
func pipeline(raw *snapshot.RawSnapshot, cfg *config.Config) (*snapshot.Snapshot, *calibrator.Result, *priority.Result, *balance.Result, error) {
	snap, err := snapshot.Load(raw)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	bands, err := calibrator.Calibrate(snap, cfg)
	if err != nil {
		return snap, nil, nil, nil, err
	}
	pr, err := priority.Run(context.Background(), snap, bands, cfg, nil)
	if err != nil {
		return snap, bands, nil, nil, err
	}
	bal, err := balance.Run(snap, pr, bands, cfg)
	if err != nil {
		return snap, bands, pr, nil, err
	}
	return snap, bands, pr, bal, nil
}

func rep(id, region string) *snapshot.Rep {
	return &snapshot.Rep{RepID: id, Name: id, Region: region, IsActive: true, IncludeInAssignments: true}
}

func customerAccount(id, territory string, arr float64) *snapshot.Account {
	return &snapshot.Account{AccountID: id, DisplayName: id, ARR: arr, SalesTerritory: territory}
}

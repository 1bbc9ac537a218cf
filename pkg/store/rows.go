package store

import (
	"database/sql"

	"github.com/jordigilh/territory-assignment-core/pkg/snapshot"
)

// Row structs mirror the accounts/reps/opportunities tables with explicit
// db tags; they are kept separate from the snapshot.* domain types so the
// persistence shape (nullable columns, db tags) never leaks into the pure
// in-memory model pkg/snapshot operates on.

type accountRow struct {
	AccountID                string         `db:"account_id"`
	DisplayName               string         `db:"display_name"`
	UltimateParentID          sql.NullString `db:"ultimate_parent_id"`
	ARR                       float64        `db:"arr"`
	ATR                       float64        `db:"atr"`
	CalculatedARR             float64        `db:"calculated_arr"`
	CalculatedATR             float64        `db:"calculated_atr"`
	HierarchyBookingsARR      float64        `db:"hierarchy_bookings_arr"`
	ExpansionTier             sql.NullString `db:"expansion_tier"`
	InitialSaleTier           sql.NullString `db:"initial_sale_tier"`
	SalesTerritory            string         `db:"sales_territory"`
	Geo                       string         `db:"geo"`
	HQCountry                 string         `db:"hq_country"`
	RenewalQuarter            sql.NullString `db:"renewal_quarter"`
	RenewalEventDate          sql.NullTime   `db:"renewal_event_date"`
	CRECount                  int            `db:"cre_count"`
	CRERisk                   string         `db:"cre_risk"`
	RiskFlag                  bool           `db:"risk_flag"`
	CREStatus                 string         `db:"cre_status"`
	OwnerID                   string         `db:"owner_id"`
	OwnerName                 string         `db:"owner_name"`
	NewOwnerID                sql.NullString `db:"new_owner_id"`
	NewOwnerName              sql.NullString `db:"new_owner_name"`
	IsStrategicAccount        bool           `db:"is_strategic_account"`
	IsManualHoldover          bool           `db:"is_manual_holdover"`
	DesignatedStrategicRepID  sql.NullString `db:"designated_strategic_rep_id"`
}

func (r accountRow) toDomain() *snapshot.Account {
	return &snapshot.Account{
		AccountID:                r.AccountID,
		DisplayName:              r.DisplayName,
		UltimateParentID:         r.UltimateParentID.String,
		ARR:                      r.ARR,
		ATR:                      r.ATR,
		CalculatedARR:            r.CalculatedARR,
		CalculatedATR:            r.CalculatedATR,
		HierarchyBookingsARR:     r.HierarchyBookingsARR,
		ExpansionTier:            snapshot.Tier(r.ExpansionTier.String),
		InitialSaleTier:          snapshot.Tier(r.InitialSaleTier.String),
		SalesTerritory:           r.SalesTerritory,
		Geo:                      r.Geo,
		HQCountry:                r.HQCountry,
		RenewalQuarter:           snapshot.Quarter(r.RenewalQuarter.String),
		RenewalEventDate:         r.RenewalEventDate.Time,
		CRECount:                 r.CRECount,
		CRERisk:                  r.CRERisk,
		RiskFlag:                 r.RiskFlag,
		CREStatus:                r.CREStatus,
		OwnerID:                  r.OwnerID,
		OwnerName:                r.OwnerName,
		NewOwnerID:               r.NewOwnerID.String,
		NewOwnerName:             r.NewOwnerName.String,
		IsStrategicAccount:       r.IsStrategicAccount,
		IsManualHoldover:         r.IsManualHoldover,
		DesignatedStrategicRepID: r.DesignatedStrategicRepID.String,
	}
}

type repRow struct {
	RepID                string `db:"rep_id"`
	Name                 string `db:"name"`
	Team                 sql.NullString `db:"team"`
	FLM                  sql.NullString `db:"flm"`
	SLM                  sql.NullString `db:"slm"`
	Region               string `db:"region"`
	IsActive             bool   `db:"is_active"`
	IncludeInAssignments bool   `db:"include_in_assignments"`
	IsStrategicRep       bool   `db:"is_strategic_rep"`
	IsBackfillSource     bool   `db:"is_backfill_source"`
	IsBackfillTarget     bool   `db:"is_backfill_target"`
	IsPlaceholder        bool   `db:"is_placeholder"`
}

func (r repRow) toDomain() *snapshot.Rep {
	return &snapshot.Rep{
		RepID:                r.RepID,
		Name:                 r.Name,
		Team:                 r.Team.String,
		FLM:                  r.FLM.String,
		SLM:                  r.SLM.String,
		Region:               r.Region,
		IsActive:             r.IsActive,
		IncludeInAssignments: r.IncludeInAssignments,
		IsStrategicRep:       r.IsStrategicRep,
		IsBackfillSource:     r.IsBackfillSource,
		IsBackfillTarget:     r.IsBackfillTarget,
		IsPlaceholder:        r.IsPlaceholder,
	}
}

type opportunityRow struct {
	OpportunityID    string         `db:"opportunity_id"`
	AccountID        string         `db:"account_id"`
	OpportunityType  string         `db:"opportunity_type"`
	AvailableToRenew float64        `db:"available_to_renew"`
	RenewalEventDate sql.NullTime   `db:"renewal_event_date"`
	OwnerID          sql.NullString `db:"owner_id"`
	NewOwnerID       sql.NullString `db:"new_owner_id"`
	CREStatus        string         `db:"cre_status"`
	NetARR           float64        `db:"net_arr"`
}

func (r opportunityRow) toDomain() *snapshot.Opportunity {
	return &snapshot.Opportunity{
		OpportunityID:    r.OpportunityID,
		AccountID:        r.AccountID,
		OpportunityType:  r.OpportunityType,
		AvailableToRenew: r.AvailableToRenew,
		RenewalEventDate: r.RenewalEventDate.Time,
		OwnerID:          r.OwnerID.String,
		NewOwnerID:       r.NewOwnerID.String,
		CREStatus:        r.CREStatus,
		NetARR:           r.NetARR,
	}
}

package service

import (
	"database/sql"
	"time"

	"github.com/prizzzz/leaseIQ/model"
)

// contractColumns is the select list shared by the SQL repositories.
const contractColumns = `id, tenant, filename, object_name, pdf_url, status, error_msg, contract_text,
	make, model, year, vin, purchase_price, monthly_payment, down_payment, residual_value,
	apr_percent, lease_term_months, annual_mileage_km, early_termination_level, penalty_level,
	maintenance_type, warranty_type, purchase_option_status, junk_fees,
	score, rating, explanation, strategy, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanContract reads one row in contractColumns order. Extracted fields are
// only attached once a score has been locked.
func scanContract(row rowScanner) (*model.Contract, error) {
	var (
		c         model.Contract
		d         model.ContractData
		text      sql.NullString
		vehicle   [4]sql.NullString
		money     [5]sql.NullFloat64
		term      sql.NullInt64
		mileage   sql.NullInt64
		levels    [5]sql.NullString
		junkFees  sql.NullString
		score     sql.NullInt64
		rating    sql.NullString
		explain   sql.NullString
		strategy  sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(
		&c.ID, &c.Tenant, &c.Filename, &c.ObjectName, &c.PDFURL, &c.Status, &c.ErrorMsg, &text,
		&vehicle[0], &vehicle[1], &vehicle[2], &vehicle[3],
		&money[0], &money[1], &money[2], &money[3], &money[4],
		&term, &mileage,
		&levels[0], &levels[1], &levels[2], &levels[3], &levels[4],
		&junkFees, &score, &rating, &explain, &strategy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Text = text.String
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	if !score.Valid {
		return &c, nil
	}

	d.Make, d.Model, d.Year, d.VIN = vehicle[0].String, vehicle[1].String, vehicle[2].String, vehicle[3].String
	d.PurchasePrice = money[0].Float64
	d.MonthlyPaymentINR = money[1].Float64
	d.DownPaymentINR = money[2].Float64
	d.ResidualValueINR = money[3].Float64
	d.APRPercent = money[4].Float64
	d.LeaseTermMonths = int(term.Int64)
	d.AnnualMileageKm = int(mileage.Int64)
	d.EarlyTerminationLevel = model.RiskLevel(levels[0].String)
	d.PenaltyLevel = model.RiskLevel(levels[1].String)
	d.MaintenanceType = model.MaintenanceType(levels[2].String)
	d.WarrantyType = model.WarrantyType(levels[3].String)
	d.PurchaseOptionStatus = model.PurchaseOption(levels[4].String)
	d.JunkFees = model.SplitJunkFees(junkFees.String)

	c.Data = &d
	c.Fairness = &model.FairnessResult{
		Score:       int(score.Int64),
		Rating:      model.Rating(rating.String),
		Explanation: explain.String,
	}
	c.Strategy = model.ScoringStrategy(strategy.String)
	return &c, nil
}

// lockArgs returns the values written by Lock, in lockAssignments order.
func lockArgs(a model.Analysis, now time.Time) []any {
	d := a.Data
	return []any{
		a.Text,
		d.Make, d.Model, d.Year, d.VIN,
		d.PurchasePrice, d.MonthlyPaymentINR, d.DownPaymentINR, d.ResidualValueINR, d.APRPercent,
		d.LeaseTermMonths, d.AnnualMileageKm,
		string(d.EarlyTerminationLevel), string(d.PenaltyLevel), string(d.MaintenanceType),
		string(d.WarrantyType), string(d.PurchaseOptionStatus),
		d.JunkFeesString(),
		a.Fairness.Score, string(a.Fairness.Rating), a.Fairness.Explanation, string(a.Strategy),
		model.StatusCompleted, now,
	}
}

var lockAssignments = []string{
	"contract_text",
	"make", "model", "year", "vin",
	"purchase_price", "monthly_payment", "down_payment", "residual_value", "apr_percent",
	"lease_term_months", "annual_mileage_km",
	"early_termination_level", "penalty_level", "maintenance_type",
	"warranty_type", "purchase_option_status",
	"junk_fees",
	"score", "rating", "explanation", "strategy",
	"status", "updated_at",
}

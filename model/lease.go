package model

import (
	"strings"
)

// RiskLevel grades early-termination and penalty clauses.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// MaintenanceType says who carries maintenance costs.
type MaintenanceType string

const (
	MaintenanceDealer   MaintenanceType = "Dealer"
	MaintenanceCustomer MaintenanceType = "Customer"
	MaintenanceShared   MaintenanceType = "Shared"
)

// WarrantyType describes warranty coverage during the lease.
type WarrantyType string

const (
	WarrantyIncluded    WarrantyType = "Included"
	WarrantyPartial     WarrantyType = "Partial"
	WarrantyNotIncluded WarrantyType = "Not Included"
)

// PurchaseOption describes whether the lessee can buy the vehicle out.
type PurchaseOption string

const (
	PurchaseAvailable    PurchaseOption = "Available"
	PurchaseNotAvailable PurchaseOption = "Not Available"
)

// Sentinel identifiers. They are valid values, not missing data.
const (
	UnknownMake  = "Unknown"
	UnknownModel = "Vehicle"
	NotAvailable = "N/A"
)

// ParseRiskLevel maps free text to a RiskLevel, defaulting to Medium.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow
	case "high":
		return RiskHigh
	default:
		return RiskMedium
	}
}

// ParseMaintenanceType defaults to Customer.
func ParseMaintenanceType(s string) MaintenanceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dealer":
		return MaintenanceDealer
	case "shared":
		return MaintenanceShared
	default:
		return MaintenanceCustomer
	}
}

// ParseWarrantyType defaults to Not Included.
func ParseWarrantyType(s string) WarrantyType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "included":
		return WarrantyIncluded
	case "partial":
		return WarrantyPartial
	default:
		return WarrantyNotIncluded
	}
}

// ParsePurchaseOption defaults to Not Available.
func ParsePurchaseOption(s string) PurchaseOption {
	if strings.EqualFold(strings.TrimSpace(s), string(PurchaseAvailable)) {
		return PurchaseAvailable
	}
	return PurchaseNotAvailable
}

// ContractData is the normalized record produced by extraction and consumed by scoring.
type ContractData struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  string `json:"year"`
	VIN   string `json:"vin"`

	PurchasePrice     float64 `json:"purchasePrice"`
	MonthlyPaymentINR float64 `json:"monthlyPaymentINR"`
	DownPaymentINR    float64 `json:"downPaymentINR"`
	ResidualValueINR  float64 `json:"residualValueINR"`
	APRPercent        float64 `json:"aprPercent"`
	LeaseTermMonths   int     `json:"leaseTermMonths"`
	AnnualMileageKm   int     `json:"annualMileageKm"`

	EarlyTerminationLevel RiskLevel       `json:"earlyTerminationLevel"`
	PenaltyLevel          RiskLevel       `json:"penaltyLevel"`
	MaintenanceType       MaintenanceType `json:"maintenanceType"`
	WarrantyType          WarrantyType    `json:"warrantyType"`
	PurchaseOptionStatus  PurchaseOption  `json:"purchaseOptionStatus"`

	JunkFees []string `json:"junk_fees"`
}

// Normalize applies the documented defaults to every absent field.
func (d *ContractData) Normalize() {
	d.Make = orDefault(d.Make, UnknownMake)
	d.Model = orDefault(d.Model, UnknownModel)
	d.Year = orDefault(d.Year, NotAvailable)
	d.VIN = orDefault(d.VIN, NotAvailable)

	d.PurchasePrice = nonNegative(d.PurchasePrice)
	d.MonthlyPaymentINR = nonNegative(d.MonthlyPaymentINR)
	d.DownPaymentINR = nonNegative(d.DownPaymentINR)
	d.ResidualValueINR = nonNegative(d.ResidualValueINR)
	d.APRPercent = nonNegative(d.APRPercent)
	if d.LeaseTermMonths < 0 {
		d.LeaseTermMonths = 0
	}
	if d.AnnualMileageKm < 0 {
		d.AnnualMileageKm = 0
	}

	d.EarlyTerminationLevel = ParseRiskLevel(string(d.EarlyTerminationLevel))
	d.PenaltyLevel = ParseRiskLevel(string(d.PenaltyLevel))
	d.MaintenanceType = ParseMaintenanceType(string(d.MaintenanceType))
	d.WarrantyType = ParseWarrantyType(string(d.WarrantyType))
	d.PurchaseOptionStatus = ParsePurchaseOption(string(d.PurchaseOptionStatus))

	fees := make([]string, 0, len(d.JunkFees))
	for _, f := range d.JunkFees {
		if f = strings.TrimSpace(f); f != "" {
			fees = append(fees, f)
		}
	}
	d.JunkFees = fees
}

// TermMonths returns the lease term, treating an absent term as one month.
func (d ContractData) TermMonths() int {
	if d.LeaseTermMonths <= 0 {
		return 1
	}
	return d.LeaseTermMonths
}

// JunkFeesString is the persisted, comma-joined form of JunkFees.
func (d ContractData) JunkFeesString() string {
	return strings.Join(d.JunkFees, ", ")
}

// SplitJunkFees parses the persisted junk fee string.
func SplitJunkFees(s string) []string {
	fees := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			fees = append(fees, part)
		}
	}
	return fees
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return def
	}
	return s
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

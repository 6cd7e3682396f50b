package model

import "strings"

// Rating is the consumer-facing fairness label.
type Rating string

const (
	RatingFair     Rating = "Fair"
	RatingModerate Rating = "Moderate"
	RatingUnfair   Rating = "Unfair"
)

// ScoringStrategy names the formula that produced a fairness score.
type ScoringStrategy string

const (
	// StrategyPriceAPR blends price-to-market and APR. Used for the upload-time lock by default.
	StrategyPriceAPR ScoringStrategy = "price_apr"
	// StrategyRiskFee is the strict risk-severity and junk-fee formula.
	StrategyRiskFee ScoringStrategy = "risk_fee"
)

// ParseScoringStrategy returns the strategy named by s and whether it was recognized.
func ParseScoringStrategy(s string) (ScoringStrategy, bool) {
	switch ScoringStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyPriceAPR:
		return StrategyPriceAPR, true
	case StrategyRiskFee:
		return StrategyRiskFee, true
	default:
		return "", false
	}
}

// FairnessResult is computed once per contract and never changed afterwards.
type FairnessResult struct {
	Score       int    `json:"score"`
	Rating      Rating `json:"rating"`
	Explanation string `json:"explanation"`
}

// RiskFactor is a clause the model judged risky, severity 1 (low) to 5 (high).
type RiskFactor struct {
	Name        string `json:"name"`
	Severity    int    `json:"severity"`
	Description string `json:"description"`
}

// ClampSeverity bounds the severity to 1..5.
func (r *RiskFactor) ClampSeverity() {
	switch {
	case r.Severity < 1:
		r.Severity = 1
	case r.Severity > 5:
		r.Severity = 5
	}
}

// HiddenFee is a fee surfaced by analysis. Amount is never negative.
type HiddenFee struct {
	Name          string  `json:"name"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Frequency     string  `json:"frequency"`
	ClauseExcerpt string  `json:"clause_excerpt,omitempty"`
}

// DefaultCurrency is used when a fee or price block names none.
const DefaultCurrency = "INR"

// Normalize applies fee defaults.
func (f *HiddenFee) Normalize() {
	if f.Amount < 0 {
		f.Amount = 0
	}
	if f.Currency == "" {
		f.Currency = DefaultCurrency
	}
	if f.Frequency == "" {
		f.Frequency = "one-time"
	}
}

// HiddenFeesFromJunk lists junk fees as zero-amount hidden fees.
func HiddenFeesFromJunk(junk []string) []HiddenFee {
	fees := make([]HiddenFee, 0, len(junk))
	for _, name := range junk {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		f := HiddenFee{Name: name}
		f.Normalize()
		fees = append(fees, f)
	}
	return fees
}

// PriceFactors summarizes the cost structure of a lease.
type PriceFactors struct {
	BasePrice           float64 `json:"base_price"`
	TotalMonthlyPayment float64 `json:"total_monthly_payment"`
	TotalDueAtSigning   float64 `json:"total_due_at_signing"`
	EstimatedTotalCost  float64 `json:"estimated_total_cost"`
	Currency            string  `json:"currency"`
}

// PriceFactorsFromContract derives price factors from extracted contract data.
// EstimatedTotalCost is monthly*term + down, plus residual when includeResidual is set.
func PriceFactorsFromContract(d ContractData, includeResidual bool) PriceFactors {
	total := d.MonthlyPaymentINR*float64(d.TermMonths()) + d.DownPaymentINR
	if includeResidual {
		total += d.ResidualValueINR
	}
	return PriceFactors{
		BasePrice:           d.PurchasePrice,
		TotalMonthlyPayment: d.MonthlyPaymentINR,
		TotalDueAtSigning:   d.DownPaymentINR,
		EstimatedTotalCost:  total,
		Currency:            DefaultCurrency,
	}
}

// FillEstimatedTotal derives EstimatedTotalCost from the contract when the model left it at zero.
func (p *PriceFactors) FillEstimatedTotal(d ContractData) {
	if p.EstimatedTotalCost <= 0 {
		p.EstimatedTotalCost = PriceFactorsFromContract(d, false).EstimatedTotalCost
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
}

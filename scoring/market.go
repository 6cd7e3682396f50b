// Package scoring holds the deterministic fairness engine: the depreciation
// based market price estimator and the two fairness formulas. Nothing in this
// package performs I/O, returns an error, or keeps state between calls.
package scoring

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Segment is a coarse price class of a vehicle make.
type Segment string

const (
	SegmentLuxury   Segment = "luxury"
	SegmentMidRange Segment = "mid-range"
	SegmentEconomy  Segment = "economy"
)

// Base sticker prices per segment.
const (
	LuxuryBasePrice   = 65000.0
	MidRangeBasePrice = 38000.0
	EconomyBasePrice  = 28000.0
)

// AnnualRetention is the share of value a vehicle keeps each year (14% depreciation).
const AnnualRetention = 0.86

// ReferenceCreditTier is the credit score assumed when pricing a contract.
const ReferenceCreditTier = 720

var (
	luxuryMakes = map[string]bool{
		"BMW": true, "MERCEDES-BENZ": true, "AUDI": true,
		"LEXUS": true, "PORSCHE": true, "LAND ROVER": true,
	}
	midRangeMakes = map[string]bool{
		"TOYOTA": true, "HONDA": true, "FORD": true,
		"CHEVROLET": true, "VOLKSWAGEN": true, "TESLA": true,
	}
)

// Classify returns the segment for a make, case-insensitively. Unknown makes are economy.
func Classify(make string) Segment {
	m := strings.ToUpper(strings.TrimSpace(make))
	switch {
	case luxuryMakes[m]:
		return SegmentLuxury
	case midRangeMakes[m]:
		return SegmentMidRange
	default:
		return SegmentEconomy
	}
}

// BasePrice returns the sticker price constant of a segment.
func (s Segment) BasePrice() float64 {
	switch s {
	case SegmentLuxury:
		return LuxuryBasePrice
	case SegmentMidRange:
		return MidRangeBasePrice
	default:
		return EconomyBasePrice
	}
}

// CreditFactor is the price multiplier for a buyer's credit tier.
func CreditFactor(creditTier int) float64 {
	switch {
	case creditTier >= 750:
		return 0.95
	case creditTier < 640:
		return 1.10
	default:
		return 1.0
	}
}

// MarketPricer estimates a fair market price for a vehicle.
type MarketPricer interface {
	EstimatePrice(year, make, model string, creditTier int) float64
}

// Estimator is the depreciation model. Now defaults to time.Now.
type Estimator struct {
	Now func() time.Time
}

// NewEstimator returns an Estimator on the wall clock.
func NewEstimator() Estimator {
	return Estimator{Now: time.Now}
}

func (e Estimator) currentYear() int {
	if e.Now == nil {
		return time.Now().Year()
	}
	return e.Now().Year()
}

// Age returns the vehicle age in years. A missing or non-numeric year counts as new.
func (e Estimator) Age(year string) int {
	current := e.currentYear()
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y <= 0 {
		y = current
	}
	if age := current - y; age > 0 {
		return age
	}
	return 0
}

// EstimatePrice returns base * 0.86^age * creditFactor, truncated to a whole
// amount and never below 1. The model name does not affect the estimate.
func (e Estimator) EstimatePrice(year, make, _ string, creditTier int) float64 {
	base := Classify(make).BasePrice()
	value := base * math.Pow(AnnualRetention, float64(e.Age(year))) * CreditFactor(creditTier)
	return math.Max(1, math.Floor(value))
}

// EstimatePriceYear is EstimatePrice for an integer model year.
func (e Estimator) EstimatePriceYear(year int, make, model string, creditTier int) float64 {
	return e.EstimatePrice(strconv.Itoa(year), make, model, creditTier)
}

// PriceRange is the band around the market price considered fair.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// MarketComparison compares a listed contract price with the market estimate.
type MarketComparison struct {
	MarketPrice    float64    `json:"market_price"`
	Difference     float64    `json:"difference"`
	DiffPercent    float64    `json:"diff_percent"`
	Verdict        string     `json:"rating"`
	SuggestedRange PriceRange `json:"suggested_range"`
}

// Comparison verdicts.
const (
	VerdictNotAvailable = "N/A"
	VerdictGreatDeal    = "Great Deal! Paying below market value."
	VerdictFair         = "Fair Deal. Price is competitive."
	VerdictStandard     = "Standard Market Price."
	VerdictOverpriced   = "Overpriced. Consider negotiation."
)

// Compare grades contractPrice against marketPrice. A contract price of zero
// or less, or one that is not finite, yields the N/A verdict with zero
// difference. A market price that is not finite yields a bare N/A.
func Compare(contractPrice, marketPrice float64) MarketComparison {
	if !finite(marketPrice) {
		return MarketComparison{Verdict: VerdictNotAvailable}
	}
	if !finite(contractPrice) {
		contractPrice = 0
	}
	market := decimal.NewFromFloat(math.Max(marketPrice, 1))
	hundred := decimal.NewFromInt(100)

	cmp := MarketComparison{
		MarketPrice: marketPrice,
		Verdict:     VerdictNotAvailable,
		SuggestedRange: PriceRange{
			Low:  market.Mul(decimal.NewFromFloat(0.95)).Round(2).InexactFloat64(),
			High: market.Mul(decimal.NewFromFloat(1.05)).Round(2).InexactFloat64(),
		},
	}
	if contractPrice <= 0 {
		return cmp
	}

	diff := decimal.NewFromFloat(contractPrice).Sub(market)
	pct := diff.Div(market).Mul(hundred)
	cmp.Difference = diff.Round(2).InexactFloat64()
	cmp.DiffPercent = pct.Round(2).InexactFloat64()

	switch {
	case pct.LessThanOrEqual(decimal.NewFromInt(-5)):
		cmp.Verdict = VerdictGreatDeal
	case pct.LessThanOrEqual(decimal.NewFromInt(5)):
		cmp.Verdict = VerdictFair
	case pct.LessThanOrEqual(decimal.NewFromInt(15)):
		cmp.Verdict = VerdictStandard
	default:
		cmp.Verdict = VerdictOverpriced
	}
	return cmp
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

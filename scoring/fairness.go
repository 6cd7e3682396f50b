package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/prizzzz/leaseIQ/model"
)

// Risk/fee weights. They sum to 1.
const (
	riskWeight   = 0.45
	feeWeight    = 0.45
	amountWeight = 0.10
)

// TransparentExplanation is used when no concern was triggered.
const TransparentExplanation = "The contract is transparent and follows market standards."

// RiskFeeInput is everything the strict formula looks at.
type RiskFeeInput struct {
	RiskFactors  []model.RiskFactor
	HiddenFees   []model.HiddenFee
	PriceFactors model.PriceFactors
	JunkFees     []string
}

// RiskFeeBreakdown is the strict result with its intermediate values.
type RiskFeeBreakdown struct {
	model.FairnessResult
	FeeCount    int     `json:"fee_count"`
	AvgSeverity float64 `json:"avg_severity"`
	AmountRatio float64 `json:"amount_ratio"`
	RiskScore   float64 `json:"risk_score"`
	FeeScore    float64 `json:"fee_score"`
	AmountScore float64 `json:"amount_score"`
}

// ScoreRiskFee is the strict formula: any junk fee or an average risk
// severity of 3 or more pulls the contract out of the Fair band.
func ScoreRiskFee(in RiskFeeInput) RiskFeeBreakdown {
	feeCount := len(in.HiddenFees) + len(in.JunkFees)

	avgSeverity := 1.0
	if len(in.RiskFactors) > 0 {
		sum := 0
		for _, r := range in.RiskFactors {
			r.ClampSeverity()
			sum += r.Severity
		}
		avgSeverity = float64(sum) / float64(len(in.RiskFactors))
	} else if feeCount > 0 {
		avgSeverity = 3.0
	}

	hidden := 0.0
	for _, f := range in.HiddenFees {
		hidden += math.Max(0, f.Amount)
	}
	ratio := 0.0
	if total := in.PriceFactors.EstimatedTotalCost; total > 0 {
		ratio = hidden / total
	}

	riskScore := floorZero(100 - (avgSeverity-1)*30)
	feeScore := floorZero(100 - math.Min(float64(feeCount)*45, 100))
	amountScore := floorZero(100 - math.Min(ratio*500, 100))

	score := clampScore(int(math.Round(riskWeight*riskScore + feeWeight*feeScore + amountWeight*amountScore)))

	return RiskFeeBreakdown{
		FairnessResult: model.FairnessResult{
			Score:       score,
			Rating:      StrictRating(score),
			Explanation: riskFeeExplanation(feeCount, avgSeverity, ratio),
		},
		FeeCount:    feeCount,
		AvgSeverity: avgSeverity,
		AmountRatio: ratio,
		RiskScore:   riskScore,
		FeeScore:    feeScore,
		AmountScore: amountScore,
	}
}

// StrictRating maps a strict score: >=75 Fair, >=50 Moderate, otherwise Unfair.
func StrictRating(score int) model.Rating {
	switch {
	case score >= 75:
		return model.RatingFair
	case score >= 50:
		return model.RatingModerate
	default:
		return model.RatingUnfair
	}
}

// LockedRating maps a locked score for display: >=75 Fair, >=40 Moderate,
// otherwise Unfair. Every surface that shows a persisted score uses this.
func LockedRating(score int) model.Rating {
	switch {
	case score >= 75:
		return model.RatingFair
	case score >= 40:
		return model.RatingModerate
	default:
		return model.RatingUnfair
	}
}

func riskFeeExplanation(feeCount int, avgSeverity, ratio float64) string {
	var reasons []string
	if feeCount > 0 {
		reasons = append(reasons, fmt.Sprintf("%d junk fee(s) detected", feeCount))
	}
	if avgSeverity >= 3 {
		reasons = append(reasons, "high-risk termination clauses")
	}
	if ratio > 0.03 {
		reasons = append(reasons, "significant hidden cost ratio")
	}
	if len(reasons) == 0 {
		return TransparentExplanation
	}
	return fmt.Sprintf("Unfair items found: %s. This makes the deal financially risky.", strings.Join(reasons, ", "))
}

// DealRating is the three-tier label of the price/APR formula.
type DealRating string

const (
	DealExcellent DealRating = "Excellent Deal"
	DealFair      DealRating = "Fair Deal"
	DealBad       DealRating = "Bad Deal (Check Interest/Price)"
)

// DealRatingFor maps a price/APR score: >=85 Excellent, >=70 Fair, otherwise Bad.
func DealRatingFor(score int) DealRating {
	switch {
	case score >= 85:
		return DealExcellent
	case score >= 70:
		return DealFair
	default:
		return DealBad
	}
}

// PriceAPRBreakdown is the price/APR result with its intermediate values.
type PriceAPRBreakdown struct {
	Score            int        `json:"fairness_score"`
	DealRating       DealRating `json:"deal_rating"`
	PurchasePrice    float64    `json:"purchase_amount"`
	MarketEstimate   float64    `json:"market_estimate"`
	TotalFinanceCost float64    `json:"total_finance_cost"`
	PriceRatio       float64    `json:"price_ratio"`
	PriceScore       float64    `json:"price_score"`
	InterestScore    float64    `json:"interest_score"`
	APRImpact        string     `json:"apr_impact"`
}

// ScorePriceAPR blends price-to-market (60%) and APR (40%). A missing
// purchase price is estimated as 90% of the total finance cost.
func ScorePriceAPR(d model.ContractData, market MarketPricer, creditTier int) PriceAPRBreakdown {
	totalCost := d.MonthlyPaymentINR*float64(d.TermMonths()) + d.DownPaymentINR + d.ResidualValueINR

	purchase := d.PurchasePrice
	if purchase == 0 {
		purchase = totalCost * 0.90
	}

	marketPrice := market.EstimatePrice(d.Year, d.Make, d.Model, creditTier)
	ratio := purchase / math.Max(marketPrice, 1)

	priceScore := 100.0
	if ratio > 1 {
		priceScore = floorZero(100 - (ratio-1)*500)
	}
	interestScore := InterestScore(d.APRPercent)

	score := clampScore(int(math.Round(priceScore*0.6 + interestScore*0.4)))

	impact := "Positive"
	if d.APRPercent >= 5 {
		impact = "Negative"
	}

	return PriceAPRBreakdown{
		Score:            score,
		DealRating:       DealRatingFor(score),
		PurchasePrice:    purchase,
		MarketEstimate:   marketPrice,
		TotalFinanceCost: totalCost,
		PriceRatio:       ratio,
		PriceScore:       priceScore,
		InterestScore:    interestScore,
		APRImpact:        impact,
	}
}

// InterestScore grades an APR. Zero means unknown and scores a neutral 75.
func InterestScore(apr float64) float64 {
	switch {
	case apr == 0:
		return 75
	case apr <= 3.5:
		return 100
	case apr <= 7.0:
		return 85
	default:
		return floorZero(100 - apr*6)
	}
}

func floorZero(v float64) float64 {
	return math.Max(0, v)
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

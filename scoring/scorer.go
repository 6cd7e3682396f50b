package scoring

import (
	"fmt"

	"github.com/prizzzz/leaseIQ/model"
)

// Scorer produces the fairness result that is locked onto a contract at upload time.
type Scorer struct {
	Strategy   model.ScoringStrategy
	Market     MarketPricer
	CreditTier int
}

// NewScorer returns a Scorer. An unknown strategy falls back to price/APR and
// a nil market pricer to the wall-clock Estimator.
func NewScorer(strategy model.ScoringStrategy, market MarketPricer, creditTier int) *Scorer {
	if _, ok := model.ParseScoringStrategy(string(strategy)); !ok {
		strategy = model.StrategyPriceAPR
	}
	if market == nil {
		market = NewEstimator()
	}
	if creditTier <= 0 {
		creditTier = ReferenceCreditTier
	}
	return &Scorer{Strategy: strategy, Market: market, CreditTier: creditTier}
}

// Lock scores normalized contract data with the configured strategy.
func (s *Scorer) Lock(d model.ContractData) model.FairnessResult {
	if s.Strategy == model.StrategyRiskFee {
		return ScoreRiskFee(RiskFeeInput{
			PriceFactors: model.PriceFactorsFromContract(d, false),
			JunkFees:     d.JunkFees,
		}).FairnessResult
	}

	b := ScorePriceAPR(d, s.Market, s.CreditTier)
	return model.FairnessResult{
		Score:  b.Score,
		Rating: LockedRating(b.Score),
		Explanation: fmt.Sprintf(
			"Initial audit: %s. Price score %.0f/100 against an estimated market value of %.0f; interest score %.0f/100 at %.2f%% APR.",
			b.DealRating, b.PriceScore, b.MarketEstimate, b.InterestScore, d.APRPercent,
		),
	}
}

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/prizzzz/leaseIQ/handler"
	"github.com/prizzzz/leaseIQ/model"
	"github.com/prizzzz/leaseIQ/pkg/report"
	"github.com/prizzzz/leaseIQ/scoring"
	"github.com/prizzzz/leaseIQ/service"
)

// cliLogger is used by the offline commands (writes to stderr).
var cliLogger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: false,
})

// scoreParams holds the parsed flags for the score command.
type scoreParams struct {
	path       string
	strategy   string
	creditTier int
	jsonOutput bool
	market     scoring.MarketPricer
	stdout     io.Writer
}

// scoreOutput is the --json shape of the score command.
type scoreOutput struct {
	Data     model.ContractData         `json:"data"`
	Strategy model.ScoringStrategy      `json:"strategy"`
	Fairness model.FairnessResult       `json:"fairness"`
	PriceAPR *scoring.PriceAPRBreakdown `json:"price_apr,omitempty"`
	RiskFee  *scoring.RiskFeeBreakdown  `json:"risk_fee,omitempty"`
}

// runScore scores extracted contract JSON without touching the network.
func runScore(p scoreParams) error {
	strategy, ok := model.ParseScoringStrategy(p.strategy)
	if !ok {
		return fmt.Errorf("invalid strategy %q: must be 'price_apr' or 'risk_fee'", p.strategy)
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read contract: %w", err)
	}
	data, err := service.ParseContractData(string(raw))
	if err != nil {
		return err
	}

	scorer := scoring.NewScorer(strategy, p.market, p.creditTier)
	r := report.Score{
		Data:     data,
		Strategy: strategy,
		Fairness: scorer.Lock(data),
	}
	if strategy == model.StrategyRiskFee {
		b := scoring.ScoreRiskFee(scoring.RiskFeeInput{
			PriceFactors: model.PriceFactorsFromContract(data, false),
			JunkFees:     data.JunkFees,
		})
		r.RiskFee = &b
	} else {
		b := scoring.ScorePriceAPR(data, scorer.Market, scorer.CreditTier)
		r.PriceAPR = &b
	}
	cliLogger.Info("contract scored", "file", p.path, "score", r.Fairness.Score, "rating", r.Fairness.Rating)

	if p.jsonOutput {
		enc := json.NewEncoder(p.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(scoreOutput(r))
	}
	return report.WriteScore(p.stdout, r)
}

func newScoreCmd() *cobra.Command {
	var (
		strategy   string
		creditTier int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "score [contract.json]",
		Short: "Score extracted lease contract data",
		Long: `Score a JSON document in the extraction format and print the
fairness result with its breakdown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(scoreParams{
				path:       args[0],
				strategy:   strategy,
				creditTier: creditTier,
				jsonOutput: jsonOutput,
				market:     scoring.NewEstimator(),
				stdout:     os.Stdout,
			})
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", string(model.StrategyPriceAPR),
		"scoring strategy: price_apr or risk_fee")
	cmd.Flags().IntVar(&creditTier, "credit", scoring.ReferenceCreditTier,
		"credit score used for the market estimate")
	cmd.Flags().BoolVar(&jsonOutput, "json", false,
		"print JSON instead of the styled report")

	return cmd
}

// estimateParams holds the parsed flags for the estimate command.
type estimateParams struct {
	year       string
	make       string
	model      string
	creditTier int
	market     scoring.Estimator
	stdout     io.Writer
}

func runEstimate(p estimateParams) error {
	if strings.TrimSpace(p.make) == "" {
		return fmt.Errorf("--make is required")
	}
	return report.WriteEstimate(p.stdout, report.Estimate{
		Year:       p.year,
		Make:       p.make,
		Model:      p.model,
		CreditTier: p.creditTier,
		Segment:    scoring.Classify(p.make),
		Price:      p.market.EstimatePrice(p.year, p.make, p.model, p.creditTier),
	})
}

func newEstimateCmd() *cobra.Command {
	var p estimateParams

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the market price of a vehicle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p.market = scoring.NewEstimator()
			p.stdout = os.Stdout
			return runEstimate(p)
		},
	}

	cmd.Flags().StringVar(&p.year, "year", "", "model year (default: current year)")
	cmd.Flags().StringVar(&p.make, "make", "", "vehicle make")
	cmd.Flags().StringVar(&p.model, "model", "", "vehicle model")
	cmd.Flags().IntVar(&p.creditTier, "credit", scoring.ReferenceCreditTier,
		"credit score")

	return cmd
}

// runHashPassword reads a password from in and writes its bcrypt hash for
// the password_hash field of a configured user.
func runHashPassword(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return fmt.Errorf("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := handler.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin for the users config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashPassword(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

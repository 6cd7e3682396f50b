package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/prizzzz/leaseIQ/model"
	"github.com/prizzzz/leaseIQ/scoring"
)

// Score is one scored contract. Exactly one of PriceAPR and RiskFee is set,
// matching Strategy.
type Score struct {
	Data     model.ContractData
	Strategy model.ScoringStrategy
	Fairness model.FairnessResult
	PriceAPR *scoring.PriceAPRBreakdown
	RiskFee  *scoring.RiskFeeBreakdown
}

// Estimate is one market price estimate.
type Estimate struct {
	Year       string
	Make       string
	Model      string
	CreditTier int
	Segment    scoring.Segment
	Price      float64
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + " " + model.DefaultCurrency
}

func line(w io.Writer, s Styles, label, value string) {
	fmt.Fprintln(w, s.Label.Render(label)+s.Value.Render(value))
}

func breakdownTable(s Styles, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("COMPONENT", "VALUE").
		Rows(rows...).
		Render()
}

// WriteScore writes a styled fairness report.
func WriteScore(w io.Writer, r Score) error {
	s := DefaultStyles()
	d := r.Data

	fmt.Fprintln(w, s.Header.Render(fmt.Sprintf("=== %s %s %s ===", d.Year, d.Make, d.Model)))
	fmt.Fprintln(w, s.SubHeader.Render("    VIN "+d.VIN+" | strategy "+string(r.Strategy)))
	fmt.Fprintln(w)

	line(w, s, "Fairness score", s.RatingStyle(r.Fairness.Rating).Render(fmt.Sprintf("%d/100 %s", r.Fairness.Score, r.Fairness.Rating)))
	line(w, s, "Monthly payment", money(d.MonthlyPaymentINR))
	line(w, s, "Down payment", money(d.DownPaymentINR))
	line(w, s, "Lease term", fmt.Sprintf("%d months", d.LeaseTermMonths))
	line(w, s, "APR", strconv.FormatFloat(d.APRPercent, 'f', -1, 64)+"%")
	if len(d.JunkFees) > 0 {
		line(w, s, "Junk fees", d.JunkFeesString())
	}
	fmt.Fprintln(w)

	var rows [][]string
	switch {
	case r.PriceAPR != nil:
		b := r.PriceAPR
		rows = [][]string{
			{"Purchase amount", money(b.PurchasePrice)},
			{"Market estimate", money(b.MarketEstimate)},
			{"Price ratio", strconv.FormatFloat(b.PriceRatio, 'f', 3, 64)},
			{"Price score", strconv.FormatFloat(b.PriceScore, 'f', 1, 64)},
			{"Interest score", strconv.FormatFloat(b.InterestScore, 'f', 1, 64)},
			{"Deal rating", string(b.DealRating)},
		}
	case r.RiskFee != nil:
		b := r.RiskFee
		rows = [][]string{
			{"Fee count", strconv.Itoa(b.FeeCount)},
			{"Average severity", strconv.FormatFloat(b.AvgSeverity, 'f', 2, 64)},
			{"Hidden cost ratio", strconv.FormatFloat(b.AmountRatio, 'f', 4, 64)},
			{"Risk score", strconv.FormatFloat(b.RiskScore, 'f', 1, 64)},
			{"Fee score", strconv.FormatFloat(b.FeeScore, 'f', 1, 64)},
			{"Amount score", strconv.FormatFloat(b.AmountScore, 'f', 1, 64)},
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, breakdownTable(s, rows))
		fmt.Fprintln(w)
	}

	_, err := fmt.Fprintln(w, s.Muted.Render(r.Fairness.Explanation))
	return err
}

// WriteEstimate writes a styled market price estimate.
func WriteEstimate(w io.Writer, e Estimate) error {
	s := DefaultStyles()

	fmt.Fprintln(w, s.Header.Render(fmt.Sprintf("=== %s %s %s ===", e.Year, e.Make, e.Model)))
	line(w, s, "Segment", string(e.Segment))
	line(w, s, "Credit tier", strconv.Itoa(e.CreditTier))
	line(w, s, "Market estimate", money(e.Price))
	comparison := scoring.Compare(0, e.Price)
	_, err := fmt.Fprintln(w, s.Label.Render("Fair range")+
		s.Value.Render(money(comparison.SuggestedRange.Low)+" - "+money(comparison.SuggestedRange.High)))
	return err
}

// Package report renders fairness scores and price estimates for the terminal.
package report

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/prizzzz/leaseIQ/model"
)

// Styles is the terminal theme. Lipgloss drops colour when the output is not a TTY.
type Styles struct {
	Header      lipgloss.Style
	SubHeader   lipgloss.Style
	Label       lipgloss.Style
	Value       lipgloss.Style
	TableHeader lipgloss.Style
	Border      lipgloss.Style
	Fair        lipgloss.Style
	Moderate    lipgloss.Style
	Unfair      lipgloss.Style
	Muted       lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Header:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		SubHeader:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Label:       lipgloss.NewStyle().Bold(true).Width(22),
		Value:       lipgloss.NewStyle(),
		TableHeader: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Border:      lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
		Fair:        lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true),
		Moderate:    lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		Unfair:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Muted:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// RatingStyle colours a fairness rating.
func (s Styles) RatingStyle(r model.Rating) lipgloss.Style {
	switch r {
	case model.RatingFair:
		return s.Fair
	case model.RatingModerate:
		return s.Moderate
	case model.RatingUnfair:
		return s.Unfair
	default:
		return s.Muted
	}
}

package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-station/internal/types"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().Faint(true)

	// ErrorStyle for error messages.
	ErrorStyle = lipgloss.NewStyle().Bold(true)

	// StaleStyle dims the dashboard while the connection is down.
	StaleStyle = lipgloss.NewStyle().Faint(true)

	// ConnectedStyle for the status bar when live.
	ConnectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	// DisconnectedStyle for the status bar when down.
	DisconnectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// FormatPriceWithTrend renders a price with a direction indicator relative
// to the previously displayed price.
func FormatPriceWithTrend(current, previous decimal.Decimal) string {
	priceStr := current.String()

	if previous.IsZero() {
		return priceStr
	}

	switch current.Cmp(previous) {
	case 1:
		return priceStr + " ▲"
	case -1:
		return priceStr + " ▼"
	default:
		return priceStr
	}
}

// FormatConnState renders the connection state with its status color.
func FormatConnState(status types.ConnectionStatus) string {
	label := string(status.State)
	if status.Reason != types.ReasonNone && status.State != types.ConnStateConnected {
		label += " (" + string(status.Reason) + ")"
	}

	if status.State == types.ConnStateConnected {
		return ConnectedStyle.Render(label)
	}

	return DisconnectedStyle.Render(label)
}

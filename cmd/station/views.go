package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-station/internal/types"
)

// NewSubscribeInput creates a text input for entity id entry.
func NewSubscribeInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "BTC-USD,ETH-USD"
	ti.CharLimit = 200
	ti.Width = 50
	ti.Prompt = "> "

	return ti
}

// ParseEntityIDs parses comma-separated entity ids into a slice.
func ParseEntityIDs(input string) []string {
	parts := strings.Split(input, ",")
	ids := make([]string, 0, len(parts))

	for _, p := range parts {
		id := strings.TrimSpace(p)
		if id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}

// NewEntityTable creates the dashboard table.
func NewEntityTable() table.Model {
	columns := []table.Column{
		{Title: "Entity", Width: 16},
		{Title: "Kind", Width: 12},
		{Title: "Price", Width: 20},
		{Title: "Status", Width: 10},
		{Title: "Updated", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)

	t.SetStyles(s)

	return t
}

// UpdateEntityRows refreshes the table from a snapshot. prevPrices carries
// the previously rendered price per entity for trend indicators.
func UpdateEntityRows(t table.Model, snapshot *types.ViewSnapshot, prevPrices map[string]decimal.Decimal) table.Model {
	rows := make([]table.Row, 0, len(snapshot.Entities))

	for _, id := range snapshot.SortedIDs() {
		entity, ok := snapshot.Entity(id)
		if !ok {
			continue
		}

		updated := ""
		if !entity.UpdatedAt.IsZero() {
			updated = entity.UpdatedAt.Format("15:04:05")
		}

		rows = append(rows, table.Row{
			entity.ID,
			string(entity.Kind),
			FormatPriceWithTrend(entity.Price, prevPrices[id]),
			string(entity.Status),
			updated,
		})
	}

	t.SetRows(rows)

	return t
}

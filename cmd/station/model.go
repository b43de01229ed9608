package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-station/internal/station/bridge"
	"github.com/rxtech-lab/argo-station/internal/types"
)

// Application states.
const (
	StateDashboard = iota
	StateSubscribeInput
)

// Model is the main Bubble Tea model for the station dashboard. It never
// blocks on network state: every redraw tick it polls the bridge for the
// latest snapshot and rebuilds the table only when the sequence advanced.
type Model struct {
	state          int
	bridge         *bridge.Bridge
	entityTable    table.Model
	subscribeInput textinput.Model

	snapshot   *types.ViewSnapshot
	lastSeq    uint64
	prevPrices map[string]decimal.Decimal

	redraw time.Duration
	err    error
	width  int
	height int
}

// NewModel creates a Model polling the given bridge at the redraw cadence.
func NewModel(b *bridge.Bridge, redraw time.Duration) Model {
	return Model{
		state:          StateDashboard,
		bridge:         b,
		entityTable:    NewEntityTable(),
		subscribeInput: NewSubscribeInput(),
		snapshot:       b.LatestSnapshot(),
		prevPrices:     make(map[string]decimal.Decimal),
		redraw:         redraw,
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.redraw, func(t time.Time) tea.Msg {
		return RedrawTickMsg{At: t}
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.state != StateSubscribeInput {
				return m, tea.Quit
			}
		case "esc":
			if m.state == StateSubscribeInput {
				m.state = StateDashboard
				m.subscribeInput.Blur()
				m.subscribeInput.Reset()

				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.entityTable.SetWidth(msg.Width)
		m.entityTable.SetHeight(msg.Height - 8)

		return m, nil

	case RedrawTickMsg:
		m = m.refresh()

		return m, m.tick()

	case StationStoppedMsg:
		m.err = msg.Err

		return m, tea.Quit
	}

	switch m.state {
	case StateDashboard:
		return m.updateDashboard(msg)
	case StateSubscribeInput:
		return m.updateSubscribeInput(msg)
	}

	return m, nil
}

// refresh pulls the latest snapshot and rebuilds the table if anything
// changed since the last tick.
func (m Model) refresh() Model {
	snapshot := m.bridge.LatestSnapshot()
	if snapshot.Sequence == m.lastSeq {
		return m
	}

	for id, entity := range m.snapshot.Entities {
		m.prevPrices[id] = entity.Price
	}

	m.snapshot = snapshot
	m.lastSeq = snapshot.Sequence
	m.entityTable = UpdateEntityRows(m.entityTable, snapshot, m.prevPrices)

	return m
}

func (m Model) updateDashboard(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "s":
			m.state = StateSubscribeInput
			m.subscribeInput.Focus()

			return m, textinput.Blink
		case "u":
			if row := m.entityTable.SelectedRow(); len(row) > 0 {
				m.bridge.Unsubscribe([]string{row[0]})
			}

			return m, nil
		case "p":
			m.bridge.Ping()

			return m, nil
		}
	}

	var cmd tea.Cmd
	m.entityTable, cmd = m.entityTable.Update(msg)

	return m, cmd
}

func (m Model) updateSubscribeInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			ids := ParseEntityIDs(m.subscribeInput.Value())
			if len(ids) > 0 {
				m.bridge.Subscribe(ids)
				m.state = StateDashboard
				m.subscribeInput.Blur()
				m.subscribeInput.Reset()
			}

			return m, nil
		}
	}

	var cmd tea.Cmd
	m.subscribeInput, cmd = m.subscribeInput.Update(msg)

	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Argo Station"))
	s.WriteString("\n")
	s.WriteString(m.statusBar())
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	switch m.state {
	case StateSubscribeInput:
		s.WriteString("Enter comma-separated entity ids:\n\n")
		s.WriteString(m.subscribeInput.View())
		s.WriteString("\n\n")
		s.WriteString(HelpStyle.Render("Press Enter to subscribe, Esc to go back"))

	case StateDashboard:
		if len(m.snapshot.Entities) == 0 {
			s.WriteString("Waiting for data...\n")
		} else if m.snapshot.Stale {
			s.WriteString(StaleStyle.Render(m.entityTable.View()))
		} else {
			s.WriteString(m.entityTable.View())
		}

		if notices := m.noticeLines(); notices != "" {
			s.WriteString("\n")
			s.WriteString(notices)
		}

		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("s: subscribe | u: unsubscribe selected | p: ping | q: quit"))
	}

	return s.String()
}

// statusBar renders connection state, snapshot sequence, and drop counter.
func (m Model) statusBar() string {
	parts := []string{
		FormatConnState(m.snapshot.ConnStatus),
		fmt.Sprintf("seq %d", m.snapshot.Sequence),
	}

	if m.snapshot.Stale {
		parts = append(parts, DisconnectedStyle.Render("stale"))
	}

	if m.snapshot.ConnStatus.RetryCount > 0 {
		parts = append(parts, fmt.Sprintf("retries %d", m.snapshot.ConnStatus.RetryCount))
	}

	if m.snapshot.DroppedEvents > 0 {
		parts = append(parts, fmt.Sprintf("dropped %d", m.snapshot.DroppedEvents))
	}

	return HelpStyle.Render(strings.Join(parts, " | "))
}

// noticeLines renders the most recent backend notices, newest last.
func (m Model) noticeLines() string {
	const maxShown = 3

	notices := m.snapshot.Notices
	if len(notices) == 0 {
		return ""
	}

	if len(notices) > maxShown {
		notices = notices[len(notices)-maxShown:]
	}

	var s strings.Builder

	for _, n := range notices {
		line := fmt.Sprintf("[%s] %s", n.Level, n.Message)
		if n.Level == types.NoticeLevelError {
			line = ErrorStyle.Render(line)
		} else {
			line = HelpStyle.Render(line)
		}

		s.WriteString(line)
		s.WriteString("\n")
	}

	return s.String()
}

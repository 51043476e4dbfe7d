package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sentinel-engine/pkg/models"
	"github.com/sentinel-engine/pkg/tracker"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// TUI is the optional terminal view of the live token table
// (DASHBOARD_TUI=true). It reads tracker snapshots on a tick and never
// mutates anything.
type TUI struct {
	tracker *tracker.Tracker
}

func NewTUI(tr *tracker.Tracker) *TUI {
	return &TUI{tracker: tr}
}

func (t *TUI) Run() error {
	_, err := tea.NewProgram(newTuiModel(t.tracker)).Run()
	return err
}

type tickMsg time.Time

type tuiModel struct {
	tracker *tracker.Tracker
	rows    []tracker.Snapshot
}

func newTuiModel(tr *tracker.Tracker) tuiModel {
	return tuiModel{tracker: tr}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m tuiModel) Init() tea.Cmd {
	return tick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		rows := m.tracker.Snapshots()
		sort.Slice(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
		m.rows = rows
		return m, tick()
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SENTINEL — live tokens"))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-14s %-8s %-10s %6s %6s %8s %7s %s",
		"TOKEN", "SYMBOL", "STATE", "SCORE", "BAR", "MCAP", "BOND%", "KOLS")))
	b.WriteString("\n")

	shown := 0
	for _, r := range m.rows {
		if r.State == models.StateRetired {
			continue
		}
		if shown == 20 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  …and %d more", len(m.rows)-shown)))
			b.WriteString("\n")
			break
		}
		shown++

		style := failStyle
		if r.Score >= r.Threshold {
			style = passStyle
		}
		line := fmt.Sprintf("%-14s %-8s %-10s %6.1f %6.0f %8s %6.1f%% %4d",
			shortAddr(r.Address), r.Symbol, r.State, r.Score, r.Threshold,
			compactUSD(r.MarketCap), r.BondingProgress, r.KOLCount)
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	if shown == 0 {
		b.WriteString(dimStyle.Render("  nothing tracked yet"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q to quit"))
	return b.String()
}

func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}

func compactUSD(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%.0fK", v/1_000)
	}
	return fmt.Sprintf("%.0f", v)
}

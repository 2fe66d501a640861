// Package tui implements the full-screen interactive browser for
// extraction results.
package tui

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/varscout/varscout/pkg/extract"
)

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

type scanDoneMsg []extract.Entry

type scanProgressMsg int

type scanFailedMsg string

type tuiModel struct {
	extractor    *extract.Extractor
	target       string
	expandArrays bool

	table       table.Model
	filterInput textinput.Model
	filtering   bool

	entries  []extract.Entry
	scanning bool
	progress int

	sortColumn int
	sortAsc    bool

	detailsName string
	message     string
	messageTime time.Time

	events chan tea.Msg

	width  int
	height int
}

func initialModel(extractor *extract.Extractor, target string, expandArrays bool) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "Filter..."
	ti.CharLimit = 50
	ti.Width = 30

	m := tuiModel{
		extractor:    extractor,
		target:       target,
		expandArrays: expandArrays,
		filterInput:  ti,
		scanning:     true,
		sortAsc:      true,
		events:       make(chan tea.Msg, 8),
	}
	m.initTable()
	return m
}

func (m *tuiModel) initTable() {
	columns := []table.Column{
		{Title: "Name", Width: 44},
		{Title: "Address", Width: 12},
		{Title: "Kind", Width: 8},
		{Title: "Size", Width: 5},
	}

	// Add sort indicator
	if m.sortColumn < len(columns) {
		indicator := " ↑"
		if !m.sortAsc {
			indicator = " ↓"
		}
		columns[m.sortColumn].Title += indicator
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(m.tableHeight()),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(true)
	t.SetStyles(s)

	m.table = t
}

func (m *tuiModel) tableHeight() int {
	h := m.height - 12
	if h < 3 {
		return 10
	}
	return h
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(m.startScan(), m.waitForEvent())
}

// startScan kicks off an extraction run. The session delivers through the
// events channel, waitForEvent pumps it back into the update loop.
func (m tuiModel) startScan() tea.Cmd {
	extractor, target, expand, events := m.extractor, m.target, m.expandArrays, m.events
	return func() tea.Msg {
		status := extractor.Start(target, expand,
			func(entries []extract.Entry) { events <- scanDoneMsg(entries) },
			func(pct int) {
				select {
				case events <- scanProgressMsg(pct):
				default:
				}
			})
		if status != extract.StatusOK {
			return scanFailedMsg(status.String())
		}
		return nil
	}
}

func (m tuiModel) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	// Session events arrive regardless of input focus.
	switch msg := msg.(type) {
	case scanProgressMsg:
		m.scanning = true
		m.progress = int(msg)
		return m, m.waitForEvent()
	case scanDoneMsg:
		m.scanning = false
		m.progress = 100
		m.entries = []extract.Entry(msg)
		m.updateRows()
		return m, m.waitForEvent()
	case scanFailedMsg:
		m.scanning = false
		m.message = "scan failed: " + string(msg)
		m.messageTime = time.Now()
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(m.tableHeight())
		return m, nil
	}

	if m.filtering {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			switch msg.String() {
			case "enter", "esc":
				m.filtering = false
				m.filterInput.Blur()
				m.updateRows()
				return m, nil
			}
		}
		m.filterInput, cmd = m.filterInput.Update(msg)
		m.updateRows()
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.scanning {
				m.extractor.Abort()
			}
			return m, tea.Quit
		case "/":
			m.filtering = true
			m.filterInput.Focus()
			return m, nil
		case "s":
			m.sortColumn = (m.sortColumn + 1) % len(m.table.Columns())
			m.sortAsc = true
			m.initTable()
			m.updateRows()
			return m, nil
		case "r":
			m.sortAsc = !m.sortAsc
			m.initTable()
			m.updateRows()
			return m, nil
		case "g":
			if !m.scanning {
				m.scanning = true
				m.progress = 0
				return m, m.startScan()
			}
			return m, nil
		case "e":
			if !m.scanning {
				m.expandArrays = !m.expandArrays
				m.scanning = true
				m.progress = 0
				return m, m.startScan()
			}
			return m, nil
		case "S":
			m.saveSnapshot()
			return m, nil
		case "enter":
			selected := m.table.SelectedRow()
			if len(selected) > 0 {
				m.detailsName = selected[0]
			}
			return m, nil
		case "esc":
			m.detailsName = ""
			return m, nil
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *tuiModel) updateRows() {
	var rows []table.Row
	filterRaw := strings.ToLower(m.filterInput.Value())
	filterPrefix := ""
	filterValue := filterRaw

	if strings.Contains(filterRaw, ":") {
		parts := strings.SplitN(filterRaw, ":", 2)
		filterPrefix = parts[0]
		filterValue = parts[1]
	}

	for _, e := range m.entries {
		row := table.Row{
			e.Name,
			e.Address,
			e.Kind.String(),
			strconv.Itoa(e.Kind.Size()),
		}

		if filterValue != "" {
			match := false
			switch filterPrefix {
			case "name":
				match = strings.Contains(strings.ToLower(row[0]), filterValue)
			case "addr":
				match = strings.Contains(strings.ToLower(row[1]), filterValue)
			case "kind":
				match = strings.Contains(row[2], filterValue)
			case "":
				for _, f := range row {
					if strings.Contains(strings.ToLower(f), filterValue) {
						match = true
						break
					}
				}
			}
			if !match {
				continue
			}
		}

		rows = append(rows, row)
	}

	if len(rows) > 0 && m.sortColumn < len(m.table.Columns()) {
		sort.SliceStable(rows, func(i, j int) bool {
			valI := rows[i][m.sortColumn]
			valJ := rows[j][m.sortColumn]

			// Numeric sort for Size
			if m.sortColumn == 3 {
				numI, _ := strconv.Atoi(valI)
				numJ, _ := strconv.Atoi(valJ)
				if m.sortAsc {
					return numI < numJ
				}
				return numI > numJ
			}

			if m.sortAsc {
				return valI < valJ
			}
			return valI > valJ
		})
	}

	m.table.SetRows(rows)
}

func (m *tuiModel) saveSnapshot() {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("varscout_vars_%s.csv", timestamp)

	var content strings.Builder
	content.WriteString("name,address,kind,size\n")
	for _, row := range m.table.Rows() {
		content.WriteString(strings.Join([]string(row), ",") + "\n")
	}

	err := os.WriteFile(filename, []byte(content.String()), 0644)
	if err != nil {
		m.message = "Error saving snapshot: " + err.Error()
	} else {
		m.message = "Snapshot saved to " + filename
	}
	m.messageTime = time.Now()
}

func (m tuiModel) View() string {
	var b strings.Builder

	title := "varscout " + m.target
	if m.scanning {
		title += fmt.Sprintf(" (scanning %d%%)", m.progress)
	}
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Bold(true).Render(title) + "\n\n")

	mode := "collapsed arrays"
	if m.expandArrays {
		mode = "expanded arrays"
	}
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	b.WriteString(dim.Render("  Mode: [e] " + mode))

	if m.sortColumn < len(m.table.Columns()) {
		b.WriteString(dim.Render(fmt.Sprintf("  Sort: [s] %s", m.table.Columns()[m.sortColumn].Title)))
	}
	b.WriteString(dim.Render(fmt.Sprintf("  Variables: %d", len(m.table.Rows()))))
	b.WriteString("\n\n")

	if m.filtering {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Render(" / ") + m.filterInput.View() + "\n")
	} else if m.filterInput.Value() != "" {
		b.WriteString(dim.Render(" Filter: "+m.filterInput.Value()) + "\n")
	} else {
		b.WriteString("\n")
	}

	b.WriteString(baseStyle.Render(m.table.View()) + "\n")

	if m.message != "" && time.Since(m.messageTime) < 3*time.Second {
		b.WriteString("\n" + lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 1).
			Render(" "+m.message+" ") + "\n")
	}

	if m.detailsName != "" {
		for _, e := range m.entries {
			if e.Name != m.detailsName {
				continue
			}
			detail := fmt.Sprintf("%s\n  address: %s\n  kind:    %s\n  size:    %d bytes",
				e.Name, e.Address, e.Kind, e.Kind.Size())
			b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Bold(true).Render(" Details: ") + "\n" + detail + "\n")
			break
		}
	}

	help := "\n  q: quit • /: filter • s: sort • r: reverse • g: rescan • e: arrays • S: snapshot • enter: details"
	if m.detailsName != "" {
		help += " • esc: close details"
	}
	b.WriteString(dim.Render(help) + "\n")

	return b.String()
}

// Run starts the full-screen browser and blocks until the user quits. A
// scan of target begins immediately.
func Run(extractor *extract.Extractor, target string, expandArrays bool) error {
	p := tea.NewProgram(initialModel(extractor, target, expandArrays), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

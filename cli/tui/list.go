package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/strata/cli/reader"
	"github.com/pithecene-io/strata/types"
)

// defaultPageSize is used until the terminal reports its height.
const defaultPageSize = 20

// chromeLines is the number of lines around the table body.
const chromeLines = 8

// ListModel is a scrollable Bubble Tea view over an archive listing.
type ListModel struct {
	rows     []reader.FileRow
	cursor   int
	offset   int
	page     int
	width    int
	detail   bool
	quitting bool
}

// NewListModel creates a list model. data is a []reader.FileRow or a
// []types.ArchiveFileInfo.
func NewListModel(data any) ListModel {
	var rows []reader.FileRow
	switch d := data.(type) {
	case []reader.FileRow:
		rows = d
	case []types.ArchiveFileInfo:
		rows = reader.Rows(d)
	}
	return ListModel{rows: rows, page: defaultPageSize}
}

// Cursor returns the index of the selected row.
func (m ListModel) Cursor() int { return m.cursor }

// Init implements tea.Model.
func (m ListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.page = max(msg.Height-chromeLines, 1)
		m = m.scroll()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.cursor--
		case key.Matches(msg, keys.Down):
			m.cursor++
		case key.Matches(msg, keys.PageUp):
			m.cursor -= m.page
		case key.Matches(msg, keys.PageDown):
			m.cursor += m.page
		case key.Matches(msg, keys.Home):
			m.cursor = 0
		case key.Matches(msg, keys.End):
			m.cursor = len(m.rows) - 1
		case key.Matches(msg, keys.Detail):
			m.detail = !m.detail
		}
		m = m.scroll()
	}
	return m, nil
}

// scroll clamps the cursor and keeps it inside the visible window.
func (m ListModel) scroll() ListModel {
	m.cursor = min(max(m.cursor, 0), max(len(m.rows)-1, 0))
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.page {
		m.offset = m.cursor - m.page + 1
	}
	return m
}

// View implements tea.Model.
func (m ListModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Archive: %d files", len(m.rows))))
	b.WriteString("\n")
	if len(m.rows) == 0 {
		b.WriteString(ValueStyle.Render("(no entries)"))
		b.WriteString("\n")
		b.WriteString(helpLine(keys.Quit))
		return b.String()
	}

	nameWidth := 40
	if m.width > 0 {
		nameWidth = max(m.width-60, 16)
	}
	format := fmt.Sprintf("%%-%d.%ds %%10s %%10s %%-8s %%-5s %%s", nameWidth, nameWidth)

	b.WriteString(HeaderStyle.Render(fmt.Sprintf(format, "NAME", "SIZE", "PACKED", "METHOD", "ATTRS", "VOLUME")))
	b.WriteString("\n")

	end := min(m.offset+m.page, len(m.rows))
	for i := m.offset; i < end; i++ {
		r := m.rows[i]
		line := fmt.Sprintf(format, r.Name, FormatBytes(r.Size), FormatBytes(r.Compressed), r.Method, r.Attrs, r.Volume)
		if i == m.cursor {
			line = SelectedStyle.Render(line)
		} else {
			line = MethodStyle(r.Method).Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(fmt.Sprintf("%d/%d", m.cursor+1, len(m.rows))))
	b.WriteString("\n")
	if m.detail {
		b.WriteString(renderRow(m.rows[m.cursor]))
		b.WriteString("\n")
	}
	b.WriteString(helpLine(keys.Up, keys.Down, keys.PageDown, keys.Detail, keys.Quit))
	return b.String()
}

func renderRow(r reader.FileRow) string {
	fields := [][2]string{
		{"Name", r.Name},
		{"Size", fmt.Sprintf("%d (%s)", r.Size, FormatBytes(r.Size))},
		{"Compressed", fmt.Sprintf("%d (%s)", r.Compressed, FormatBytes(r.Compressed))},
		{"Method", r.Method},
		{"Attributes", r.Attrs},
		{"Modified", r.Modified.Format("2006-01-02 15:04:05")},
		{"Volume", r.Volume},
	}
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = LabelStyle.Render(f[0]+":") + " " + ValueStyle.Render(f[1])
	}
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

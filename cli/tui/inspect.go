package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/strata/cli/reader"
)

// InspectModel is a Bubble Tea model for a single entry.
type InspectModel struct {
	data     *reader.EntryDetail
	quitting bool
}

// NewInspectModel creates an inspect model over a *reader.EntryDetail.
func NewInspectModel(data any) InspectModel {
	d, _ := data.(*reader.EntryDetail)
	return InspectModel{data: d}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}
	d := m.data
	if d == nil {
		return "Invalid data type for " + ViewInspectEntry
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Entry Details"))
	b.WriteString("\n\n")

	rows := [][2]string{
		{"Name", d.Name},
		{"Directory", d.Dir},
		{"File Number", fmt.Sprintf("%d", d.FileNumber)},
		{"Size", fmt.Sprintf("%d (%s)", d.Length, FormatBytes(d.Length))},
		{"Compressed", fmt.Sprintf("%d (%s)", d.CompressedSize, FormatBytes(d.CompressedSize))},
		{"Ratio", fmt.Sprintf("%.1f%%", d.Ratio*100)},
		{"Method", d.Method},
		{"Attributes", d.Flags},
		{"Modified", d.LastWriteTime.Format("2006-01-02 15:04:05")},
		{"Volume", fmt.Sprintf("%d (%s)", d.ArchiveNumber, d.ArchiveName)},
	}
	for _, row := range rows {
		value := ValueStyle.Render(row[1])
		if row[0] == "Method" {
			value = MethodStyle(d.Method).Render(row[1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), value))
	}

	return BoxStyle.Render(b.String()) + "\n" + helpLine(keys.Quit)
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/strata/cli/reader"
)

// StatsModel is a Bubble Tea model for an archive summary.
type StatsModel struct {
	data     *reader.ArchiveStats
	width    int
	quitting bool
}

// NewStatsModel creates a stats model over a *reader.ArchiveStats.
func NewStatsModel(data any) StatsModel {
	st, _ := data.(*reader.ArchiveStats)
	return StatsModel{data: st}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "Invalid data type for " + ViewStatsArchive
	}
	st := m.data

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Archive Statistics"))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Files", fmt.Sprintf("%d", st.Files), highlightColor),
		renderStatBox("Volumes", fmt.Sprintf("%d", st.Volumes), primaryColor),
		renderStatBox("Size", FormatBytes(st.TotalBytes), warningColor),
		renderStatBox("Ratio", fmt.Sprintf("%.1f%%", st.Ratio*100), successColor),
	))
	b.WriteString("\n\n")

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-4s %-24s %8s %12s %12s", "VOL", "NAME", "FILES", "SIZE", "PACKED")))
	b.WriteString("\n")
	for _, v := range st.PerVolume {
		b.WriteString(ValueStyle.Render(fmt.Sprintf("%-4d %-24s %8d %12s %12s",
			v.Number, v.Name, v.Files, FormatBytes(v.Bytes), FormatBytes(v.Compressed))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-10s %8s %12s", "METHOD", "FILES", "SIZE")))
	b.WriteString("\n")
	for _, ms := range st.PerMethod {
		b.WriteString(MethodStyle(ms.Method).Render(fmt.Sprintf("%-10s %8d %12s", ms.Method, ms.Files, FormatBytes(ms.Bytes))))
		b.WriteString("\n")
	}
	if st.Largest != "" {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Largest:") + " " + ValueStyle.Render(st.Largest))
	}

	return b.String() + "\n" + helpLine(keys.Quit)
}

func renderStatBox(label, value string, color lipgloss.Color) string {
	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)
	return StatBoxStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RenderStatic renders a view once without starting a program.
func RenderStatic(viewType string, data any) (string, error) {
	m, err := NewModel(viewType, data)
	if err != nil {
		return "", err
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View()), nil
}

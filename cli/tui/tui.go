package tui

import (
	"fmt"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
)

// View types accepted by Run.
const (
	ViewListFiles    = "list_files"
	ViewStatsArchive = "stats_archive"
	ViewInspectEntry = "inspect_entry"
)

// Run starts the TUI for viewType over data.
func Run(viewType string, data any) error {
	m, err := NewModel(viewType, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// NewModel builds the model for viewType without starting a program.
func NewModel(viewType string, data any) (tea.Model, error) {
	switch viewType {
	case ViewListFiles:
		return NewListModel(data), nil
	case ViewStatsArchive:
		return NewStatsModel(data), nil
	case ViewInspectEntry:
		return NewInspectModel(data), nil
	default:
		return nil, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// IsTUISupported reports whether viewType has a TUI.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews lists the view types that have a TUI.
func SupportedTUIViews() []string {
	return []string{ViewListFiles, ViewStatsArchive, ViewInspectEntry}
}

package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/planwise/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	kindScheduled = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	kindOverdue   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
	kindConflict  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	kindBlocked   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // Grey
)

func (i ScheduleItem) FilterValue() string { return i.Task.Title }
func (i ScheduleItem) Title() string       { return i.Task.Title }
func (i ScheduleItem) Description() string {
	kind := formatKind(i.Kind)
	if i.Placement == nil {
		if i.Reason != "" {
			return fmt.Sprintf("%s • %s", kind, i.Reason)
		}
		return kind
	}
	window := formatWindow(*i.Placement)
	if i.Allocated > 0 {
		return fmt.Sprintf("%s • %s • %.1fh of %.1fh", kind, window, i.Allocated, i.Task.EstimatedHours)
	}
	return fmt.Sprintf("%s • %s", kind, window)
}

func formatKind(kind string) string {
	switch kind {
	case KindScheduled:
		return kindScheduled.Render("● scheduled")
	case KindOverdue:
		return kindOverdue.Render("● overdue")
	case KindConflict:
		return kindConflict.Render("● conflict")
	case KindBlocked:
		return kindBlocked.Render("● blocked")
	default:
		return kind
	}
}

func formatWindow(p models.Placement) string {
	return fmt.Sprintf("%s → %s", p.Start.Format("Mon 02 Jan 15:04"), p.End.Format("15:04"))
}

// ScheduleListModel manages the schedule list screen
type ScheduleListModel struct {
	list        list.Model
	items       []ScheduleItem
	filterIndex int
}

var filters = []string{"", KindScheduled, KindOverdue, KindConflict, KindBlocked}
var filterLabels = []string{"all", "scheduled", "overdue", "conflict", "blocked"}

// NewScheduleListModel creates a new schedule list model
func NewScheduleListModel() *ScheduleListModel {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Schedule"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = listTitleStyle

	return &ScheduleListModel{list: l}
}

// SetSize sets the list dimensions
func (m *ScheduleListModel) SetSize(w, h int) {
	m.list.SetSize(w, h)
}

// SetItems replaces the rows and reapplies the kind filter
func (m *ScheduleListModel) SetItems(items []ScheduleItem) {
	m.items = items
	m.apply()
}

// Selected returns the highlighted row
func (m *ScheduleListModel) Selected() *ScheduleItem {
	if item := m.list.SelectedItem(); item != nil {
		it := item.(ScheduleItem)
		return &it
	}
	return nil
}

// Filtering reports whether the list's own text filter has focus
func (m *ScheduleListModel) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// CycleFilter cycles through kind filters
func (m *ScheduleListModel) CycleFilter() {
	m.filterIndex = (m.filterIndex + 1) % len(filters)
	m.list.Title = fmt.Sprintf("Schedule [%s]", filterLabels[m.filterIndex])
	m.apply()
}

func (m *ScheduleListModel) apply() {
	kind := filters[m.filterIndex]
	var shown []list.Item
	for _, it := range m.items {
		if kind == "" || it.Kind == kind {
			shown = append(shown, it)
		}
	}
	m.list.SetItems(shown)
}

// Update handles messages
func (m *ScheduleListModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return cmd
}

// View renders the list
func (m *ScheduleListModel) View() string {
	return m.list.View()
}

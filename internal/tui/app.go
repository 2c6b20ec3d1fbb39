// Package tui provides the interactive schedule viewer for planwise.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/planwise/internal/engine"
	"github.com/fentz26/planwise/internal/models"
	"github.com/fentz26/planwise/internal/scheduler"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)
)

// App is the main TUI application model.
type App struct {
	backend  Backend
	owner    string
	timezone string
	weights  engine.Weights

	list       *ScheduleListModel
	cmdbar     *CmdBarModel
	result     *models.ScheduleResult
	showDetail bool
	loading    bool
	err        error
	width      int
	height     int
}

// New creates a viewer for owner's schedule. weights may be zero to use the
// scheduler's current weights.
func New(backend Backend, owner, timezone string, weights engine.Weights) *App {
	return &App{
		backend:  backend,
		owner:    owner,
		timezone: timezone,
		weights:  weights,
		list:     NewScheduleListModel(),
		cmdbar:   NewCmdBarModel(),
		width:    80,
		height:   24,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return a.rerun()
}

// rerun recomputes the owner's schedule.
func (a *App) rerun() tea.Cmd {
	a.loading = true
	owner, opts := a.owner, scheduler.RunOptions{Timezone: a.timezone, Weights: a.weights}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		res, err := a.backend.RunSchedule(ctx, owner, opts)
		if err != nil {
			return errMsg{err}
		}
		return scheduleLoadedMsg{res}
	}
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.list.SetSize(msg.Width, max(msg.Height-6, 5))
		return a, nil

	case scheduleLoadedMsg:
		a.loading = false
		a.err = nil
		a.result = msg.result
		a.list.SetItems(itemsFromResult(msg.result))
		return a, nil

	case errMsg:
		a.loading = false
		a.err = msg.err
		return a, nil

	case cmdResultMsg:
		a.cmdbar.SetMessage(msg.message)
		if msg.rerun {
			return a, a.rerun()
		}
		return a, nil

	case tzChangedMsg:
		a.timezone = msg.zone
		a.cmdbar.SetMessage("Timezone " + msg.zone)
		return a, a.rerun()

	case weightsChangedMsg:
		a.weights = msg.weights
		a.cmdbar.SetMessage(fmt.Sprintf("Weights %.2f/%.2f", msg.weights.Deadline, msg.weights.Priority))
		return a, a.rerun()

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, a.list.Update(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}
	if a.cmdbar.Focused() {
		if msg.String() == "enter" {
			return a, a.Execute(a.cmdbar.Submit())
		}
		return a, a.cmdbar.Update(msg)
	}
	if a.list.Filtering() {
		return a, a.list.Update(msg)
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "r":
		return a, a.rerun()
	case ":":
		return a, a.cmdbar.Focus()
	case "f", "tab":
		a.list.CycleFilter()
		return a, nil
	case "enter":
		a.showDetail = a.list.Selected() != nil
		return a, nil
	case "esc":
		a.showDetail = false
		return a, nil
	}
	return a, a.list.Update(msg)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	header := titleStyle.Render("planwise") + "  " +
		lipgloss.NewStyle().Foreground(cyanColor).Render(a.owner)
	if a.result != nil {
		header += "  " + lipgloss.NewStyle().Foreground(mutedColor).Render(fmt.Sprintf("%s · %s · weights %.2f/%.2f",
			a.result.Now.Format("Mon 02 Jan 15:04"), a.result.Timezone, a.result.DeadlineWeight, a.result.PriorityWeight))
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	switch {
	case a.err != nil:
		text := "Error: " + a.err.Error()
		if scheduler.IsBusy(a.err) {
			text = "Schedule is being recomputed elsewhere, press r to retry"
		}
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Render(text) + "\n")
	case a.loading && a.result == nil:
		b.WriteString("\n  Computing schedule...\n")
	case a.showDetail && a.list.Selected() != nil:
		b.WriteString(renderDetail(*a.list.Selected(), a.width))
	default:
		b.WriteString(a.list.View())
	}

	b.WriteString("\n")
	b.WriteString(a.cmdbar.View())
	b.WriteString("\n")
	b.WriteString(statusBarStyle.Width(a.width).Render(a.statusLine()))
	return b.String()
}

func (a *App) statusLine() string {
	if a.result == nil {
		return " r:rerun | q:quit"
	}
	counts := fmt.Sprintf(" %d scheduled · %d overdue · %d conflicts · %d blocked",
		a.result.TotalScheduled, a.result.TotalOverdue, a.result.TotalConflicts, len(a.result.Blocked))
	if a.result.TotalConflicts == 0 && a.result.TotalOverdue == 0 {
		counts = lipgloss.NewStyle().Foreground(successColor).Render(counts)
	}
	return counts + " | ↑↓:nav | enter:detail | f:filter | ::cmd | r:rerun | q:quit"
}

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/planwise/internal/engine"
)

var (
	cmdBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// CmdBarModel manages the command input bar
type CmdBarModel struct {
	input   textinput.Model
	focused bool
	message string
}

// NewCmdBarModel creates a new command bar
func NewCmdBarModel() *CmdBarModel {
	ti := textinput.New()
	ti.Placeholder = "done | move | tz <zone> | weights <d> <p>"
	ti.CharLimit = 128
	return &CmdBarModel{input: ti}
}

// Focused reports whether the bar takes key input
func (m *CmdBarModel) Focused() bool { return m.focused }

// Focus focuses the command bar
func (m *CmdBarModel) Focus() tea.Cmd {
	m.focused = true
	m.message = ""
	return m.input.Focus()
}

// Blur unfocuses the command bar
func (m *CmdBarModel) Blur() {
	m.focused = false
	m.input.Blur()
	m.input.SetValue("")
}

// Submit returns the current input and blurs
func (m *CmdBarModel) Submit() string {
	val := m.input.Value()
	m.Blur()
	return val
}

// SetMessage shows msg until the bar is focused again
func (m *CmdBarModel) SetMessage(msg string) { m.message = msg }

// Update handles messages
func (m *CmdBarModel) Update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.Blur()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// View renders the command bar
func (m *CmdBarModel) View() string {
	if m.focused {
		return cmdBarStyle.Render(promptStyle.Render(": ") + m.input.View())
	}
	if m.message != "" {
		return cmdBarStyle.Render(m.message)
	}
	return cmdBarStyle.Render("Press : to enter a command (done, move, tz, weights)")
}

// cmdResultMsg reports a finished command. rerun asks the app to refresh.
type cmdResultMsg struct {
	message string
	rerun   bool
}

// tzChangedMsg switches the display timezone.
type tzChangedMsg struct {
	zone string
}

// weightsChangedMsg carries normalized weights for the next run.
type weightsChangedMsg struct {
	weights engine.Weights
}

// Execute parses input and returns the command that carries it out.
func (a *App) Execute(input string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	name, args := parts[0], parts[1:]
	selected := a.list.Selected()

	switch name {
	case "done", "move":
		if selected == nil {
			return result("No task selected", false)
		}
		id := selected.Task.ID
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if name == "done" {
				if _, err := a.backend.CompleteTask(ctx, a.owner, id); err != nil {
					return cmdResultMsg{message: fmt.Sprintf("Error: %v", err)}
				}
				return cmdResultMsg{message: "Task completed", rerun: true}
			}
			p, err := a.backend.Reschedule(ctx, a.owner, id)
			if err != nil {
				return cmdResultMsg{message: fmt.Sprintf("Error: %v", err)}
			}
			return cmdResultMsg{message: "Moved to " + formatWindow(p), rerun: true}
		}

	case "tz":
		if len(args) != 1 {
			return result("Usage: tz <IANA zone>", false)
		}
		if _, err := time.LoadLocation(args[0]); err != nil {
			return result(fmt.Sprintf("Unknown timezone %q", args[0]), false)
		}
		zone := args[0]
		return func() tea.Msg { return tzChangedMsg{zone: zone} }

	case "weights":
		var d, p float64
		if len(args) != 2 {
			return result("Usage: weights <deadline> <priority>", false)
		}
		if _, err := fmt.Sscan(args[0], &d); err != nil {
			return result("Invalid deadline weight", false)
		}
		if _, err := fmt.Sscan(args[1], &p); err != nil {
			return result("Invalid priority weight", false)
		}
		w := engine.NormalizeWeights(d, p)
		return func() tea.Msg { return weightsChangedMsg{weights: w} }
	}
	return result(fmt.Sprintf("Unknown command: %s", name), false)
}

func result(msg string, rerun bool) tea.Cmd {
	return func() tea.Msg { return cmdResultMsg{message: msg, rerun: rerun} }
}

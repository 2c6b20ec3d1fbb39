package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)
)

// renderDetail renders one schedule row in full.
func renderDetail(it ScheduleItem, width int) string {
	var b strings.Builder
	t := it.Task

	b.WriteString(headerStyle.Width(width).Render(t.Title))
	b.WriteString("\n")

	field := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("ID", t.ID)
	field("Status", string(t.Status))
	field("Kind", formatKind(it.Kind))
	field("Priority", fmt.Sprintf("%d", t.Priority))
	field("Estimate", fmt.Sprintf("%.2fh", t.EstimatedHours))
	field("Deadline", t.Deadline.In(displayLocation(it)).Format("Mon 02 Jan 2006 15:04 MST"))
	if id, ok := t.Dependency.TaskID(); ok {
		field("Depends on", id)
	}

	b.WriteString(sectionStyle.Render("Placement"))
	b.WriteString("\n")
	if it.Placement == nil {
		field("Window", "none")
	} else {
		field("Window", formatWindow(*it.Placement))
		field("Length", it.Placement.Duration().String())
	}
	if it.Allocated > 0 {
		field("Allocated", fmt.Sprintf("%.2fh", it.Allocated))
	}
	if it.Reason != "" {
		field("Reason", it.Reason)
	}

	if t.Description != "" {
		b.WriteString(sectionStyle.Render("Description"))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(t.Description))
		b.WriteString("\n")
	}
	return b.String()
}

func displayLocation(it ScheduleItem) *time.Location {
	if it.Placement != nil {
		return it.Placement.Start.Location()
	}
	return time.UTC
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/planwise/internal/controlplane"
	"github.com/fentz26/planwise/internal/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update [task-id]",
	Short: "Change a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskUpdate,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete [task-id]",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskComplete,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

var (
	ownerID    string
	taskTitle  string
	taskDesc   string
	taskHours  float64
	taskDue    string
	taskPrio   int
	taskDep    string
	taskStatus string
	jsonOutput bool
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskUpdateCmd, taskCompleteCmd, taskDeleteCmd)
	taskCmd.PersistentFlags().StringVar(&ownerID, "owner", defaultOwner(), "Owner of the tasks")

	for _, c := range []*cobra.Command{taskAddCmd, taskUpdateCmd} {
		c.Flags().StringVar(&taskTitle, "title", "", "Task title")
		c.Flags().StringVar(&taskDesc, "desc", "", "Task description")
		c.Flags().Float64Var(&taskHours, "hours", 1, "Estimated duration in hours")
		c.Flags().StringVar(&taskDue, "deadline", "", "Deadline (RFC 3339, \"2006-01-02 15:04\" or a date)")
		c.Flags().IntVar(&taskPrio, "priority", 3, "Priority from 1 (low) to 5 (high)")
		c.Flags().StringVar(&taskDep, "depends-on", "", "ID of the task that must finish first")
	}
	taskAddCmd.MarkFlagRequired("title")
	taskAddCmd.MarkFlagRequired("deadline")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (pending, in_progress, completed, overdue)")
	taskListCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	taskShowCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	deadline, err := parseDeadline(taskDue)
	if err != nil {
		return err
	}
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	task, err := a.service.CreateTask(cmd.Context(), controlplane.TaskInput{
		OwnerID:        ownerID,
		Title:          taskTitle,
		Description:    taskDesc,
		EstimatedHours: taskHours,
		Deadline:       deadline,
		Priority:       taskPrio,
		DependsOn:      taskDep,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created task: %s\n", task.ID)
	if placed, err := a.service.GetTask(cmd.Context(), task.ID); err == nil && placed.Placement != nil {
		fmt.Printf("Scheduled: %s\n", formatPlacement(placed.Placement))
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	tasks, err := a.service.ListTasks(cmd.Context(), ownerID, models.TaskStatus(taskStatus))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(tasks)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIO\tDEADLINE\tSCHEDULED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(t.ID), truncate(t.Title, 40), t.Status, t.Priority,
			t.Deadline.In(displayLoc()).Format("2006-01-02 15:04"), formatPlacement(t.Placement))
	}
	return w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	task, err := a.service.GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(task)
	}

	fmt.Printf("ID:          %s\n", task.ID)
	fmt.Printf("Owner:       %s\n", task.OwnerID)
	fmt.Printf("Title:       %s\n", task.Title)
	fmt.Printf("Status:      %s\n", task.Status)
	fmt.Printf("Priority:    %d\n", task.Priority)
	fmt.Printf("Estimate:    %.2fh\n", task.EstimatedHours)
	fmt.Printf("Deadline:    %s\n", task.Deadline.In(displayLoc()).Format(time.RFC1123))
	if id, ok := task.Dependency.TaskID(); ok {
		fmt.Printf("Depends on:  %s\n", id)
	}
	fmt.Printf("Scheduled:   %s\n", formatPlacement(task.Placement))
	if task.Description != "" {
		fmt.Printf("\n%s\n", task.Description)
	}

	dependents, err := a.service.Dependents(cmd.Context(), "", task.ID)
	if err == nil && len(dependents) > 0 {
		fmt.Println("\nWaiting on this task:")
		for _, d := range dependents {
			fmt.Printf("  %s  %s\n", truncateID(d.ID), d.Title)
		}
	}
	return nil
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	var u controlplane.TaskUpdate
	flags := cmd.Flags()
	if flags.Changed("title") {
		u.Title = &taskTitle
	}
	if flags.Changed("desc") {
		u.Description = &taskDesc
	}
	if flags.Changed("hours") {
		u.EstimatedHours = &taskHours
	}
	if flags.Changed("priority") {
		u.Priority = &taskPrio
	}
	if flags.Changed("depends-on") {
		u.DependsOn = &taskDep
	}
	if flags.Changed("deadline") {
		deadline, err := parseDeadline(taskDue)
		if err != nil {
			return err
		}
		u.Deadline = &deadline
	}

	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	task, err := a.service.UpdateTask(cmd.Context(), ownerID, args[0], u)
	if err != nil {
		return err
	}
	fmt.Printf("Updated task: %s\n", task.ID)
	fmt.Printf("Scheduled: %s\n", formatPlacement(task.Placement))
	return nil
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.service.CompleteTask(cmd.Context(), ownerID, args[0]); err != nil {
		return err
	}
	fmt.Printf("Completed task: %s\n", args[0])
	return nil
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.service.DeleteTask(cmd.Context(), ownerID, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted task: %s\n", args[0])
	return nil
}

var deadlineLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"}

// parseDeadline reads s in the configured default timezone. A bare date means
// the end of that day.
func parseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	loc := displayLoc()
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if d, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return d.Add(24*time.Hour - time.Minute), nil
	}
	return time.Time{}, fmt.Errorf("invalid deadline %q", s)
}

func displayLoc() *time.Location {
	if loc, err := time.LoadLocation(cfg.Scheduler.DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

func formatPlacement(p *models.Placement) string {
	if p == nil {
		return "-"
	}
	loc := displayLoc()
	return fmt.Sprintf("%s → %s", p.Start.In(loc).Format("Mon 01-02 15:04"), p.End.In(loc).Format("15:04"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/planwise/internal/config"
	"github.com/fentz26/planwise/internal/engine"
	"github.com/fentz26/planwise/internal/models"
	"github.com/fentz26/planwise/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Recompute and tune schedules",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Recompute an owner's schedule",
	RunE:  runScheduleRun,
}

var scheduleRescheduleCmd = &cobra.Command{
	Use:   "reschedule [task-id]",
	Short: "Find a new window for one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleReschedule,
}

var scheduleWeightsCmd = &cobra.Command{
	Use:   "weights [deadline] [priority]",
	Short: "Show or set the urgency weights",
	Long: `Without arguments prints the configured weights. With two numbers,
normalizes them to sum to 1 and writes them to the config file, where a
running daemon picks them up.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runScheduleWeights,
}

var (
	scheduleTZ  string
	scheduleAll bool
	weightD     float64
	weightP     float64
)

func init() {
	scheduleCmd.AddCommand(scheduleRunCmd, scheduleRescheduleCmd, scheduleWeightsCmd)
	scheduleCmd.PersistentFlags().StringVar(&ownerID, "owner", defaultOwner(), "Owner of the tasks")

	scheduleRunCmd.Flags().StringVar(&scheduleTZ, "tz", "", "IANA timezone for the run (default from config)")
	scheduleRunCmd.Flags().BoolVar(&scheduleAll, "all", false, "Recompute every owner with open tasks")
	scheduleRunCmd.Flags().Float64Var(&weightD, "deadline-weight", 0, "Deadline weight for this run only")
	scheduleRunCmd.Flags().Float64Var(&weightP, "priority-weight", 0, "Priority weight for this run only")
	scheduleRunCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if scheduleAll {
		p, err := scheduler.NewPeriodic(a.sched, a.repo, cfg.Scheduler.Periodic, logger)
		if err != nil {
			return err
		}
		res := p.RunOnce(cmd.Context())
		fmt.Printf("Owners: %d  busy: %d  failed: %d\n", res.Owners, res.Busy, res.Failed)
		return nil
	}

	opts := scheduler.RunOptions{Timezone: scheduleTZ}
	if cmd.Flags().Changed("deadline-weight") || cmd.Flags().Changed("priority-weight") {
		opts.Weights = engine.NormalizeWeights(weightD, weightP)
	}
	res, err := a.service.RunSchedule(cmd.Context(), ownerID, opts)
	if scheduler.IsBusy(err) {
		return fmt.Errorf("schedule for %s is being recomputed elsewhere, try again", ownerID)
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	printResult(res)
	return nil
}

func printResult(res *models.ScheduleResult) {
	fmt.Printf("Owner %s at %s (%s), weights %.2f/%.2f\n\n",
		res.OwnerID, res.Now.Format("2006-01-02 15:04"), res.Timezone, res.DeadlineWeight, res.PriorityWeight)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATE\tWINDOW\tNOTE")
	row := func(t models.Task, state string, p *models.Placement, note string) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", truncateID(t.ID), truncate(t.Title, 40), state, formatPlacement(p), note)
	}
	for _, st := range res.Scheduled {
		note := ""
		if st.AllocatedHours > 0 {
			note = fmt.Sprintf("%.2fh of %.2fh", st.AllocatedHours, st.Task.EstimatedHours)
		}
		row(st.Task, "scheduled", &st.Placement, note)
	}
	for _, st := range res.Overdue {
		row(st.Task, "overdue", &st.Placement, "misses deadline")
	}
	for _, c := range res.Conflicts {
		row(c.Task, "conflict", c.Placement, c.Reason)
	}
	for _, t := range res.Blocked {
		row(t, "blocked", nil, "waiting on dependency")
	}
	w.Flush()

	fmt.Printf("\n%d scheduled, %d overdue, %d conflicts, %d blocked\n",
		res.TotalScheduled, res.TotalOverdue, res.TotalConflicts, len(res.Blocked))
}

func runScheduleReschedule(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.service.Reschedule(cmd.Context(), ownerID, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Rescheduled %s: %s\n", truncateID(args[0]), formatPlacement(&p))
	return nil
}

func runScheduleWeights(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		w := cfg.Scheduler.Weights()
		fmt.Printf("deadline %.3f  priority %.3f\n", w.Deadline, w.Priority)
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("expected both a deadline and a priority weight")
	}
	d, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid deadline weight: %w", err)
	}
	p, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid priority weight: %w", err)
	}

	// Reload so flag overrides are not written back.
	onDisk, err := config.Load(fsys, configPath)
	if err != nil {
		return err
	}
	w := engine.NormalizeWeights(d, p)
	onDisk.Scheduler.DeadlineWeight, onDisk.Scheduler.PriorityWeight = w.Deadline, w.Priority
	if err := config.Save(fsys, configPath, onDisk); err != nil {
		return err
	}
	fmt.Printf("deadline %.3f  priority %.3f (saved to %s)\n", w.Deadline, w.Priority, configPath)
	return nil
}

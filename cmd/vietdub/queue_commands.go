package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vietdub/internal/api"
	"vietdub/internal/config"
	"vietdub/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, _ *queue.Store, jobs *api.JobService) error {
				var statuses []queue.Status
				for _, value := range statusFilters {
					parsed, ok := queue.ParseStatus(value)
					if !ok {
						return fmt.Errorf("unknown status %q", value)
					}
					statuses = append(statuses, parsed)
				}

				list, err := jobs.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.JobListResponse{Jobs: list})
				}

				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					detail := ""
					if job.Error != nil {
						detail = job.Error.Kind
					}
					rows = append(rows, []string{
						job.JobID,
						job.Status,
						job.Stage,
						fmt.Sprintf("%.1f%%", job.Progress),
						truncate(job.Input, 48),
						detail,
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Job", "Status", "Stage", "Progress", "Input", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable output")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, _ *queue.Store, jobs *api.JobService) error {
				counts, err := jobs.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.QueueStatsResponse{Counts: counts})
				}
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(counts))
				for _, status := range queue.AllStatuses() {
					rows = append(rows, []string{string(status), fmt.Sprintf("%d", counts[string(status)])})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Status", "Jobs"},
					rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable output")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "retry [job-id ...]",
		Short: "Reset failed jobs to pending, resuming from their last completed stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, _ *queue.Store, jobs *api.JobService) error {
				updated, err := jobs.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.MutationResponse{Updated: updated})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", updated)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable output")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, _ *queue.Store, jobs *api.JobService) error {
				label := "completed"
				clearFn := jobs.ClearCompleted
				if clearFailed {
					label = "failed"
					clearFn = jobs.ClearFailed
				}
				removed, err := clearFn(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.MutationResponse{Updated: removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s job(s)\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed jobs instead of completed ones")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable output")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a single job regardless of status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, _ *queue.Store, jobs *api.JobService) error {
				removed, err := jobs.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("job %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return strings.TrimSpace(value[:max-3]) + "..."
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vietdub/internal/api"
	"vietdub/internal/config"
	"vietdub/internal/preflight"
	"vietdub/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline readiness and queue summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(cfg *config.Config, store *queue.Store, jobs *api.JobService) error {
				checks := preflight.RunAll(cmd.Context(), cfg)
				counts, err := jobs.Stats(cmd.Context())
				if err != nil {
					return err
				}

				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"checks": checks,
						"queue":  api.QueueStatsResponse{Counts: counts},
					})
				}

				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(checks))
				for _, check := range checks {
					state := "ok"
					if !check.Passed {
						state = "FAIL"
						if check.Optional {
							state = "missing"
						}
					}
					rows = append(rows, []string{check.Name, state, check.Detail})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Check", "State", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft}))

				summary := make([]string, 0, len(queue.AllStatuses()))
				for _, status := range queue.AllStatuses() {
					summary = append(summary, fmt.Sprintf("%s %d", status, counts[string(status)]))
				}
				fmt.Fprintf(out, "\nQueue: %s\n", strings.Join(summary, ", "))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable output")
	return cmd
}

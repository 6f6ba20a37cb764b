package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vietdub/internal/api"
	"vietdub/internal/config"
	"vietdub/internal/queue"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cooperative cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, store *queue.Store, jobs *api.JobService) error {
				jobID := args[0]
				ok, err := store.RequestCancel(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if !ok {
					job, lookupErr := jobs.Describe(cmd.Context(), jobID)
					if lookupErr == nil && job == nil {
						return fmt.Errorf("job %s not found", jobID)
					}
					return fmt.Errorf("job %s already finished", jobID)
				}
				if jsonOutput {
					return writeJSON(cmd, api.CancelResponse{JobID: jobID, Cancelled: true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", jobID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable output")
	return cmd
}

func newArtifactCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "artifact <job-id> <stage>",
		Short: "Print the recorded output locator for a completed stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, _ *queue.Store, jobs *api.JobService) error {
				artifact, err := jobs.Artifact(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if artifact == nil {
					return fmt.Errorf("no artifact recorded for job %s stage %s", args[0], args[1])
				}
				if jsonOutput {
					return writeJSON(cmd, artifact)
				}
				fmt.Fprintln(cmd.OutOrStdout(), artifact.Locator)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable output")
	return cmd
}

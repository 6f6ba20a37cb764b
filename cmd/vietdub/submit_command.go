package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vietdub/internal/api"
	"vietdub/internal/config"
	"vietdub/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		voice        string
		engines      []string
		targetLang   string
		resolution   string
		speedFactor  float64
		addSubtitles bool
		multiSpeaker bool
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "submit <url-or-file>",
		Short: "Queue a video for dubbing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, _ *queue.Store, jobs *api.JobService) error {
				job, err := jobs.Submit(cmd.Context(), api.SubmitRequest{
					Input: args[0],
					Options: api.JobOptions{
						VoiceID:                voice,
						TranslationEngineOrder: engines,
						TargetLanguage:         targetLang,
						IsMultiSpeaker:         multiSpeaker,
						Resolution:             resolution,
						SpeedFactor:            speedFactor,
						AddSubtitles:           addSubtitles,
					},
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.JobResponse{Job: job})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s\n", job.JobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "TTS voice (defaults to the configured voice)")
	cmd.Flags().StringSliceVar(&engines, "engine", nil, "Translation engine order, e.g. --engine gtx_free --engine ollama")
	cmd.Flags().StringVar(&targetLang, "target-lang", "", "Target language tag (defaults to vi)")
	cmd.Flags().StringVar(&resolution, "resolution", "", "Output resolution: 720p, 1080p, or 4k (defaults to source)")
	cmd.Flags().Float64Var(&speedFactor, "speed", 0, "Maximum speech time-stretch factor")
	cmd.Flags().BoolVar(&addSubtitles, "subtitles", false, "Mux Vietnamese subtitles into the output")
	cmd.Flags().BoolVar(&multiSpeaker, "multi-speaker", false, "Treat the source as multi-speaker content")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable output")
	return cmd
}

package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON renders a CLI payload (job rows, queue stats, daemon status)
// as indented JSON on the command's stdout for the --json output mode.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

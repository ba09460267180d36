package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause all automatic publishing",
	Long: `Flip the global publish switch off. Scheduled posts stay queued and
their times keep advancing, but nothing is dispatched until resume.
The pause survives daemon restarts.`,
	Args: cobra.NoArgs,
	RunE: runPause,
}

func init() {
	rootCmd.AddCommand(pauseCmd)
}

func runPause(cmd *cobra.Command, _ []string) error {
	state, err := apiClient().PausePublishing(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Publishing paused (by %s)\n", state.PausedBy)
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume automatic publishing",
	Args:  cobra.NoArgs,
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, _ []string) error {
	if _, err := apiClient().ResumePublishing(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Publishing resumed")
	return nil
}

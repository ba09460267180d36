package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the content pipeline at a glance",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	strip, err := apiClient().HealthStrip(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("in review: %d  approved: %d  published: %d  failed: %d\n",
		strip.InReview, strip.Approved, strip.Published, strip.Failed)
	if strip.Paused {
		fmt.Println("publishing: PAUSED")
	} else {
		fmt.Println("publishing: active")
	}
	return nil
}

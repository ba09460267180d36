package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sophiahq/sophia/internal/api"
)

var (
	recoverReason  string
	recoverUrgency string
)

var recoverCmd = &cobra.Command{
	Use:   "recover <draft-id>",
	Short: "Take down a published post",
	Long: `Request a takedown of the post behind a published draft.

The takedown is journaled and executed through the platform API where
supported. Instagram posts cannot be deleted via API; the command
reports manual_recovery_needed and the post must be removed in the app.

Exit codes: 0 success, 2 bad arguments or unknown draft, 3 daemon
unreachable, 4 draft is not published or changed concurrently.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)

	recoverCmd.Flags().StringVar(&recoverReason, "reason", "", "why the post must come down (required)")
	recoverCmd.Flags().StringVar(&recoverUrgency, "urgency", "review", "immediate or review")
	_ = recoverCmd.MarkFlagRequired("reason")
}

func runRecover(cmd *cobra.Command, args []string) error {
	rec, err := apiClient().Recover(cmd.Context(), args[0], api.RecoverRequest{
		Reason:  recoverReason,
		Urgency: recoverUrgency,
	})
	if err != nil {
		return err
	}

	switch rec.Status {
	case "completed":
		fmt.Printf("Post taken down (draft %s)\n", rec.DraftID)
	case "manual_recovery_needed":
		fmt.Printf("Platform cannot delete this post; remove it manually in the %s app (draft %s)\n",
			rec.Platform, rec.DraftID)
	default:
		fmt.Printf("Recovery %s (draft %s)\n", rec.Status, rec.DraftID)
	}
	return nil
}

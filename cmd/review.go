package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sophiahq/sophia/internal/ui/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review drafts waiting for approval",
	Long: `Open the terminal review queue against a running daemon.

Keys: a approve, e edit, r reject, s skip, d diff, R refresh, q quit.`,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

func runReview(_ *cobra.Command, _ []string) error {
	model := review.New(apiClient())
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running review queue: %w", err)
	}
	return nil
}

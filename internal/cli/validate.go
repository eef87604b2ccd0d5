package cli

import (
	"fmt"
	"os"

	"competition-session-service/internal/loader"
	"github.com/spf13/cobra"
)

// NewValidateCmd checks a session payload file the way Open would.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <payload.json>",
		Short: "Validate a competition payload and print its course tabs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			session, err := loader.Load(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "competition %s (%s): %d questions, %d minutes\n",
				session.CompetitionID(), session.Name(), len(session.Questions()), session.TotalTimeMinutes())
			for i, tab := range session.Tabs() {
				fmt.Fprintf(out, "  %d. %s  %d questions\n", i+1, tab.CourseCode, tab.QuestionCount())
			}
			return nil
		},
	}
}

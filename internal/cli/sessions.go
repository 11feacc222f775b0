// sessions.go implements the "clipforge sessions" command listing persisted sessions.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions",
	Long: `List persisted sessions, most recently updated first. Documents that
cannot be read are skipped and recorded in the event log.`,
	RunE: runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sums, err := a.orchestrator(nil).ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sums) == 0 {
		fmt.Println("No sessions found. Start one with: clipforge run")
		return nil
	}

	for _, s := range sums {
		status := "in progress"
		switch {
		case s.Done:
			status = "completed"
		case s.Failed > 0:
			status = fmt.Sprintf("%d failed", s.Failed)
		}
		fmt.Printf("  %-40s  %-16s  %3d/%-3d  %-12s  %s\n",
			s.ID, s.ProjectName, s.Completed, s.Total, status, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// sweep.go implements the "clipforge sweep" command removing expired sessions.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/berth-dev/clipforge/internal/cleanup"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired sessions",
	Long: `Delete completed sessions last updated more than retention_days ago.
Incomplete sessions are never deleted. Output directories left without a
session are pruned afterwards; use --keep to keep the N most recent instead.`,
	RunE: runSweep,
}

var (
	daysFlag   int
	keepFlag   int
	dryRunFlag bool
)

func init() {
	sweepCmd.Flags().IntVar(&daysFlag, "days", 0, "Retention in days (0 = execution.retention_days)")
	sweepCmd.Flags().IntVar(&keepFlag, "keep", 0, "Keep only the last N orphaned output directories (0 = age-based)")
	sweepCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Preview output directories that would be removed")
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	days := daysFlag
	if days <= 0 {
		days = a.cfg.Execution.RetentionDays
	}

	o := a.orchestrator(nil)
	if !dryRunFlag {
		n, err := o.SweepExpired(ctx, days)
		if err != nil {
			return fmt.Errorf("sweeping sessions: %w", err)
		}
		fmt.Printf("Removed %d expired session(s).\n", n)
	}

	sums, err := o.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	live := make(map[string]bool, len(sums))
	for _, s := range sums {
		live[s.ID] = true
	}

	var pruned []string
	if keepFlag > 0 {
		pruned, err = cleanup.PruneKeepRecent(a.outputDir(), live, keepFlag, dryRunFlag)
	} else {
		pruned, err = cleanup.PruneByAge(a.outputDir(), live, days, dryRunFlag)
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	verb := "Removed"
	if dryRunFlag {
		verb = "Would remove"
	}
	for _, name := range pruned {
		fmt.Printf("  %s output/%s\n", verb, name)
	}
	if len(pruned) > 0 {
		fmt.Printf("%s %d output director(ies).\n", verb, len(pruned))
	}
	return nil
}

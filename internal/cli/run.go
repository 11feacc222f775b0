// run.go implements the "clipforge run" command which starts a new session
// from a job file and drives it through the pipeline.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/berth-dev/clipforge/internal/job"
	"github.com/berth-dev/clipforge/internal/report"
	"github.com/berth-dev/clipforge/internal/session"
	"github.com/berth-dev/clipforge/internal/ui"
	"github.com/berth-dev/clipforge/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run [job.yaml]",
	Short: "Generate a video from a job file",
	Long: `Create a new session from a job file and generate every segment.
Interrupting the run leaves the session resumable with 'clipforge resume'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	primaryFlag  string
	fallbackFlag string
)

func init() {
	runCmd.Flags().StringVar(&primaryFlag, "primary", "", "Primary platform (overrides platforms.primary)")
	runCmd.Flags().StringVar(&fallbackFlag, "fallback", "", "Fallback platform (overrides platforms.fallback)")
}

func runRun(cmd *cobra.Command, args []string) error {
	jobPath := job.DefaultFile
	if len(args) > 0 {
		jobPath = args[0]
	}
	if !filepath.IsAbs(jobPath) {
		jobPath = filepath.Join(projectDir, jobPath)
	}
	j, err := job.Load(jobPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if primaryFlag != "" {
		a.cfg.Platforms.Primary = primaryFlag
	}
	if fallbackFlag != "" {
		a.cfg.Platforms.Fallback = fallbackFlag
	}

	fmt.Printf("Starting %s: %d scenes on %s\n\n", j.Project, len(j.Scenes), a.cfg.Platforms.Primary)
	return drive(ctx, a, j.Project, func(o *workflow.Orchestrator) (*workflow.Result, error) {
		return o.StartJob(ctx, j)
	})
}

// drive runs fn with a progress display attached, then prints and writes the
// session report.
func drive(ctx context.Context, a *app, title string, fn func(*workflow.Orchestrator) (*workflow.Result, error)) error {
	display := ui.NewProgressDisplay(title, os.Stdout)
	res, err := fn(a.orchestrator(display))
	display.Finish(res, err)
	if res == nil {
		return err
	}

	sess, snapErr := a.store.Resume(context.WithoutCancel(ctx), res.SessionID)
	if snapErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: reading session for report: %v\n", snapErr)
		return err
	}
	_ = a.store.Release(context.WithoutCancel(ctx), sess.ID)
	writeSessionReport(a, sess)

	if ctx.Err() != nil {
		fmt.Printf("\nInterrupted. Resume with: clipforge resume %s\n", res.SessionID)
	}
	return err
}

func writeSessionReport(a *app, sess *session.Session) {
	events, logErr := a.logger.ReadAll()
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: reading event log: %v\n", logErr)
	}
	r := report.Generate(sess, events)
	fmt.Println()
	fmt.Print(report.FormatReport(r))
	if sess.OutputPath == "" {
		return
	}
	if err := report.WriteReport(sess.OutputPath, r); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

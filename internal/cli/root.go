// Package cli defines Cobra command definitions for the clipforge CLI.
// This file contains the root command, global flags, and exit handling.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berth-dev/clipforge/internal/config"
	"github.com/berth-dev/clipforge/internal/workflow"
)

// Exit codes.
const (
	exitError      = 1
	exitIncomplete = 2
	exitConfig     = 3
)

var (
	projectDir string
	version    = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "clipforge",
	Short: "Segmented AI video generation orchestrator",
	Long: `Clipforge turns a job description into video segments rendered by
remote generation platforms. Every segment is tracked in a durable session,
so an interrupted run can be resumed without resubmitting finished work.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var inc *workflow.IncompleteError
	switch {
	case errors.As(err, &inc):
		return exitIncomplete
	case errors.Is(err, config.ErrInvalid):
		return exitConfig
	default:
		return exitError
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project root containing .clipforge/")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(platformsCmd)
	rootCmd.AddCommand(reportCmd)
}

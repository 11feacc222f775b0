// init.go implements the "clipforge init" command with optional --guided flag.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/clipforge/internal/config"
	"github.com/berth-dev/clipforge/internal/job"
	"github.com/berth-dev/clipforge/prompts"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize clipforge in the current project",
	Long: `Create .clipforge/config.yaml with default settings and a sample
job.yaml to edit. Existing job files are never overwritten.`,
	RunE: runInit,
}

var guidedFlag bool

func init() {
	initCmd.Flags().BoolVar(&guidedFlag, "guided", false, "Interactive prompts for configuration overrides")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}
	in := bufio.NewReader(cmd.InOrStdin())

	stateDir := filepath.Join(dir, config.Dir)
	if info, statErr := os.Stat(stateDir); statErr == nil && info.IsDir() {
		fmt.Printf("Warning: %s/ directory already exists.\n", config.Dir)
		fmt.Print("Reinitialize config? [y/N]: ")
		answer, _ := in.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if guidedFlag {
		guidedOverrides(cfg, in, cmd.OutOrStdout())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.WriteConfig(dir, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	jobPath := filepath.Join(dir, job.DefaultFile)
	if _, statErr := os.Stat(jobPath); os.IsNotExist(statErr) {
		content, err := prompts.SampleJob(filepath.Base(dir))
		if err != nil {
			return fmt.Errorf("rendering sample job: %w", err)
		}
		if err := os.WriteFile(jobPath, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing sample job: %w", err)
		}
		fmt.Printf("Sample job written to %s\n", job.DefaultFile)
	}

	if err := ensureGitignore(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to set up .gitignore: %v\n", err)
	}

	fmt.Printf("Configuration written to %s/config.yaml\n", config.Dir)
	fmt.Println("Ready to run: clipforge run")
	return nil
}

// guidedOverrides prompts for the settings most projects change.
func guidedOverrides(cfg *config.Config, in *bufio.Reader, out io.Writer) {
	ask := func(label, current string) string {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
		answer, _ := in.ReadString('\n')
		if answer = strings.TrimSpace(answer); answer == "" {
			return current
		}
		return answer
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "--- Guided Configuration ---")
	cfg.Platforms.Primary = ask("Primary platform", cfg.Platforms.Primary)
	fallback := cfg.Platforms.Fallback
	if fallback == "" {
		fallback = "none"
	}
	if fb := ask("Fallback platform", fallback); fb != "none" {
		cfg.Platforms.Fallback = fb
	}
	cfg.Storage.Driver = ask("Session storage (file, sqlite)", cfg.Storage.Driver)
	fmt.Fprintln(out, "--- End Guided Configuration ---")
	fmt.Fprintln(out)
}

// ensureGitignore creates or appends to .gitignore with runtime paths that
// should never be committed. Only entries not already present are added.
func ensureGitignore(dir string) error {
	gitignorePath := filepath.Join(dir, ".gitignore")

	requiredEntries := []string{
		// Runtime state (config.yaml IS committed)
		config.Dir + "/sessions/",
		config.Dir + "/log.jsonl",
		// Downloaded segments
		"output/",
		// OS files
		".DS_Store",
		"Thumbs.db",
	}

	existing := ""
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existing = string(data)
	}

	var missing []string
	for _, entry := range requiredEntries {
		if !strings.Contains(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var toAppend strings.Builder
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		toAppend.WriteString("\n")
	}
	if existing != "" {
		toAppend.WriteString("\n# Added by clipforge init\n")
	}
	for _, entry := range missing {
		toAppend.WriteString(entry + "\n")
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening .gitignore: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(toAppend.String()); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}
	return nil
}

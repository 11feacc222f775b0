// platforms.go implements the "clipforge platforms" command.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/clipforge/internal/config"
	"github.com/berth-dev/clipforge/internal/platform"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List platforms or recommend one",
	Long: `List the registered generation platforms and their capabilities.
With --recommend, rank them against the given requirements instead.`,
	RunE: runPlatforms,
}

var (
	recommendFlag   bool
	lipSyncFlag     bool
	cameraFlag      bool
	frameHintsFlag  bool
	budgetFlag      float64
	durationFlag    int
	cheapestFlag    bool
	bestQualityFlag bool
)

func init() {
	f := platformsCmd.Flags()
	f.BoolVar(&recommendFlag, "recommend", false, "Recommend a platform for the requirements below")
	f.BoolVar(&lipSyncFlag, "lip-sync", false, "Require lip sync")
	f.BoolVar(&cameraFlag, "camera", false, "Require camera control")
	f.BoolVar(&frameHintsFlag, "first-last-frame", false, "Require first/last frame control")
	f.Float64Var(&budgetFlag, "budget", 0, "Maximum total cost (with --duration)")
	f.IntVar(&durationFlag, "duration", 0, "Total video length in seconds")
	f.BoolVar(&cheapestFlag, "cheapest", false, "Prefer the lowest cost")
	f.BoolVar(&bestQualityFlag, "best", false, "Prefer the highest capability score")
}

func runPlatforms(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(projectDir)
	if err != nil {
		return err
	}
	registry := newRegistry(cfg)

	if recommendFlag {
		rec, err := registry.Recommend(platform.Requirements{
			NeedsLipSync:        lipSyncFlag,
			NeedsCameraControl:  cameraFlag,
			NeedsFirstLastFrame: frameHintsFlag,
			MaxBudget:           budgetFlag,
			Duration:            durationFlag,
			PrioritizeCost:      cheapestFlag,
			PrioritizeQuality:   bestQualityFlag,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Recommended: %s\n", rec.Recommended)
		if len(rec.Alternatives) > 0 {
			fmt.Printf("Alternatives: %s\n", strings.Join(rec.Alternatives, ", "))
		}
		fmt.Printf("Why: %s\n", rec.Rationale)
		return nil
	}

	for _, name := range registry.Names() {
		gw, err := registry.Get(name)
		if err != nil {
			return err
		}
		caps := gw.Capabilities()
		marker := ""
		switch {
		case strings.EqualFold(name, cfg.Platforms.Primary):
			marker = " (primary)"
		case strings.EqualFold(name, cfg.Platforms.Fallback):
			marker = " (fallback)"
		}
		fmt.Printf("%s - %s%s\n", name, caps.Name, marker)
		for _, line := range strings.Split(strings.TrimRight(caps.Summary(), "\n"), "\n") {
			fmt.Printf("  %s\n", line)
		}
		fmt.Println()
	}
	return nil
}

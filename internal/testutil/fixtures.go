// Package testutil provides test helper utilities for clipforge tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// JobYAML returns a job file with n prompt-only scenes named "shot 0".."shot n-1".
func JobYAML(project string, n int) string {
	scenes := make([]map[string]any, n)
	for i := range scenes {
		scenes[i] = map[string]any{
			"name":   fmt.Sprintf("Shot %d", i),
			"prompt": fmt.Sprintf("shot %d", i),
		}
	}
	return mustYAML(map[string]any{
		"project":          project,
		"aspect_ratio":     "16:9",
		"segment_duration": 5,
		"scenes":           scenes,
	})
}

// FastConfigYAML returns a config that polls every millisecond and never
// retries, so runs against simulated platforms finish quickly.
func FastConfigYAML(primary, fallback string) string {
	return mustYAML(map[string]any{
		"version":   1,
		"state_dir": ".clipforge/sessions",
		"storage":   map[string]any{"driver": "file"},
		"execution": map[string]any{
			"max_concurrency":           3,
			"max_batch_size":            3,
			"max_retries":               0,
			"poll_interval_ms":          1,
			"poll_timeout_s":            5,
			"autosave_interval_s":       0,
			"retention_days":            7,
			"circuit_breaker_threshold": 0,
		},
		"platforms": map[string]any{"primary": primary, "fallback": fallback},
	})
}

// JobProject returns file contents for a project with a job and a fast config.
func JobProject(project string, n int, primary, fallback string) map[string]string {
	return map[string]string{
		"job.yaml":               JobYAML(project, n),
		".clipforge/config.yaml": FastConfigYAML(primary, fallback),
	}
}

// EmptyProject returns an empty directory with no files.
func EmptyProject() map[string]string {
	return map[string]string{}
}

func mustYAML(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

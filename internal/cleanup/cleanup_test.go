package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/berth-dev/clipforge/internal/session"
)

// createOutput creates a session output directory for a session created at ts.
func createOutput(t *testing.T, outputDir, project string, ts time.Time) string {
	t.Helper()
	name := session.NewID(project, ts)
	if err := os.MkdirAll(filepath.Join(outputDir, name), 0755); err != nil {
		t.Fatalf("creating output dir %s: %v", name, err)
	}
	return name
}

func TestCreatedAtParsesSessionIDs(t *testing.T) {
	ts := time.UnixMilli(1767225600123)
	got, ok := createdAt(session.NewID("my_project", ts))
	if !ok {
		t.Fatal("createdAt rejected a session id")
	}
	if !got.Equal(ts) {
		t.Errorf("createdAt = %v, want %v", got, ts)
	}

	for _, name := range []string{"not-a-session", "a_b", "demo_123_zzzzzzzz", "demo_x_0123abcd"} {
		if _, ok := createdAt(name); ok {
			t.Errorf("createdAt(%q) accepted", name)
		}
	}
}

func TestPruneByAge_RemovesOldOrphans(t *testing.T) {
	outputDir := t.TempDir()

	now := time.Now()
	old := createOutput(t, outputDir, "old", now.AddDate(0, 0, -60))
	recent := createOutput(t, outputDir, "recent", now.AddDate(0, 0, -5))

	pruned, err := PruneByAge(outputDir, nil, 30, false)
	if err != nil {
		t.Fatalf("PruneByAge failed: %v", err)
	}

	if len(pruned) != 1 || pruned[0] != old {
		t.Errorf("expected pruned=[%s], got %v", old, pruned)
	}
	if _, err := os.Stat(filepath.Join(outputDir, old)); !os.IsNotExist(err) {
		t.Errorf("expected %s to be deleted", old)
	}
	if _, err := os.Stat(filepath.Join(outputDir, recent)); err != nil {
		t.Errorf("expected %s to still exist: %v", recent, err)
	}
}

func TestPruneByAge_NeverRemovesLiveSessions(t *testing.T) {
	outputDir := t.TempDir()
	old := createOutput(t, outputDir, "kept", time.Now().AddDate(0, 0, -60))

	pruned, err := PruneByAge(outputDir, map[string]bool{old: true}, 30, false)
	if err != nil {
		t.Fatalf("PruneByAge failed: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected no pruned dirs, got %v", pruned)
	}
	if _, err := os.Stat(filepath.Join(outputDir, old)); err != nil {
		t.Errorf("live session output removed: %v", err)
	}
}

func TestPruneByAge_DryRun(t *testing.T) {
	outputDir := t.TempDir()
	old := createOutput(t, outputDir, "old", time.Now().AddDate(0, 0, -60))

	pruned, err := PruneByAge(outputDir, nil, 30, true)
	if err != nil {
		t.Fatalf("PruneByAge dry-run failed: %v", err)
	}
	if len(pruned) != 1 || pruned[0] != old {
		t.Errorf("expected pruned=[%s], got %v", old, pruned)
	}
	if _, err := os.Stat(filepath.Join(outputDir, old)); err != nil {
		t.Errorf("expected %s to still exist in dry-run: %v", old, err)
	}
}

func TestPruneByAge_SkipsForeignDirs(t *testing.T) {
	outputDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(outputDir, "final-cut"), 0755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}

	pruned, err := PruneByAge(outputDir, nil, 0, false)
	if err != nil {
		t.Fatalf("PruneByAge failed: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected no pruned dirs, got %v", pruned)
	}
}

func TestPruneByAge_NonexistentDir(t *testing.T) {
	pruned, err := PruneByAge("/nonexistent/path", nil, 30, false)
	if err != nil {
		t.Fatalf("expected nil error for nonexistent dir, got: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected empty pruned list, got %v", pruned)
	}
}

func TestPruneKeepRecent_KeepsCorrectCount(t *testing.T) {
	outputDir := t.TempDir()

	now := time.Now()
	d1 := createOutput(t, outputDir, "a", now.AddDate(0, 0, -4))
	d2 := createOutput(t, outputDir, "b", now.AddDate(0, 0, -3))
	createOutput(t, outputDir, "c", now.AddDate(0, 0, -2))
	createOutput(t, outputDir, "d", now.AddDate(0, 0, -1))
	live := createOutput(t, outputDir, "e", now.AddDate(0, 0, -9))

	pruned, err := PruneKeepRecent(outputDir, map[string]bool{live: true}, 2, false)
	if err != nil {
		t.Fatalf("PruneKeepRecent failed: %v", err)
	}
	if len(pruned) != 2 {
		t.Fatalf("expected 2 pruned, got %d: %v", len(pruned), pruned)
	}
	if pruned[0] != d1 || pruned[1] != d2 {
		t.Errorf("expected pruned=[%s, %s], got %v", d1, d2, pruned)
	}

	entries, _ := os.ReadDir(outputDir)
	if len(entries) != 3 {
		t.Errorf("expected 3 remaining dirs, got %d", len(entries))
	}
}

func TestPruneKeepRecent_KeepMoreThanExist(t *testing.T) {
	outputDir := t.TempDir()
	createOutput(t, outputDir, "only", time.Now().AddDate(0, 0, -1))

	pruned, err := PruneKeepRecent(outputDir, nil, 5, false)
	if err != nil {
		t.Fatalf("PruneKeepRecent failed: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected no pruned dirs, got %v", pruned)
	}
}

func TestPruneKeepRecent_DryRun(t *testing.T) {
	outputDir := t.TempDir()

	now := time.Now()
	d1 := createOutput(t, outputDir, "a", now.AddDate(0, 0, -3))
	createOutput(t, outputDir, "b", now.AddDate(0, 0, -1))

	pruned, err := PruneKeepRecent(outputDir, nil, 1, true)
	if err != nil {
		t.Fatalf("PruneKeepRecent dry-run failed: %v", err)
	}
	if len(pruned) != 1 || pruned[0] != d1 {
		t.Errorf("expected pruned=[%s], got %v", d1, pruned)
	}

	entries, _ := os.ReadDir(outputDir)
	if len(entries) != 2 {
		t.Errorf("expected 2 dirs to remain in dry-run, got %d", len(entries))
	}
}

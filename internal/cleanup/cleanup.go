// Package cleanup prunes per-session output directories whose session
// document no longer exists.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// createdAt recovers the creation time embedded in a session id
// (<project>_<unix millis>_<8 hex>). ok is false for any other name.
func createdAt(name string) (time.Time, bool) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return time.Time{}, false
	}
	hash := parts[len(parts)-1]
	if len(hash) != 8 {
		return time.Time{}, false
	}
	if _, err := strconv.ParseUint(hash, 16, 32); err != nil {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

type outputDir struct {
	name    string
	created time.Time
}

// orphans lists session-named directories under dir that are not live.
func orphans(dir string, live map[string]bool) ([]outputDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading output directory: %w", err)
	}

	var dirs []outputDir
	for _, entry := range entries {
		if !entry.IsDir() || live[entry.Name()] {
			continue
		}
		created, ok := createdAt(entry.Name())
		if !ok {
			// Skip directories that are not session outputs.
			continue
		}
		dirs = append(dirs, outputDir{name: entry.Name(), created: created})
	}
	return dirs, nil
}

func remove(outputDir string, names []string, dryRun bool) ([]string, error) {
	var pruned []string
	for _, name := range names {
		if !dryRun {
			if err := os.RemoveAll(filepath.Join(outputDir, name)); err != nil {
				return pruned, fmt.Errorf("removing %s: %w", name, err)
			}
		}
		pruned = append(pruned, name)
	}
	return pruned, nil
}

// PruneByAge removes orphaned session output directories created more than
// maxAgeDays ago. Directories named in live are never touched. If dryRun is
// true, nothing is deleted; the names that would be removed are returned.
func PruneByAge(outputDir string, live map[string]bool, maxAgeDays int, dryRun bool) ([]string, error) {
	dirs, err := orphans(outputDir, live)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var names []string
	for _, d := range dirs {
		if d.created.Before(cutoff) {
			names = append(names, d.name)
		}
	}
	return remove(outputDir, names, dryRun)
}

// PruneKeepRecent removes all orphaned session output directories except the
// keep most recently created. Live sessions are never touched and do not
// count toward keep.
func PruneKeepRecent(outputDir string, live map[string]bool, keep int, dryRun bool) ([]string, error) {
	dirs, err := orphans(outputDir, live)
	if err != nil {
		return nil, err
	}
	if len(dirs) <= keep {
		return nil, nil
	}

	sort.Slice(dirs, func(i, j int) bool {
		if !dirs[i].created.Equal(dirs[j].created) {
			return dirs[i].created.Before(dirs[j].created)
		}
		return dirs[i].name < dirs[j].name
	})

	names := make([]string, 0, len(dirs)-keep)
	for _, d := range dirs[:len(dirs)-keep] {
		names = append(names, d.name)
	}
	return remove(outputDir, names, dryRun)
}

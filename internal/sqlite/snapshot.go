// This file implements point-in-time snapshots of the notes database with
// count-based retention.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

// SnapshotPrefix starts the name of every snapshot file; the rest is the
// creation time in epoch millis.
const SnapshotPrefix = NotesFileName + "_"

// DefaultRetention is the number of snapshots kept when none is given.
const DefaultRetention = 10

var snapshotName = regexp.MustCompile(`^` + regexp.QuoteMeta(SnapshotPrefix) + `(\d+)$`)

// snapshotter implements types.Snapshotter.
type snapshotter struct {
	b *Backend
}

// Snapshot copies the notes database into dir and prunes old snapshots.
//
// The copy is made with VACUUM INTO, which reads a single consistent
// snapshot of the database, into a temporary file that is renamed once
// complete. Only files named like snapshots are considered for pruning.
// Returns ErrNoBackupDirectory when dir is empty.
func (s *snapshotter) Snapshot(ctx context.Context, dir string, retention int) (string, error) {
	if dir == "" {
		return "", types.ErrNoBackupDirectory
	}
	db, err := s.b.notesDB()
	if err != nil {
		return "", err
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+SnapshotPrefix+uuid.NewString()+".tmp")
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("copying database: %w", err)
	}

	path, err := nextSnapshotPath(dir, s.b.now().UnixMilli())
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming snapshot: %w", err)
	}

	pruned, err := pruneSnapshots(dir, retention)
	if err != nil {
		return path, err
	}

	s.b.logger.Info("snapshot written",
		slog.String("path", path),
		slog.Int("pruned", len(pruned)))
	return path, nil
}

// nextSnapshotPath returns the snapshot path for millis, moving forward one
// millisecond at a time past names already taken.
func nextSnapshotPath(dir string, millis int64) (string, error) {
	for {
		path := filepath.Join(dir, SnapshotPrefix+strconv.FormatInt(millis, 10))
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
		millis++
	}
}

// snapshotFile is a snapshot found on disk.
type snapshotFile struct {
	name   string
	millis int64
}

// listSnapshots returns the snapshots in dir, newest first.
func listSnapshots(dir string) ([]snapshotFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var files []snapshotFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		m := snapshotName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		millis, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		files = append(files, snapshotFile{name: e.Name(), millis: millis})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].millis > files[j].millis })
	return files, nil
}

// pruneSnapshots removes all but the newest retention snapshots and returns
// the removed paths.
func pruneSnapshots(dir string, retention int) ([]string, error) {
	files, err := listSnapshots(dir)
	if err != nil {
		return nil, err
	}
	if len(files) <= retention {
		return nil, nil
	}

	var removed []string
	for _, f := range files[retention:] {
		path := filepath.Join(dir, f.name)
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("removing old snapshot: %w", err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

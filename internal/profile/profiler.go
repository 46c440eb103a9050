package profile

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Profile describes one directory subtree as measured at scan time.
// Figures are advisory: the planner uses them for splitting decisions and
// progress estimates, never for copy correctness.
type Profile struct {
	Path           string
	TotalSizeBytes int64
	FileCount      int64
	DirCount       int64
	LastScanned    time.Time
}

// Entry is one immediate child of a directory.
type Entry struct {
	Name      string
	IsDir     bool
	IsReparse bool // symlink or other filesystem redirect; never descended
	Size      int64
}

// Profiler measures directory subtrees and enumerates their children.
type Profiler interface {
	// Profile returns the aggregate size and counts of the subtree at path.
	Profile(ctx context.Context, path string) (Profile, error)
	// ReadDir lists the immediate children of path.
	ReadDir(path string) ([]Entry, error)
}

// FSProfiler measures the local filesystem by walking it.
type FSProfiler struct{}

// NewFSProfiler returns a filesystem-backed profiler.
func NewFSProfiler() *FSProfiler { return &FSProfiler{} }

// Profile walks the subtree at path and accumulates size and counts.
// Entries that cannot be read below the root are skipped rather than
// failing the whole profile; only an unreadable root is an error.
func (p *FSProfiler) Profile(ctx context.Context, path string) (Profile, error) {
	prof := Profile{Path: path, LastScanned: time.Now()}

	err := filepath.WalkDir(path, func(entry string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if entry == path {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			if entry != path {
				prof.DirCount++
			}
		case d.Type()&fs.ModeSymlink != 0:
			// Reparse points are excluded from copies; don't count them.
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return nil
			}
			prof.FileCount++
			prof.TotalSizeBytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}

	return prof, nil
}

// ReadDir lists the immediate children of path.
func (p *FSProfiler) ReadDir(path string) ([]Entry, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		e := Entry{
			Name:      d.Name(),
			IsDir:     d.IsDir(),
			IsReparse: d.Type()&fs.ModeSymlink != 0,
		}
		if !e.IsDir && !e.IsReparse {
			if info, err := d.Info(); err == nil {
				e.Size = info.Size()
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

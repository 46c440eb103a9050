package plan

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/shard/internal/profile"
)

// planParallelism bounds concurrent child planning within one recursion level.
const planParallelism = 8

// Planner decomposes a directory tree into an ordered list of chunks that
// respect the configured thresholds. The resulting chunks cover every file
// reachable from the root exactly once; a directory chosen as a chunk
// boundary is never re-descended into by any other chunk.
type Planner struct {
	profiler profile.Profiler
	log      *slog.Logger
}

// NewPlanner creates a planner over the given profiler.
func NewPlanner(profiler profile.Profiler, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	return &Planner{profiler: profiler, log: log}
}

// Plan recursively decomposes rootPath into chunks whose destinations are
// rooted at destRoot. Chunk IDs are assigned sequentially over the final
// ordered list, and destination paths are computed by substituting destRoot
// for the root prefix, so trailing-separator variations on either input do
// not change the result.
func (p *Planner) Plan(ctx context.Context, rootPath, destRoot string, th Thresholds) ([]*Chunk, error) {
	root := normalizePath(rootPath)
	dest := normalizePath(destRoot)

	chunks, err := p.plan(ctx, root, 0, th)
	if err != nil {
		return nil, err
	}

	// Deterministic post-pass: IDs and destinations are assigned over the
	// materialized list, not threaded through the recursion.
	for i, c := range chunks {
		c.ID = i
		c.DestinationPath = mapDestination(root, dest, c.SourcePath)
	}

	return chunks, nil
}

func (p *Planner) plan(ctx context.Context, path string, depth int, th Thresholds) ([]*Chunk, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	prof, err := p.profiler.Profile(ctx, path)
	if err != nil {
		if depth == 0 {
			return nil, fmt.Errorf("plan root: %w", err)
		}
		// Inaccessible subtree: skipped, not retried. The next full run
		// will see it again.
		p.log.Warn("skipping unreadable subtree", "path", path, "error", err)
		return nil, nil
	}

	if prof.TotalSizeBytes == 0 && prof.FileCount == 0 {
		return nil, nil
	}

	withinLimits := prof.TotalSizeBytes <= th.MaxSizeBytes && prof.FileCount <= th.MaxFiles
	tooSmallToSplit := th.MinSizeBytes > 0 && prof.TotalSizeBytes <= th.MinSizeBytes

	if withinLimits || tooSmallToSplit {
		return []*Chunk{p.wholeDirChunk(path, prof, depth)}, nil
	}

	if depth >= th.MaxDepth {
		// Termination beats size correctness: take the oversized chunk.
		p.log.Warn("thresholds exceeded at depth limit, taking oversized chunk",
			"path", path,
			"size", prof.TotalSizeBytes,
			"files", prof.FileCount,
			"depth", depth)
		return []*Chunk{p.wholeDirChunk(path, prof, depth)}, nil
	}

	entries, err := p.profiler.ReadDir(path)
	if err != nil {
		p.log.Warn("cannot enumerate directory, taking it whole", "path", path, "error", err)
		return []*Chunk{p.wholeDirChunk(path, prof, depth)}, nil
	}

	var childDirs []profile.Entry
	var looseFiles, looseBytes int64
	for _, e := range entries {
		switch {
		case e.IsReparse:
			// Excluded from copy options at the parent chunk level; never
			// separately chunked.
		case e.IsDir:
			childDirs = append(childDirs, e)
		default:
			looseFiles++
			looseBytes += e.Size
		}
	}

	if len(childDirs) == 0 {
		// Flat directory over threshold with nothing to split by.
		return []*Chunk{p.wholeDirChunk(path, prof, depth)}, nil
	}

	// Plan children concurrently, collecting per-index so the final order
	// matches a sequential pre-order traversal.
	results := make([][]*Chunk, len(childDirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(planParallelism)
	for i, child := range childDirs {
		i, child := i, child
		g.Go(func() error {
			sub, err := p.plan(gctx, filepath.Join(path, child.Name), depth+1, th)
			if err != nil {
				return err
			}
			results[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var chunks []*Chunk
	for _, sub := range results {
		chunks = append(chunks, sub...)
	}

	// Loose files directly inside path get their own restricted chunk:
	// the subdirectories are already covered above, so the executor must
	// not descend.
	if looseFiles > 0 {
		chunks = append(chunks, &Chunk{
			SourcePath:         path,
			EstimatedSizeBytes: looseBytes,
			EstimatedFileCount: looseFiles,
			Depth:              depth,
			IsFilesOnly:        true,
			CopyOptions:        []CopyOption{FilesOnly, NoReparsePoints},
			Status:             Pending,
		})
	}

	return chunks, nil
}

func (p *Planner) wholeDirChunk(path string, prof profile.Profile, depth int) *Chunk {
	return &Chunk{
		SourcePath:         path,
		EstimatedSizeBytes: prof.TotalSizeBytes,
		EstimatedFileCount: prof.FileCount,
		Depth:              depth,
		CopyOptions:        []CopyOption{NoReparsePoints},
		Status:             Pending,
	}
}

// normalizePath cleans a path and strips any trailing separator so that
// inputs with or without one behave identically.
func normalizePath(path string) string {
	return filepath.Clean(path)
}

// mapDestination replaces the root prefix of src with destRoot.
func mapDestination(root, destRoot, src string) string {
	if src == root {
		return destRoot
	}
	rel := strings.TrimPrefix(src, root)
	rel = strings.TrimPrefix(rel, string(filepath.Separator))
	return filepath.Join(destRoot, rel)
}

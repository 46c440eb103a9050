package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bamsammich/shard/internal/orch"
)

// Reporter prints periodic progress lines from orchestrator snapshots.
// It only ever reads immutable snapshots; it never touches live state.
type Reporter struct {
	w        io.Writer
	source   func() orch.Snapshot
	interval time.Duration

	lastPhase orch.Phase
}

// NewReporter creates a plain-text reporter over a snapshot source.
func NewReporter(w io.Writer, source func() orch.Snapshot, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reporter{w: w, source: source, interval: interval}
}

// Run prints progress until the run reaches a terminal phase or ctx is
// cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := r.source()
			r.printLine(snap)
			if snap.Phase.Terminal() {
				return
			}
		}
	}
}

func (r *Reporter) printLine(s orch.Snapshot) {
	if s.Phase != r.lastPhase {
		fmt.Fprintf(r.w, "phase: %s\n", s.Phase)
		r.lastPhase = s.Phase
	}

	switch s.Phase {
	case orch.Scanning:
		fmt.Fprintf(r.w, "scanning %s...\n", s.Profile)
	case orch.Replicating, orch.Paused:
		fmt.Fprintf(r.w, "progress: %3.0f%%  %s/%s  chunks %d/%d (%d failed)  active %d  queued %d  eta %s\n",
			s.ProgressPct(),
			humanize.IBytes(uint64(max(s.BytesComplete, 0))),
			humanize.IBytes(uint64(max(s.BytesTotal, 0))),
			s.ChunksComplete, s.ChunksTotal, s.ChunksFailed,
			s.ActiveJobs, s.QueuedChunks,
			FormatETA(s.ETA),
		)
	}
}

// Summary returns the final one-line summary for a finished run.
func Summary(s orch.Snapshot) string {
	return fmt.Sprintf("%s: %d/%d chunks, %d failed, %s in %s",
		s.Phase,
		s.ChunksComplete, s.ChunksTotal, s.ChunksFailed,
		humanize.IBytes(uint64(max(s.BytesComplete, 0))),
		s.Elapsed.Round(time.Second),
	)
}

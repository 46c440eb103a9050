// Package copyexec starts, polls, and kills the external copy processes
// that perform the actual byte transfer for one chunk. The orchestrator
// never blocks on a copy: live progress comes from a streaming channel
// populated as the copy proceeds, and the final result is only computed
// once the process has fully exited.
package copyexec

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/shard/internal/plan"
)

// ErrNotComplete is returned by AwaitResult for a still-running job.
var ErrNotComplete = errors.New("copy job not complete")

// ErrUnknownHandle is returned for handles the executor does not track.
var ErrUnknownHandle = errors.New("unknown job handle")

// JobHandle identifies one running copy process.
type JobHandle string

// NewHandle returns a fresh opaque job handle.
func NewHandle() JobHandle { return JobHandle(uuid.NewString()) }

// PollStatus is a non-blocking view of a running job. Safe to request
// repeatedly while the process runs.
type PollStatus struct {
	IsComplete       bool
	BytesCopiedSoFar int64
	CurrentItem      string
}

// Result is the final outcome of a finished job. ExitCode follows the
// bitmask taxonomy decoded by DecodeExitCode.
type Result struct {
	ExitCode    int
	FilesCopied int64
	BytesCopied int64
	Duration    time.Duration
}

// Executor starts and supervises external copy processes, one per chunk.
// All methods must be non-blocking from the caller's perspective.
type Executor interface {
	// Start launches a copy of src to dst and returns immediately.
	Start(ctx context.Context, src, dst string, opts []plan.CopyOption) (JobHandle, error)
	// Poll reports live progress for a job.
	Poll(handle JobHandle) (PollStatus, error)
	// AwaitResult returns the final result. Only valid once Poll has
	// reported IsComplete; returns ErrNotComplete otherwise.
	AwaitResult(handle JobHandle) (Result, error)
	// Kill terminates a job. Idempotent; safe on a finished handle.
	Kill(handle JobHandle)
}

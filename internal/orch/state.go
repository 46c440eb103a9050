package orch

import (
	"time"

	"github.com/bamsammich/shard/internal/copyexec"
	"github.com/bamsammich/shard/internal/plan"
)

// Phase is the orchestrator's lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Scanning
	Replicating
	Paused
	Stopping
	Complete
	Stopped
)

var phaseNames = [...]string{
	Idle:        "Idle",
	Scanning:    "Scanning",
	Replicating: "Replicating",
	Paused:      "Paused",
	Stopping:    "Stopping",
	Complete:    "Complete",
	Stopped:     "Stopped",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "Unknown"
}

// Terminal reports whether the phase ends the run.
func (p Phase) Terminal() bool {
	return p == Complete || p == Stopped
}

// Outcome is the user-visible classification of a finished run.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePartialFailure
	OutcomeTotalFailure
)

var outcomeNames = [...]string{
	OutcomeSuccess:        "Success",
	OutcomePartialFailure: "PartialFailure",
	OutcomeTotalFailure:   "TotalFailure",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "Unknown"
}

// FailedChunk records a chunk that exhausted its retries, with the exit
// detail of its final attempt.
type FailedChunk struct {
	Chunk   *plan.Chunk
	Result  copyexec.Result
	Outcome copyexec.Outcome
}

// Snapshot is an immutable view of orchestrator state for status
// reporters. Readers never see (or mutate) live state.
type Snapshot struct {
	Phase          Phase
	Profile        string
	ChunksTotal    int
	ChunksComplete int
	ChunksFailed   int
	BytesTotal     int64
	BytesComplete  int64
	ActiveJobs     int
	QueuedChunks   int
	Elapsed        time.Duration
	ETA            time.Duration
	CircuitOpen    bool
	CircuitUntil   time.Time
}

// ProgressPct returns overall progress in percent, by estimated bytes.
func (s Snapshot) ProgressPct() float64 {
	if s.BytesTotal <= 0 {
		return 0
	}
	pct := float64(s.BytesComplete) / float64(s.BytesTotal) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

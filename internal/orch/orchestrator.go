// Package orch schedules chunk execution against the copy executor. All
// orchestration state is owned by a single actor goroutine driven by a
// tick: commands from other goroutines arrive over a channel and take
// effect on the next tick, never synchronously, so the state machine's
// transitions stay auditable and the tick can never run concurrently with
// itself.
package orch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/shard/internal/copyexec"
	"github.com/bamsammich/shard/internal/event"
	"github.com/bamsammich/shard/internal/plan"
	"github.com/bamsammich/shard/internal/stats"
)

// Config controls orchestrator behavior.
type Config struct {
	// MaxConcurrentJobs bounds simultaneously running copy processes.
	MaxConcurrentJobs int
	// MaxRetries bounds attempts per chunk for Error-severity failures.
	// Fatal-severity failures are retried at most once regardless.
	MaxRetries int
	// RetryDelay holds a retried chunk back for this long before it may
	// start again. Zero requeues immediately.
	RetryDelay time.Duration
	// JobTimeout kills a chunk that has run longer than this and routes
	// it through the same retry path as an Error. Zero disables.
	JobTimeout time.Duration
	// StartRate caps chunk starts per second. Zero is unlimited.
	StartRate float64
	// TickInterval is how often the scheduling tick runs.
	TickInterval time.Duration
	Breaker      BreakerConfig
}

// DefaultConfig returns the stock orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 4,
		MaxRetries:        3,
		TickInterval:      500 * time.Millisecond,
		Breaker:           DefaultBreakerConfig(),
	}
}

// PlanFunc produces the chunk list for a run. It is called once, inside
// the Scanning phase.
type PlanFunc func(ctx context.Context) ([]*plan.Chunk, error)

type cmd int

const (
	cmdStop cmd = iota + 1
	cmdPause
	cmdResume
)

type queuedChunk struct {
	chunk     *plan.Chunk
	notBefore time.Time
}

type activeJob struct {
	chunk   *plan.Chunk
	started time.Time
}

// Orchestrator owns the chunk queue and the in-flight job set for one
// replication run.
type Orchestrator struct {
	cfg    Config
	exec   copyexec.Executor
	events event.Sink
	stats  *stats.Collector
	log    *slog.Logger

	cmds chan cmd
	snap atomic.Value // Snapshot

	// Everything below is owned by the actor goroutine inside Run.
	ctx           context.Context
	phase         Phase
	profileRoot   string
	destRoot      string
	queue         []queuedChunk
	active        map[copyexec.JobHandle]activeJob
	completed     []*plan.Chunk
	failed        []FailedChunk
	bytesDone     int64 // sum of completed chunks' estimates
	filesCopied   int64
	stopRequested bool
	pauseReq      bool
	breaker       *breaker
	limiter       *rate.Limiter
	startedAt     time.Time
}

// New creates an orchestrator. Run may be called once.
func New(cfg Config, ex copyexec.Executor, sink event.Sink, log *slog.Logger) *Orchestrator {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = DefaultConfig().MaxConcurrentJobs
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if sink == nil {
		sink = event.Multi()
	}
	if log == nil {
		log = slog.Default()
	}

	o := &Orchestrator{
		cfg:     cfg,
		exec:    ex,
		events:  sink,
		stats:   stats.NewCollector(),
		log:     log,
		cmds:    make(chan cmd, 8),
		phase:   Idle,
		active:  make(map[copyexec.JobHandle]activeJob),
		breaker: newBreaker(cfg.Breaker),
	}
	if cfg.StartRate > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.StartRate), 1)
	}
	o.publish()
	return o
}

// RequestStop asks the run to stop. Takes effect on the next tick: every
// active job is killed and the queue is abandoned.
func (o *Orchestrator) RequestStop() { o.send(cmdStop) }

// RequestPause stops new chunks from starting; in-flight work finishes.
func (o *Orchestrator) RequestPause() { o.send(cmdPause) }

// RequestResume clears a pause and force-closes the circuit breaker.
func (o *Orchestrator) RequestResume() { o.send(cmdResume) }

func (o *Orchestrator) send(c cmd) {
	select {
	case o.cmds <- c:
	default:
	}
}

// Snapshot returns the latest immutable state snapshot. Safe from any
// goroutine.
func (o *Orchestrator) Snapshot() Snapshot {
	if s, ok := o.snap.Load().(Snapshot); ok {
		return s
	}
	return Snapshot{}
}

// Failed returns the permanently failed chunks. Valid once Run returned.
func (o *Orchestrator) Failed() []FailedChunk { return o.failed }

// Run plans the profile and replicates it, blocking until the run reaches
// Complete or Stopped. Context cancellation is treated as a stop request.
func (o *Orchestrator) Run(ctx context.Context, src, dst string, planFn PlanFunc) (Outcome, error) {
	o.ctx = ctx
	o.profileRoot = src
	o.destRoot = dst
	o.startedAt = time.Now()

	o.phase = Scanning
	o.publish()

	chunks, err := planFn(ctx)
	if err != nil {
		o.phase = Stopped
		o.publish()
		return OutcomeTotalFailure, fmt.Errorf("plan %s: %w", src, err)
	}

	var bytesTotal int64
	o.queue = make([]queuedChunk, 0, len(chunks))
	for _, c := range chunks {
		bytesTotal += c.EstimatedSizeBytes
		o.queue = append(o.queue, queuedChunk{chunk: c})
	}
	o.stats.SetTotals(int64(len(chunks)), bytesTotal)

	o.phase = Replicating
	o.log.Info("replication starting",
		"src", src,
		"dst", dst,
		"chunks", len(chunks),
		"bytes", bytesTotal)
	o.publish()

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()
	ctxDone := ctx.Done()

	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			o.stopRequested = true
			o.phase = Stopping
			o.publish()

		case c := <-o.cmds:
			o.handleCommand(c)

		case <-ticker.C:
			o.tick()
			if o.phase.Terminal() {
				return o.outcome(), nil
			}
		}
	}
}

func (o *Orchestrator) handleCommand(c cmd) {
	switch c {
	case cmdStop:
		o.stopRequested = true
		if !o.phase.Terminal() {
			o.phase = Stopping
		}
	case cmdPause:
		o.pauseReq = true
	case cmdResume:
		o.pauseReq = false
		o.breaker.reset()
	}
	o.publish()
}

// tick is the orchestrator's only mutating operation. It reaps finished
// jobs, applies the retry policy and circuit breaker, starts new work up
// to the concurrency limit, and recomputes aggregate progress.
func (o *Orchestrator) tick() {
	defer o.publish()

	if o.stopRequested {
		for h := range o.active {
			o.exec.Kill(h)
		}
		clear(o.active)
		abandoned := len(o.queue)
		o.queue = nil
		o.phase = Stopped
		o.log.Info("replication stopped", "abandoned", abandoned, "failed", len(o.failed))
		return
	}

	inflight := o.reap()

	switch {
	case o.pauseReq && o.phase == Replicating:
		o.phase = Paused
		o.log.Info("replication paused")
	case !o.pauseReq && o.phase == Paused && !o.breaker.open():
		o.phase = Replicating
		o.log.Info("replication resumed")
	}

	if o.phase == Replicating && !o.breaker.open() {
		o.startPending()
	}

	if len(o.queue) == 0 && len(o.active) == 0 && !o.phase.Terminal() {
		o.phase = Complete
		o.emitProfileCompleted()
	}

	o.stats.SetBytesComplete(o.bytesDone + inflight)
	o.stats.Tick()
}

// reap polls every active job without blocking, classifies finished ones,
// and returns the sum of in-flight bytes across still-running jobs.
func (o *Orchestrator) reap() int64 {
	var inflight int64

	for h, aj := range o.active {
		st, err := o.exec.Poll(h)
		if err != nil {
			// Executor lost the job; count it as a failed attempt.
			delete(o.active, h)
			o.handleFailure(aj.chunk, copyexec.Result{ExitCode: copyexec.ExitFatal})
			continue
		}

		if !st.IsComplete {
			if o.cfg.JobTimeout > 0 && time.Since(aj.started) > o.cfg.JobTimeout {
				// Kill-then-retry, the same path as an Error exit.
				o.log.Warn("chunk timed out",
					"chunk", aj.chunk.ID,
					"src", aj.chunk.SourcePath,
					"timeout", o.cfg.JobTimeout)
				o.exec.Kill(h)
				delete(o.active, h)
				o.handleFailure(aj.chunk, copyexec.Result{ExitCode: copyexec.ExitSomeFailed})
				continue
			}
			inflight += st.BytesCopiedSoFar
			continue
		}

		res, err := o.exec.AwaitResult(h)
		if err != nil {
			res = copyexec.Result{ExitCode: copyexec.ExitFatal}
		}
		delete(o.active, h)

		out := copyexec.DecodeExitCode(res.ExitCode)
		if out.Severity <= copyexec.SeverityWarning {
			o.handleSuccess(aj.chunk, res, out)
		} else {
			o.handleFailure(aj.chunk, res)
		}
	}

	return inflight
}

func (o *Orchestrator) handleSuccess(c *plan.Chunk, res copyexec.Result, out copyexec.Outcome) {
	if out.Severity == copyexec.SeverityWarning {
		c.Status = plan.CompleteWithWarnings
		o.log.Warn("chunk completed with mismatches", "chunk", c.ID, "src", c.SourcePath)
	} else {
		c.Status = plan.Complete
	}

	o.completed = append(o.completed, c)
	o.bytesDone += c.EstimatedSizeBytes
	o.filesCopied += res.FilesCopied
	o.breaker.recordSuccess()
	o.stats.AddChunksComplete(1)

	o.events.Emit(event.Event{
		Type:        event.ChunkCompleted,
		Timestamp:   time.Now(),
		ChunkID:     c.ID,
		Source:      c.SourcePath,
		Destination: c.DestinationPath,
		Severity:    out.Severity.String(),
		FilesCopied: res.FilesCopied,
		BytesCopied: res.BytesCopied,
		Duration:    res.Duration,
		Retries:     c.RetryCount,
	})
}

// handleFailure applies the retry policy to an Error or Fatal outcome and
// updates the circuit breaker.
func (o *Orchestrator) handleFailure(c *plan.Chunk, res copyexec.Result) {
	out := copyexec.DecodeExitCode(res.ExitCode)
	tripped := o.breaker.recordFailure()

	c.RetryCount++
	if c.RetryCount < o.maxAttempts(out) {
		c.Status = plan.Pending
		o.stats.AddRetries(1)
		o.queue = append(o.queue, queuedChunk{
			chunk:     c,
			notBefore: time.Now().Add(o.cfg.RetryDelay),
		})
		o.log.Warn("retrying chunk",
			"chunk", c.ID,
			"src", c.SourcePath,
			"severity", out.Severity.String(),
			"attempt", c.RetryCount)
	} else {
		c.Status = plan.Failed
		o.failed = append(o.failed, FailedChunk{Chunk: c, Result: res, Outcome: out})
		o.stats.AddChunksFailed(1)

		o.events.Emit(event.Event{
			Type:        event.ChunkFailed,
			Timestamp:   time.Now(),
			ChunkID:     c.ID,
			Source:      c.SourcePath,
			Destination: c.DestinationPath,
			Severity:    out.Severity.String(),
			Retries:     c.RetryCount,
			Detail:      fmt.Sprintf("exit code %d", res.ExitCode),
		})
		o.log.Error("chunk failed permanently",
			"chunk", c.ID,
			"src", c.SourcePath,
			"severity", out.Severity.String(),
			"exit_code", res.ExitCode)
	}

	if tripped {
		if o.phase == Replicating {
			o.phase = Paused
		}
		o.log.Warn("circuit breaker tripped, pausing new starts",
			"cooldown", o.breaker.cfg.Cooldown)
	}
}

// maxAttempts returns the total attempt budget for the given outcome.
// Fatal exits get a single retry before permanent failure.
func (o *Orchestrator) maxAttempts(out copyexec.Outcome) int {
	if out.Severity == copyexec.SeverityFatal {
		return min(2, o.cfg.MaxRetries)
	}
	return o.cfg.MaxRetries
}

// startPending dequeues chunks in FIFO order and starts them until the
// concurrency limit is reached. A retried chunk whose delay has not yet
// elapsed holds the head of the queue; nothing jumps past it. A failed
// Start can trip the breaker mid-loop, so both the breaker and the phase
// are rechecked before every dequeue.
func (o *Orchestrator) startPending() {
	for len(o.active) < o.cfg.MaxConcurrentJobs && len(o.queue) > 0 {
		if o.phase != Replicating || o.breaker.open() {
			return
		}
		qc := o.queue[0]
		if time.Now().Before(qc.notBefore) {
			return
		}
		if o.limiter != nil && !o.limiter.Allow() {
			return
		}
		o.queue = o.queue[1:]

		c := qc.chunk
		h, err := o.exec.Start(o.ctx, c.SourcePath, c.DestinationPath, c.CopyOptions)
		if err != nil {
			o.log.Error("failed to start chunk", "chunk", c.ID, "error", err)
			o.handleFailure(c, copyexec.Result{ExitCode: copyexec.ExitFatal})
			continue
		}

		c.Status = plan.Running
		o.active[h] = activeJob{chunk: c, started: time.Now()}
		o.events.Emit(event.Event{
			Type:        event.ChunkStarted,
			Timestamp:   time.Now(),
			ChunkID:     c.ID,
			Source:      c.SourcePath,
			Destination: c.DestinationPath,
			Retries:     c.RetryCount,
		})
	}
}

func (o *Orchestrator) emitProfileCompleted() {
	out := o.outcome()
	o.events.Emit(event.Event{
		Type:        event.ProfileCompleted,
		Timestamp:   time.Now(),
		Source:      o.profileRoot,
		Destination: o.destRoot,
		FilesCopied: o.filesCopied,
		BytesCopied: o.bytesDone,
		Duration:    time.Since(o.startedAt),
		Detail:      out.String(),
	})
	o.log.Info("profile complete",
		"src", o.profileRoot,
		"outcome", out.String(),
		"chunks", len(o.completed),
		"failed", len(o.failed))
}

// outcome classifies the finished run: Success with zero failed chunks,
// TotalFailure when nothing succeeded, PartialFailure otherwise.
func (o *Orchestrator) outcome() Outcome {
	switch {
	case len(o.failed) == 0:
		return OutcomeSuccess
	case len(o.completed) == 0:
		return OutcomeTotalFailure
	default:
		return OutcomePartialFailure
	}
}

// publish stores an immutable snapshot for status reporters.
func (o *Orchestrator) publish() {
	st := o.stats.Snapshot()
	var elapsed time.Duration
	if !o.startedAt.IsZero() {
		elapsed = time.Since(o.startedAt)
	}
	o.snap.Store(Snapshot{
		Phase:          o.phase,
		Profile:        o.profileRoot,
		ChunksTotal:    int(st.ChunksTotal),
		ChunksComplete: len(o.completed),
		ChunksFailed:   len(o.failed),
		BytesTotal:     st.BytesTotal,
		BytesComplete:  st.BytesComplete,
		ActiveJobs:     len(o.active),
		QueuedChunks:   len(o.queue),
		Elapsed:        elapsed,
		ETA:            o.stats.ETA(),
		CircuitOpen:    o.breaker.open(),
		CircuitUntil:   o.breaker.openUntil,
	})
}

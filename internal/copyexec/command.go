package copyexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	osexec "os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bamsammich/shard/internal/plan"
)

// CommandConfig describes how to invoke the external copy tool. Args for
// copy options are appended to BaseArgs, followed by the source and
// destination paths.
type CommandConfig struct {
	Command       string
	BaseArgs      []string
	FilesOnlyArgs []string
	NoReparseArgs []string
}

// CommandExecutor runs one external copy process per chunk. Progress is
// parsed from the tool's stdout as it streams: each per-file line of the
// form "<bytes> <path>" advances atomic counters that Poll reads without
// touching the process. The final result is assembled only after the
// process exits, so a live copy is never queried for its own statistics.
type CommandExecutor struct {
	cfg CommandConfig
	log *slog.Logger

	mu   sync.Mutex
	jobs map[JobHandle]*commandJob
}

type commandJob struct {
	cmd     *osexec.Cmd
	started time.Time

	bytes   atomic.Int64
	files   atomic.Int64
	current atomic.Value // string

	done   chan struct{}
	result Result
}

// NewCommandExecutor creates an executor for the configured copy tool.
func NewCommandExecutor(cfg CommandConfig, log *slog.Logger) (*CommandExecutor, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("copy command not configured")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CommandExecutor{
		cfg:  cfg,
		log:  log,
		jobs: make(map[JobHandle]*commandJob),
	}, nil
}

// Start launches the copy process and returns without waiting for it.
func (e *CommandExecutor) Start(ctx context.Context, src, dst string, opts []plan.CopyOption) (JobHandle, error) {
	args := append([]string(nil), e.cfg.BaseArgs...)
	for _, opt := range opts {
		switch opt {
		case plan.FilesOnly:
			args = append(args, e.cfg.FilesOnlyArgs...)
		case plan.NoReparsePoints:
			args = append(args, e.cfg.NoReparseArgs...)
		}
	}
	args = append(args, src, dst)

	cmd := osexec.CommandContext(ctx, e.cfg.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", e.cfg.Command, err)
	}

	job := &commandJob{
		cmd:     cmd,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	job.current.Store("")

	handle := NewHandle()
	e.mu.Lock()
	e.jobs[handle] = job
	e.mu.Unlock()

	go e.supervise(job, bufio.NewScanner(stdout))

	return handle, nil
}

// supervise streams progress lines until the process exits, then records
// the final result and closes the done channel.
func (e *CommandExecutor) supervise(job *commandJob, scanner *bufio.Scanner) {
	for scanner.Scan() {
		parseProgressLine(scanner.Text(), job)
	}

	err := job.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			code = exitErr.ExitCode()
		} else {
			// Process could not run or was killed mid-copy.
			code = ExitFatal
		}
	}

	job.result = Result{
		ExitCode:    code,
		FilesCopied: job.files.Load(),
		BytesCopied: job.bytes.Load(),
		Duration:    time.Since(job.started),
	}
	close(job.done)
}

// parseProgressLine interprets one per-file stdout line. Lines the tool
// emits outside the "<bytes> <path>" shape are ignored.
func parseProgressLine(line string, job *commandJob) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || n < 0 {
		return
	}
	job.bytes.Add(n)
	job.files.Add(1)
	job.current.Store(strings.Join(fields[1:], " "))
}

// Poll reports live progress without blocking.
func (e *CommandExecutor) Poll(handle JobHandle) (PollStatus, error) {
	job, ok := e.job(handle)
	if !ok {
		return PollStatus{}, ErrUnknownHandle
	}

	st := PollStatus{
		BytesCopiedSoFar: job.bytes.Load(),
		CurrentItem:      job.current.Load().(string),
	}
	select {
	case <-job.done:
		st.IsComplete = true
		st.BytesCopiedSoFar = job.result.BytesCopied
	default:
	}
	return st, nil
}

// AwaitResult returns the final result for a completed job and releases
// its handle.
func (e *CommandExecutor) AwaitResult(handle JobHandle) (Result, error) {
	job, ok := e.job(handle)
	if !ok {
		return Result{}, ErrUnknownHandle
	}

	select {
	case <-job.done:
	default:
		return Result{}, ErrNotComplete
	}

	e.mu.Lock()
	delete(e.jobs, handle)
	e.mu.Unlock()

	return job.result, nil
}

// Kill terminates the job's process. Idempotent and non-blocking; the
// handle is released once the process has been reaped.
func (e *CommandExecutor) Kill(handle JobHandle) {
	job, ok := e.job(handle)
	if !ok {
		return
	}

	select {
	case <-job.done:
		// Already finished; nothing to kill.
	default:
		if job.cmd.Process != nil {
			_ = job.cmd.Process.Kill()
		}
	}

	go func() {
		<-job.done
		e.mu.Lock()
		delete(e.jobs, handle)
		e.mu.Unlock()
	}()
}

func (e *CommandExecutor) job(handle JobHandle) (*commandJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[handle]
	return job, ok
}

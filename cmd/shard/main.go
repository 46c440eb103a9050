package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/shard/internal/config"
	"github.com/bamsammich/shard/internal/copyexec"
	"github.com/bamsammich/shard/internal/event"
	"github.com/bamsammich/shard/internal/orch"
	"github.com/bamsammich/shard/internal/plan"
	"github.com/bamsammich/shard/internal/profile"
	"github.com/bamsammich/shard/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

//nolint:gocyclo // main CLI entry point orchestrates all flag parsing
func run() int {
	var (
		jobs        int
		maxRetries  int
		retryDelay  string
		jobTimeout  string
		startRate   float64
		maxSize     sizeFlag
		maxFiles    int64
		maxDepth    int
		minSize     sizeFlag
		copyCommand string
		eventsFile  string
		noCache     bool
		verbose     bool
		quiet       bool
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:           "shard",
		Short:         "Replicate huge directory trees as bounded chunks run by an external copy tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "shard %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().IntVar(&jobs, "jobs", 0, "max concurrent copy jobs")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "retries", 0, "max attempts per chunk")
	rootCmd.PersistentFlags().StringVar(&retryDelay, "retry-delay", "", "delay before a retried chunk may start (e.g. 30s)")
	rootCmd.PersistentFlags().StringVar(&jobTimeout, "job-timeout", "", "kill a chunk running longer than this (e.g. 2h)")
	rootCmd.PersistentFlags().Float64Var(&startRate, "start-rate", 0, "max chunk starts per second (0 = unlimited)")
	rootCmd.PersistentFlags().Var(&maxSize, "max-size", "split directories larger than this (e.g. 10GiB)")
	rootCmd.PersistentFlags().Int64Var(&maxFiles, "max-files", 0, "split directories with more files than this")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 0, "max split recursion depth")
	rootCmd.PersistentFlags().Var(&minSize, "min-size", "never split directories smaller than this")
	rootCmd.PersistentFlags().StringVar(&copyCommand, "copy-cmd", "", "external copy tool to run per chunk")
	rootCmd.PersistentFlags().StringVar(&eventsFile, "events", "", "append audit events to this CSV file")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "bypass the directory profile cache")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "warnings and errors only")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	runCmd := &cobra.Command{
		Use:   "run <source> <destination>",
		Short: "Plan and replicate a directory tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose, quiet)

			opts, err := buildOptions(cmd, cliOverrides{
				jobs: jobs, maxRetries: maxRetries, retryDelay: retryDelay,
				jobTimeout: jobTimeout, startRate: startRate,
				maxSize: maxSize, maxFiles: maxFiles, maxDepth: maxDepth,
				minSize: minSize, copyCommand: copyCommand, noCache: noCache,
			})
			if err != nil {
				return err
			}

			return runReplication(cmd.Context(), args[0], args[1], opts, eventsFile, quiet)
		},
	}

	planCmd := &cobra.Command{
		Use:   "plan <source> <destination>",
		Short: "Print the chunk plan without copying anything",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose, quiet)

			opts, err := buildOptions(cmd, cliOverrides{
				maxSize: maxSize, maxFiles: maxFiles, maxDepth: maxDepth,
				minSize: minSize, noCache: noCache,
			})
			if err != nil {
				return err
			}

			return printPlan(cmd.Context(), args[0], args[1], opts)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the shard version",
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(os.Stdout, "shard %s\n", version)
		},
	}

	rootCmd.AddCommand(runCmd, planCmd, versionCmd, docsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shard: %v\n", err)
		return 1
	}
	return 0
}

func setupLogging(verbose, quiet bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

func runReplication(ctx context.Context, src, dst string, opts options, eventsFile string, quiet bool) error {
	profiler, closeCache, err := newProfiler(src, opts)
	if err != nil {
		return err
	}
	defer closeCache()

	executor, err := copyexec.NewCommandExecutor(opts.executor, slog.Default())
	if err != nil {
		return err
	}

	sinks := []event.Sink{event.NewSlogSink(slog.Default())}
	if eventsFile != "" {
		f, err := os.OpenFile(eventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open events file: %w", err)
		}
		defer f.Close()
		csvSink := event.NewCSVSink(f)
		defer csvSink.Flush()
		sinks = append(sinks, csvSink)
	}

	planner := plan.NewPlanner(profiler, slog.Default())
	o := orch.New(opts.orch, executor, event.Multi(sinks...), slog.Default())

	reporterCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	if !quiet {
		reporter := ui.NewReporter(os.Stderr, o.Snapshot, 5*time.Second)
		go reporter.Run(reporterCtx)
	}

	outcome, err := o.Run(ctx, src, dst, func(ctx context.Context) ([]*plan.Chunk, error) {
		return planner.Plan(ctx, src, dst, opts.thresholds)
	})
	if err != nil {
		return err
	}
	stopReporter()

	fmt.Fprintln(os.Stdout, ui.Summary(o.Snapshot()))

	switch outcome {
	case orch.OutcomeSuccess:
		return nil
	case orch.OutcomePartialFailure:
		return fmt.Errorf("partial failure: %d chunks failed", len(o.Failed()))
	default:
		return fmt.Errorf("total failure: every chunk failed")
	}
}

func printPlan(ctx context.Context, src, dst string, opts options) error {
	profiler, closeCache, err := newProfiler(src, opts)
	if err != nil {
		return err
	}
	defer closeCache()

	planner := plan.NewPlanner(profiler, slog.Default())
	chunks, err := planner.Plan(ctx, src, dst, opts.thresholds)
	if err != nil {
		return err
	}

	var totalBytes, totalFiles int64
	for _, c := range chunks {
		kind := "dir"
		if c.IsFilesOnly {
			kind = "files-only"
		}
		fmt.Fprintf(os.Stdout, "%4d  %-10s depth=%d  %12d bytes  %8d files  %s -> %s\n",
			c.ID, kind, c.Depth, c.EstimatedSizeBytes, c.EstimatedFileCount,
			c.SourcePath, c.DestinationPath)
		totalBytes += c.EstimatedSizeBytes
		totalFiles += c.EstimatedFileCount
	}
	fmt.Fprintf(os.Stdout, "total: %d chunks, %d bytes, %d files\n",
		len(chunks), totalBytes, totalFiles)
	return nil
}

func newProfiler(src string, opts options) (profile.Profiler, func(), error) {
	fs := profile.NewFSProfiler()
	if !opts.cacheEnabled {
		return fs, func() {}, nil
	}

	cache, err := profile.OpenCache(fs, src, opts.cacheTTL)
	if err != nil {
		// The cache is an optimization; fall back to direct profiling.
		slog.Warn("profile cache unavailable", "error", err)
		return fs, func() {}, nil
	}
	return cache, func() { cache.Close() }, nil
}

type options struct {
	thresholds   plan.Thresholds
	orch         orch.Config
	executor     copyexec.CommandConfig
	cacheEnabled bool
	cacheTTL     time.Duration
}

type cliOverrides struct {
	jobs        int
	maxRetries  int
	retryDelay  string
	jobTimeout  string
	startRate   float64
	maxSize     sizeFlag
	maxFiles    int64
	maxDepth    int
	minSize     sizeFlag
	copyCommand string
	noCache     bool
}

// sizeFlag is a pflag.Value that parses humanized byte sizes such as
// "10GiB" at flag-parse time, so bad values are rejected before any work
// starts.
type sizeFlag struct {
	bytes int64
	set   bool
}

var _ pflag.Value = (*sizeFlag)(nil)

func (s *sizeFlag) String() string {
	if !s.set {
		return ""
	}
	return humanize.IBytes(uint64(s.bytes))
}

func (s *sizeFlag) Set(v string) error {
	n, err := config.ParseSize(v)
	if err != nil {
		return err
	}
	s.bytes = n
	s.set = true
	return nil
}

func (s *sizeFlag) Type() string { return "size" }

// buildOptions layers the optional config file under explicit CLI flags.
func buildOptions(cmd *cobra.Command, cli cliOverrides) (options, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}

	opts := options{
		thresholds:   plan.DefaultThresholds(),
		orch:         orch.DefaultConfig(),
		executor:     copyexec.CommandConfig{Command: "robocopy"},
		cacheEnabled: true,
		cacheTTL:     profile.DefaultTTL,
	}

	// Config file values.
	if err := applyConfig(&opts, cfg); err != nil {
		return options{}, err
	}

	// CLI flags override the file.
	if cmd.Flags().Changed("jobs") || cli.jobs > 0 {
		opts.orch.MaxConcurrentJobs = cli.jobs
	}
	if cmd.Flags().Changed("retries") {
		opts.orch.MaxRetries = cli.maxRetries
	}
	if cli.retryDelay != "" {
		d, err := config.ParseDuration(cli.retryDelay)
		if err != nil {
			return options{}, err
		}
		opts.orch.RetryDelay = d
	}
	if cli.jobTimeout != "" {
		d, err := config.ParseDuration(cli.jobTimeout)
		if err != nil {
			return options{}, err
		}
		opts.orch.JobTimeout = d
	}
	if cli.startRate > 0 {
		opts.orch.StartRate = cli.startRate
	}
	if cli.maxSize.set {
		opts.thresholds.MaxSizeBytes = cli.maxSize.bytes
	}
	if cli.maxFiles > 0 {
		opts.thresholds.MaxFiles = cli.maxFiles
	}
	if cli.maxDepth > 0 {
		opts.thresholds.MaxDepth = cli.maxDepth
	}
	if cli.minSize.set {
		opts.thresholds.MinSizeBytes = cli.minSize.bytes
	}
	if cli.copyCommand != "" {
		opts.executor.Command = cli.copyCommand
	}
	if cli.noCache {
		opts.cacheEnabled = false
	}

	return opts, nil
}

func applyConfig(opts *options, cfg config.Config) error {
	th := cfg.Thresholds
	if th.MaxSize != nil {
		n, err := config.ParseSize(*th.MaxSize)
		if err != nil {
			return err
		}
		opts.thresholds.MaxSizeBytes = n
	}
	if th.MaxFiles != nil {
		opts.thresholds.MaxFiles = *th.MaxFiles
	}
	if th.MaxDepth != nil {
		opts.thresholds.MaxDepth = *th.MaxDepth
	}
	if th.MinSize != nil {
		n, err := config.ParseSize(*th.MinSize)
		if err != nil {
			return err
		}
		opts.thresholds.MinSizeBytes = n
	}

	oc := cfg.Orchestrator
	if oc.MaxConcurrentJobs != nil {
		opts.orch.MaxConcurrentJobs = *oc.MaxConcurrentJobs
	}
	if oc.MaxRetries != nil {
		opts.orch.MaxRetries = *oc.MaxRetries
	}
	if oc.RetryDelay != nil {
		d, err := config.ParseDuration(*oc.RetryDelay)
		if err != nil {
			return err
		}
		opts.orch.RetryDelay = d
	}
	if oc.JobTimeout != nil {
		d, err := config.ParseDuration(*oc.JobTimeout)
		if err != nil {
			return err
		}
		opts.orch.JobTimeout = d
	}
	if oc.StartRate != nil {
		opts.orch.StartRate = *oc.StartRate
	}
	if oc.BreakerThreshold != nil {
		opts.orch.Breaker.Threshold = *oc.BreakerThreshold
	}
	if oc.BreakerWindow != nil {
		d, err := config.ParseDuration(*oc.BreakerWindow)
		if err != nil {
			return err
		}
		opts.orch.Breaker.Window = d
	}
	if oc.BreakerCooldown != nil {
		d, err := config.ParseDuration(*oc.BreakerCooldown)
		if err != nil {
			return err
		}
		opts.orch.Breaker.Cooldown = d
	}

	ex := cfg.Executor
	if ex.Command != nil {
		opts.executor.Command = *ex.Command
	}
	if len(ex.Args) > 0 {
		opts.executor.BaseArgs = ex.Args
	}
	if len(ex.FilesOnlyArgs) > 0 {
		opts.executor.FilesOnlyArgs = ex.FilesOnlyArgs
	}
	if len(ex.NoReparseArgs) > 0 {
		opts.executor.NoReparseArgs = ex.NoReparseArgs
	}

	ca := cfg.Cache
	if ca.Enabled != nil {
		opts.cacheEnabled = *ca.Enabled
	}
	if ca.TTL != nil {
		d, err := config.ParseDuration(*ca.TTL)
		if err != nil {
			return err
		}
		opts.cacheTTL = d
	}

	return nil
}

package plan

// Status tracks a chunk through its lifecycle. Chunks are created Pending
// and never change again once they reach a terminal status.
type Status int

const (
	Pending Status = iota
	Running
	Complete
	CompleteWithWarnings
	Failed
)

var statusNames = [...]string{
	Pending:              "Pending",
	Running:              "Running",
	Complete:             "Complete",
	CompleteWithWarnings: "CompleteWithWarnings",
	Failed:               "Failed",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == Complete || s == CompleteWithWarnings || s == Failed
}

// CopyOption is a directive passed through to the copy executor.
type CopyOption int

const (
	// FilesOnly restricts the executor to files directly inside the source
	// directory, excluding all subdirectories.
	FilesOnly CopyOption = iota + 1
	// NoReparsePoints excludes junctions and symlinked directories to
	// avoid cycles.
	NoReparsePoints
)

func (o CopyOption) String() string {
	switch o {
	case FilesOnly:
		return "files-only"
	case NoReparsePoints:
		return "no-reparse"
	default:
		return "unknown"
	}
}

// Chunk is one bounded unit of copy work: a directory, or the loose files
// directly inside a directory whose subdirectories are separate chunks.
type Chunk struct {
	ID                 int
	SourcePath         string
	DestinationPath    string
	EstimatedSizeBytes int64
	EstimatedFileCount int64
	Depth              int
	IsFilesOnly        bool
	CopyOptions        []CopyOption
	Status             Status
	RetryCount         int
}

// HasOption reports whether the chunk carries the given copy option.
func (c *Chunk) HasOption(opt CopyOption) bool {
	for _, o := range c.CopyOptions {
		if o == opt {
			return true
		}
	}
	return false
}

const (
	defaultMaxSizeBytes = 10 << 30  // 10 GiB
	defaultMaxFiles     = 50_000
	defaultMaxDepth     = 5
	defaultMinSizeBytes = 100 << 20 // 100 MiB
)

// Thresholds bound how large a single chunk may grow before the planner
// splits it, and how deep the planner will recurse looking for splits.
type Thresholds struct {
	MaxSizeBytes int64
	MaxFiles     int64
	MaxDepth     int
	// MinSizeBytes is the size below which a directory is never split,
	// even if its file count exceeds MaxFiles.
	MinSizeBytes int64
}

// DefaultThresholds returns the stock planning thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxSizeBytes: defaultMaxSizeBytes,
		MaxFiles:     defaultMaxFiles,
		MaxDepth:     defaultMaxDepth,
		MinSizeBytes: defaultMinSizeBytes,
	}
}

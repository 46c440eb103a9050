package copyexec

// Exit code bits reported by the external copy tool. The code is a bitmask;
// several bits are usually set at once.
const (
	ExitFilesCopied = 1 << 0 // files were copied
	ExitExtras      = 1 << 1 // extra items present in the destination
	ExitMismatches  = 1 << 2 // mismatched items detected
	ExitSomeFailed  = 1 << 3 // some items failed to copy
	ExitFatal       = 1 << 4 // fatal error, no items processed
)

// Severity classifies a decoded exit code. Ordering matters: a combined
// bitmask takes the highest severity present.
type Severity int

const (
	SeveritySuccess Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

var severityNames = [...]string{
	SeveritySuccess: "Success",
	SeverityWarning: "Warning",
	SeverityError:   "Error",
	SeverityFatal:   "Fatal",
}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "Unknown"
}

// Outcome is the decoded form of an executor exit code: one severity plus
// the individual bits as named booleans. Decoding happens once at the
// orchestrator boundary; everything downstream branches on the variant
// instead of re-testing bits.
type Outcome struct {
	Severity      Severity
	FilesCopied   bool
	ExtrasPresent bool
	Mismatches    bool
	SomeFailed    bool
	Fatal         bool
}

// Retryable reports whether the outcome should be retried (bounded).
func (o Outcome) Retryable() bool {
	return o.Severity == SeverityError || o.Severity == SeverityFatal
}

// DecodeExitCode decodes the copy tool's exit bitmask.
func DecodeExitCode(code int) Outcome {
	o := Outcome{
		FilesCopied:   code&ExitFilesCopied != 0,
		ExtrasPresent: code&ExitExtras != 0,
		Mismatches:    code&ExitMismatches != 0,
		SomeFailed:    code&ExitSomeFailed != 0,
		Fatal:         code&ExitFatal != 0,
	}

	switch {
	case o.Fatal:
		o.Severity = SeverityFatal
	case o.SomeFailed:
		o.Severity = SeverityError
	case o.Mismatches:
		o.Severity = SeverityWarning
	default:
		o.Severity = SeveritySuccess
	}
	return o
}

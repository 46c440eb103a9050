package event

import (
	"log/slog"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	ChunkStarted Type = iota + 1
	ChunkCompleted
	ChunkFailed
	ProfileCompleted
)

var typeNames = [...]string{
	ChunkStarted:     "ChunkStarted",
	ChunkCompleted:   "ChunkCompleted",
	ChunkFailed:      "ChunkFailed",
	ProfileCompleted: "ProfileCompleted",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is one audit record emitted by the orchestrator: chunk start,
// chunk completion (success or warning), chunk permanent failure, or
// profile completion.
type Event struct {
	Type        Type
	Timestamp   time.Time
	ChunkID     int
	Source      string
	Destination string
	Severity    string
	FilesCopied int64
	BytesCopied int64
	Duration    time.Duration
	Retries     int
	Detail      string
}

// Sink receives events. Implementations must tolerate being called from
// the orchestrator's tick goroutine and must not block it.
type Sink interface {
	Emit(ev Event)
}

// SlogSink writes events to a structured logger.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink over the given logger.
func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) Emit(ev Event) {
	attrs := []any{
		"chunk", ev.ChunkID,
		"src", ev.Source,
		"dst", ev.Destination,
	}
	switch ev.Type {
	case ChunkStarted:
		s.log.Info("chunk started", attrs...)
	case ChunkCompleted:
		attrs = append(attrs,
			"severity", ev.Severity,
			"files", ev.FilesCopied,
			"bytes", ev.BytesCopied,
			"duration", ev.Duration,
			"retries", ev.Retries)
		s.log.Info("chunk completed", attrs...)
	case ChunkFailed:
		attrs = append(attrs,
			"severity", ev.Severity,
			"retries", ev.Retries,
			"detail", ev.Detail)
		s.log.Error("chunk failed", attrs...)
	case ProfileCompleted:
		s.log.Info("profile completed",
			"src", ev.Source,
			"dst", ev.Destination,
			"files", ev.FilesCopied,
			"bytes", ev.BytesCopied,
			"duration", ev.Duration,
			"detail", ev.Detail)
	}
}

// Multi fans events out to several sinks.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

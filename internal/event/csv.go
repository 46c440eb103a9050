package event

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{
	"timestamp", "event", "chunk_id", "source", "destination",
	"severity", "files_copied", "bytes_copied", "duration_ms", "retries", "detail",
}

// CSVSink appends events to a CSV audit file, one row per event. The
// header is written before the first row.
type CSVSink struct {
	mu     sync.Mutex
	writer *csv.Writer
	first  bool
}

// NewCSVSink creates a sink writing to dest.
func NewCSVSink(dest io.Writer) *CSVSink {
	return &CSVSink{writer: csv.NewWriter(dest), first: true}
}

func (s *CSVSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.first {
		if err := s.writer.Write(csvHeader); err != nil {
			return
		}
		s.first = false
	}

	_ = s.writer.Write([]string{
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Type.String(),
		strconv.Itoa(ev.ChunkID),
		ev.Source,
		ev.Destination,
		ev.Severity,
		strconv.FormatInt(ev.FilesCopied, 10),
		strconv.FormatInt(ev.BytesCopied, 10),
		strconv.FormatInt(ev.Duration.Milliseconds(), 10),
		strconv.Itoa(ev.Retries),
		ev.Detail,
	})
	s.writer.Flush()
}

// Flush forces buffered rows to the underlying writer and reports any
// write error.
func (s *CSVSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	return s.writer.Error()
}

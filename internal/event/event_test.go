package event

import (
	"bytes"
	"encoding/csv"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(typ Type) Event {
	return Event{
		Type:        typ,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ChunkID:     7,
		Source:      "/data/projects/alpha",
		Destination: "/backup/projects/alpha",
		Severity:    "Warning",
		FilesCopied: 120,
		BytesCopied: 4096,
		Duration:    1500 * time.Millisecond,
		Retries:     1,
		Detail:      "mismatched files",
	}
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "ChunkStarted", ChunkStarted.String())
	assert.Equal(t, "ProfileCompleted", ProfileCompleted.String())
	assert.Equal(t, "Unknown", Type(0).String())
	assert.Equal(t, "Unknown", Type(99).String())
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCSVSink(&buf)

	sink.Emit(sample(ChunkCompleted))
	sink.Emit(sample(ChunkFailed))
	require.NoError(t, sink.Flush())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "2026-03-01T12:00:00Z", rows[1][0])
	assert.Equal(t, "ChunkCompleted", rows[1][1])
	assert.Equal(t, "7", rows[1][2])
	assert.Equal(t, "/data/projects/alpha", rows[1][3])
	assert.Equal(t, "Warning", rows[1][5])
	assert.Equal(t, "120", rows[1][6])
	assert.Equal(t, "4096", rows[1][7])
	assert.Equal(t, "1500", rows[1][8])
	assert.Equal(t, "1", rows[1][9])
	assert.Equal(t, "mismatched files", rows[1][10])
	assert.Equal(t, "ChunkFailed", rows[2][1])
}

func TestCSVSink_HeaderWrittenOnce(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCSVSink(&buf)
	sink.Emit(sample(ChunkStarted))
	sink.Emit(sample(ChunkStarted))
	require.NoError(t, sink.Flush())

	assert.Equal(t, 1, strings.Count(buf.String(), "timestamp,event"))
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	sink := NewSlogSink(log)

	sink.Emit(sample(ChunkStarted))
	sink.Emit(sample(ChunkCompleted))
	sink.Emit(sample(ChunkFailed))
	sink.Emit(sample(ProfileCompleted))

	out := buf.String()
	assert.Contains(t, out, "chunk started")
	assert.Contains(t, out, "chunk completed")
	assert.Contains(t, out, "chunk failed")
	assert.Contains(t, out, "profile completed")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "chunk=7")
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	sink := Multi(NewCSVSink(&a), NewCSVSink(&b))
	sink.Emit(sample(ChunkCompleted))

	assert.Contains(t, a.String(), "ChunkCompleted")
	assert.Contains(t, b.String(), "ChunkCompleted")
}

func TestMulti_EmptyIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { Multi().Emit(sample(ChunkStarted)) })
}

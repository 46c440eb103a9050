package ui

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/shard/internal/orch"
)

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "--"},
		{-time.Second, "--"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 5*time.Minute + 3*time.Second, "1h 05m 03s"},
		{26 * time.Hour, "26h 00m 00s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatETA(tt.in), tt.in.String())
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 B/s"},
		{-5, "0 B/s"},
		{8, "8.00 B/s"},
		{512, "512.0 B/s"},
		{2048, "2.00 KiB/s"},
		{150 * 1024 * 1024, "150.0 MiB/s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRate(tt.in))
	}
}

func TestSummary(t *testing.T) {
	s := orch.Snapshot{
		Phase:          orch.Complete,
		ChunksTotal:    10,
		ChunksComplete: 9,
		ChunksFailed:   1,
		BytesComplete:  1 << 30,
		Elapsed:        90 * time.Second,
	}
	assert.Equal(t, "Complete: 9/10 chunks, 1 failed, 1.0 GiB in 1m30s", Summary(s))
}

func TestReporter_PrintsProgressAndStopsOnTerminal(t *testing.T) {
	snaps := []orch.Snapshot{
		{Phase: orch.Replicating, BytesTotal: 1000, BytesComplete: 500, ChunksTotal: 4, ChunksComplete: 2},
		{Phase: orch.Complete},
	}
	i := 0
	source := func() orch.Snapshot {
		s := snaps[min(i, len(snaps)-1)]
		i++
		return s
	}

	var buf bytes.Buffer
	r := NewReporter(&buf, source, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reporter did not stop on terminal phase")
	}

	out := buf.String()
	assert.Contains(t, out, "phase: Replicating")
	assert.Contains(t, out, "progress:  50%")
	assert.Contains(t, out, "chunks 2/4")
	assert.Contains(t, out, "phase: Complete")
}

func TestReporter_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	r := NewReporter(&buf, func() orch.Snapshot { return orch.Snapshot{} }, time.Millisecond)
	r.Run(ctx) // returns immediately
}

package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks replication progress using lock-free atomic counters.
// Byte figures are planner estimates plus live in-flight progress; they
// feed the display and ETA only.
type Collector struct {
	chunksTotal    atomic.Int64
	chunksComplete atomic.Int64
	chunksFailed   atomic.Int64
	retries        atomic.Int64
	bytesTotal     atomic.Int64
	bytesComplete  atomic.Int64
	startTime      time.Time

	// Ring buffer for rolling throughput. Written only by the
	// orchestrator's tick, never concurrently.
	mu         sync.Mutex
	throughput [ringSize]int64 // bytes/sec per sample
	ringIdx    int
	ringCount  int
	lastBytes  int64
	lastSample time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	now := time.Now()
	return &Collector{startTime: now, lastSample: now}
}

// SetTotals records planning totals (called once after planning).
func (c *Collector) SetTotals(chunks, bytes int64) {
	c.chunksTotal.Store(chunks)
	c.bytesTotal.Store(bytes)
}

// SetBytesComplete overwrites the completed-bytes figure. The orchestrator
// recomputes it every tick from completed chunks plus in-flight progress.
func (c *Collector) SetBytesComplete(n int64) { c.bytesComplete.Store(n) }

func (c *Collector) AddChunksComplete(n int64) { c.chunksComplete.Add(n) }
func (c *Collector) AddChunksFailed(n int64)   { c.chunksFailed.Add(n) }
func (c *Collector) AddRetries(n int64)        { c.retries.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	ChunksTotal    int64
	ChunksComplete int64
	ChunksFailed   int64
	Retries        int64
	BytesTotal     int64
	BytesComplete  int64
	Elapsed        time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ChunksTotal:    c.chunksTotal.Load(),
		ChunksComplete: c.chunksComplete.Load(),
		ChunksFailed:   c.chunksFailed.Load(),
		Retries:        c.retries.Load(),
		BytesTotal:     c.bytesTotal.Load(),
		BytesComplete:  c.bytesComplete.Load(),
		Elapsed:        c.Elapsed(),
	}
}

// Tick samples the byte delta into the ring buffer. Called once per
// orchestrator tick.
func (c *Collector) Tick() {
	current := c.bytesComplete.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(c.lastSample).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	delta := current - c.lastBytes
	if delta < 0 {
		delta = 0 // estimate replaced live progress when a chunk was reaped
	}
	c.lastBytes = current
	c.lastSample = now

	c.throughput[c.ringIdx] = int64(float64(delta) / elapsed)
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n samples.
func (c *Collector) RollingSpeed(n int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := n
	if count > c.ringCount {
		count = c.ringCount
	}
	if count == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < count; i++ {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates remaining time from the rolling speed and remaining bytes.
// A trailing-window average keeps it responsive to changing conditions.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesComplete.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"chunks=%d/%d failed=%d retries=%d bytes=%d/%d",
		s.ChunksComplete, s.ChunksTotal, s.ChunksFailed, s.Retries,
		s.BytesComplete, s.BytesTotal,
	)
}

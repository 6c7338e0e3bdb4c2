package metrics

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot is a point-in-time view of survey counters and process usage
type Snapshot struct {
	Attempts   int64
	Retries    int64
	Failures   int64
	Chunks     int64
	Buildings  int64
	ProcessCPU float64 // percent of one core, can exceed 100
	RSSMB      float64
	Timestamp  time.Time
}

// Collector counts upstream activity and periodically logs it together
// with process CPU and memory
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	attempts  atomic.Int64
	retries   atomic.Int64
	failures  atomic.Int64
	chunks    atomic.Int64
	buildings atomic.Int64

	mu   sync.RWMutex
	last *Snapshot
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	// Missing process handle only disables CPU/RSS figures
	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// ObserveAttempt records one upstream request. Attempts after the first
// are retries; a non-nil err is a failed attempt.
func (c *Collector) ObserveAttempt(attempt int, err error) {
	c.attempts.Add(1)
	if attempt > 0 {
		c.retries.Add(1)
	}
	if err != nil {
		c.failures.Add(1)
	}
}

// ChunkDone records a completed chunk and the buildings it produced
func (c *Collector) ChunkDone(buildings int) {
	c.chunks.Add(1)
	c.buildings.Add(int64(buildings))
}

// Start logs a snapshot every interval until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.Log()
		}
	}
}

// Log collects a snapshot and writes it to the logger
func (c *Collector) Log() {
	s := c.Collect()
	c.logger.Info("Survey metrics",
		zap.Int64("attempts", s.Attempts),
		zap.Int64("retries", s.Retries),
		zap.Int64("failures", s.Failures),
		zap.Int64("chunks", s.Chunks),
		zap.Int64("buildings", s.Buildings),
		zap.Float64("proc_cpu", s.ProcessCPU),
		zap.Float64("rss_mb", s.RSSMB),
	)
}

// Collect takes a snapshot and remembers it as the latest
func (c *Collector) Collect() Snapshot {
	s := Snapshot{
		Attempts:  c.attempts.Load(),
		Retries:   c.retries.Load(),
		Failures:  c.failures.Load(),
		Chunks:    c.chunks.Load(),
		Buildings: c.buildings.Load(),
		Timestamp: time.Now(),
	}

	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPU = pct
		}
		if mem, err := c.proc.MemoryInfo(); err == nil && mem != nil {
			s.RSSMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	c.mu.Lock()
	c.last = &s
	c.mu.Unlock()

	return s
}

// Last returns the most recent snapshot, nil before the first collection
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

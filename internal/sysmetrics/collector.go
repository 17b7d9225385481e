// Package sysmetrics samples process runtime statistics into the metric
// registry so alert rules can bind to host-process health.
package sysmetrics

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/ashita-ai/kanshi/internal/metrics"
)

// Collector periodically records goroutine, heap, and GC gauges.
type Collector struct {
	reg      *metrics.Registry
	logger   *slog.Logger
	interval time.Duration
	started  time.Time

	cancelLoop context.CancelFunc
	done       chan struct{}
}

// NewCollector creates a collector sampling on the given interval.
func NewCollector(reg *metrics.Registry, logger *slog.Logger, interval time.Duration) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		reg:      reg,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start samples once immediately, then on every interval tick until Stop.
func (c *Collector) Start(ctx context.Context) {
	c.started = time.Now()
	c.SampleOnce()
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancelLoop = cancel
	go c.loop(loopCtx)
}

// Stop halts the sampling loop, bounded by ctx.
func (c *Collector) Stop(ctx context.Context) error {
	if c.cancelLoop == nil {
		return nil
	}
	c.cancelLoop()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sysmetrics: stop: %w", ctx.Err())
	}
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SampleOnce()
		}
	}
}

// SampleOnce records the current process gauges.
func (c *Collector) SampleOnce() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	c.reg.SetGauge("process_goroutines", float64(runtime.NumGoroutine()), nil)
	c.reg.SetGauge("process_heap_alloc_bytes", float64(ms.HeapAlloc), nil)
	c.reg.SetGauge("process_heap_sys_bytes", float64(ms.HeapSys), nil)
	c.reg.SetGauge("process_gc_cycles", float64(ms.NumGC), nil)
	if !c.started.IsZero() {
		c.reg.SetGauge("process_uptime_seconds", time.Since(c.started).Seconds(), nil)
	}
}

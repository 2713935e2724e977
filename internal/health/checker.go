// Package health tracks the reachability of the service's dependencies.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int // consecutive failures before a dependency is down
}

// Probe reports whether one dependency is reachable.
type Probe func(ctx context.Context) error

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(dependency string, success bool)

// Checker probes registered dependencies periodically. A dependency counts
// as down once it has failed FailThreshold probes in a row.
type Checker struct {
	mu         sync.Mutex
	probes     map[string]Probe
	failCounts map[string]int
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Checker with no dependencies.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 15 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 2
	}
	return &Checker{
		probes:     make(map[string]Probe),
		failCounts: make(map[string]int),
		cfg:        cfg,
		logger:     logger,
	}
}

// Register adds a named dependency. It starts out up.
func (c *Checker) Register(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
	c.failCounts[name] = 0
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// Start runs CheckAll every CheckInterval until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll probes every dependency once, concurrently.
func (c *Checker) CheckAll(ctx context.Context) {
	c.mu.Lock()
	probes := make(map[string]Probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for name, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
			err := p(pctx)
			cancel()
			c.record(name, err)
		}()
	}
	wg.Wait()
}

func (c *Checker) record(name string, err error) {
	if c.onMetrics != nil {
		c.onMetrics(name, err == nil)
	}

	c.mu.Lock()
	prev := c.failCounts[name]
	if err == nil {
		c.failCounts[name] = 0
	} else {
		c.failCounts[name]++
	}
	count := c.failCounts[name]
	c.mu.Unlock()

	switch {
	case err == nil && prev >= c.cfg.FailThreshold:
		c.logger.Info("health: recovered", zap.String("dependency", name))
	case err != nil && count == c.cfg.FailThreshold:
		c.logger.Warn("health: down",
			zap.String("dependency", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	}
}

// Status maps each dependency to "up" or "down".
func (c *Checker) Status() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.failCounts))
	for name, n := range c.failCounts {
		if n >= c.cfg.FailThreshold {
			out[name] = "down"
		} else {
			out[name] = "up"
		}
	}
	return out
}

// Down lists the dependencies currently down, sorted.
func (c *Checker) Down() []string {
	var down []string
	for name, s := range c.Status() {
		if s == "down" {
			down = append(down, name)
		}
	}
	sort.Strings(down)
	return down
}

// Ready reports whether every dependency is up.
func (c *Checker) Ready() bool {
	return len(c.Down()) == 0
}

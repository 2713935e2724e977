package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type flakyProbe struct {
	mu  sync.Mutex
	err error
}

func (f *flakyProbe) set(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *flakyProbe) probe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestChecker_startsReady(t *testing.T) {
	c := New(Config{}, zap.NewNop())
	c.Register("postgres", func(context.Context) error { return nil })
	if !c.Ready() {
		t.Error("expected ready before any probe")
	}
}

func TestChecker_downAfterThreshold(t *testing.T) {
	ctx := context.Background()
	p := &flakyProbe{err: errors.New("refused")}
	c := New(Config{FailThreshold: 2}, zap.NewNop())
	c.Register("redis", p.probe)

	c.CheckAll(ctx)
	if !c.Ready() {
		t.Fatal("one failure should not mark the dependency down")
	}
	c.CheckAll(ctx)
	if c.Ready() {
		t.Fatal("expected not ready after two failures")
	}
	if down := c.Down(); len(down) != 1 || down[0] != "redis" {
		t.Errorf("Down: %v", down)
	}

	p.set(nil)
	c.CheckAll(ctx)
	if !c.Ready() {
		t.Error("expected recovery after a successful probe")
	}
}

func TestChecker_probeTimeout(t *testing.T) {
	c := New(Config{ProbeTimeout: 10 * time.Millisecond, FailThreshold: 1}, zap.NewNop())
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.CheckAll(context.Background())
	if c.Status()["slow"] != "down" {
		t.Errorf("status: %v", c.Status())
	}
}

func TestChecker_metricsCallback(t *testing.T) {
	var mu sync.Mutex
	results := make(map[string]bool)
	c := New(Config{}, zap.NewNop())
	c.SetMetricsRecord(func(dep string, ok bool) {
		mu.Lock()
		results[dep] = ok
		mu.Unlock()
	})
	c.Register("a", func(context.Context) error { return nil })
	c.Register("b", func(context.Context) error { return errors.New("x") })
	c.CheckAll(context.Background())

	if !results["a"] || results["b"] {
		t.Errorf("results: %v", results)
	}
}

func TestChecker_startStopsOnCancel(t *testing.T) {
	c := New(Config{CheckInterval: time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

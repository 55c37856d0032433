package playback

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

// fakeClock records requested sleeps and returns immediately. When cancelAt
// is positive it cancels the bound context on that sleep call.
type fakeClock struct {
	mu       sync.Mutex
	sleeps   []time.Duration
	cancelAt int
	cancel   context.CancelFunc
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	c.mu.Unlock()
	if c.cancelAt > 0 && n == c.cancelAt && c.cancel != nil {
		c.cancel()
	}
	return ctx.Err()
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

func TestScale(t *testing.T) {
	if got := Scale(1200, 1); got != 1200*time.Millisecond {
		t.Errorf("expected 1.2s, got %v", got)
	}
	if got := Scale(1200, 2); got != 600*time.Millisecond {
		t.Errorf("expected 600ms, got %v", got)
	}
	if got := Scale(400, 0); got != 400*time.Millisecond {
		t.Errorf("non-positive speed should fall back to 1, got %v", got)
	}
	for _, speed := range []float64{math.NaN(), math.Inf(1)} {
		if got := Scale(400, speed); got != 400*time.Millisecond {
			t.Errorf("speed %v should fall back to 1, got %v", speed, got)
		}
	}
}

func TestValidSpeed(t *testing.T) {
	for _, speed := range []float64{0.25, 1, 16} {
		if !ValidSpeed(speed) {
			t.Errorf("%v should be valid", speed)
		}
	}
	for _, speed := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if ValidSpeed(speed) {
			t.Errorf("%v should be invalid", speed)
		}
	}
}

func TestRealClockSleeps(t *testing.T) {
	start := time.Now()
	if err := (RealClock{}).Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected at least 20ms, got %v", elapsed)
	}
}

func TestRealClockCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := (RealClock{}).Sleep(ctx, 5*time.Second)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleep should return promptly on cancellation")
	}
}

func TestRealClockAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (RealClock{}).Sleep(ctx, 0); err == nil {
		t.Error("expected error for cancelled context")
	}
}

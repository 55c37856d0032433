package playback

import (
	"context"
	"math"
	"time"
)

// Clock suspends the calling goroutine. Sleep must return early with the
// context's error once ctx is done and must not leave a timer running.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock sleeps on wall-clock time.
type RealClock struct{}

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

// ValidSpeed reports whether f is a positive, finite speed factor.
func ValidSpeed(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}

// Scale converts a delay modeled in milliseconds at speed 1 into the wall
// duration at the given speed factor. Invalid factors count as 1.
func Scale(ms float64, speed float64) time.Duration {
	if !ValidSpeed(speed) {
		speed = 1
	}
	return time.Duration(ms / speed * float64(time.Millisecond))
}

package pool

import (
	"context"
	"sync"
	"time"
)

var timerPool = sync.Pool{}

// GetTimer returns a stopped-and-drained pooled timer reset to d.
// Callers must hand it back with ReleaseTimer.
func GetTimer(d time.Duration) *time.Timer {
	timer, ok := timerPool.Get().(*time.Timer)
	if !ok {
		return time.NewTimer(d)
	}
	stopAndDrain(timer)
	timer.Reset(d)
	return timer
}

// ReleaseTimer stops timer and returns it to the pool.
func ReleaseTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	stopAndDrain(timer)
	timerPool.Put(timer)
}

// Sleep pauses for d using a pooled timer. It returns ctx.Err() if ctx
// is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := GetTimer(d)
	defer ReleaseTimer(timer)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func stopAndDrain(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

package pool

import (
	"context"
	"testing"
	"time"
)

func TestSleep(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	if err := Sleep(ctx, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if el := time.Since(start); el < 20*time.Millisecond {
		t.Fatalf("returned after %s", el)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestTimerReuse(t *testing.T) {
	for i := 0; i < 8; i++ {
		timer := GetTimer(time.Millisecond)
		<-timer.C
		ReleaseTimer(timer)
	}
	timer := GetTimer(time.Hour)
	select {
	case <-timer.C:
		t.Fatal("reused timer fired early")
	default:
	}
	ReleaseTimer(timer)
	ReleaseTimer(nil)
}

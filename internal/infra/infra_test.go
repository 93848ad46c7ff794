package infra

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{6, 60 * time.Second},
		{100, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.retryCount); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestRateLimiterBurst(t *testing.T) {
	limiter := NewRateLimiter(3, 1)

	for i := 0; i < 3; i++ {
		if !limiter.TryAcquire() {
			t.Fatalf("acquire %d should succeed within the burst", i)
		}
	}
	if limiter.TryAcquire() {
		t.Error("acquire beyond the burst should fail")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := NewRateLimiter(1, 100)

	if !limiter.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	time.Sleep(50 * time.Millisecond)
	if !limiter.TryAcquire() {
		t.Error("token should refill at 100/s")
	}
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	limiter := NewRateLimiter(1, 0.001)
	limiter.TryAcquire() // drain

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("wait should fail once the context expires")
	}
}

func TestPeriodicTaskSkipsOverlappingRuns(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})

	task := NewPeriodicTask("test", 10*time.Millisecond, func(ctx context.Context) {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx, true)

	// Several ticks pass while the first run is blocked; none may stack.
	time.Sleep(60 * time.Millisecond)
	if got := started.Load(); got != 1 {
		t.Errorf("%d runs started while one was in flight, want 1", got)
	}

	close(release)
	task.Stop()
}

func TestPeriodicTaskRunsOnInterval(t *testing.T) {
	var runs atomic.Int32
	task := NewPeriodicTask("test", 10*time.Millisecond, func(context.Context) {
		runs.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Start(ctx, true)

	time.Sleep(45 * time.Millisecond)
	task.Stop()

	if got := runs.Load(); got < 2 {
		t.Errorf("expected repeated runs, got %d", got)
	}

	// No further runs after Stop.
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Error("task kept running after Stop")
	}
}

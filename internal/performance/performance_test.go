package performance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// BenchmarkWorkerPoolForEach benchmarks chunked fan-out over the pool.
func BenchmarkWorkerPoolForEach(b *testing.B) {
	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	sink := make([]float64, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pool.ForEach(ctx, len(sink), func(j int) {
			sink[j] += float64(j)
		})
	}
}

// BenchmarkRateLimiter benchmarks the rate limiter.
func BenchmarkRateLimiter(b *testing.B) {
	limiter := NewRateLimiter(10000, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow()
	}
}

func TestWorkerPoolForEach(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	seen := make([]int32, 1000)
	if err := pool.ForEach(context.Background(), len(seen), func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	for i, n := range seen {
		if n != 1 {
			t.Fatalf("index %d ran %d times", i, n)
		}
	}

	stats := pool.Stats()
	if stats.TasksTotal != 1000 || stats.Workers != 4 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWorkerPoolForEachCancelled(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Int64
	err := pool.ForEach(ctx, 10000, func(i int) {
		if ran.Add(1) == 10 {
			cancel()
		}
		time.Sleep(10 * time.Microsecond)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ran.Load() >= 10000 {
		t.Errorf("every task ran despite cancellation")
	}
}

func TestWorkerPoolStopped(t *testing.T) {
	pool := NewWorkerPool(1)
	if pool.Submit(func() {}) {
		t.Error("submit to an unstarted pool succeeded")
	}
	if err := pool.SubmitCtx(context.Background(), func() {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("SubmitCtx err = %v", err)
	}

	pool.Start()
	var wg sync.WaitGroup
	wg.Add(1)
	if !pool.Submit(wg.Done) {
		t.Fatal("submit to a running pool failed")
	}
	wg.Wait()
	pool.Stop()
	pool.Stop()

	if pool.Stats().Running {
		t.Error("pool still running after Stop")
	}
}

func TestWorkerPoolStopDuringForEach(t *testing.T) {
	for round := 0; round < 50; round++ {
		pool := NewWorkerPool(2)
		pool.Start()

		var ran atomic.Int64
		done := make(chan error, 1)
		go func() {
			done <- pool.ForEach(context.Background(), 500, func(int) { ran.Add(1) })
		}()
		pool.Stop()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, ErrPoolStopped) {
				t.Fatalf("round %d: ForEach err = %v", round, err)
			}
			if err == nil && ran.Load() != 500 {
				t.Fatalf("round %d: ran %d of 500 without error", round, ran.Load())
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: ForEach still waiting after Stop", round)
		}
	}
}

func TestRateLimiterRefill(t *testing.T) {
	now := time.Unix(0, 0)
	limiter := NewRateLimiter(10, 3)
	limiter.now = func() time.Time { return now }
	limiter.lastUpdate = now

	allowed := 0
	for i := 0; i < 5; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("burst allowed %d, want 3", allowed)
	}

	now = now.Add(200 * time.Millisecond)
	if !limiter.Allow() || !limiter.Allow() {
		t.Error("expected two tokens after 200ms at 10/s")
	}
	if limiter.Allow() {
		t.Error("expected the bucket to be empty")
	}
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait err = %v", err)
	}
}

func TestBatchProcessor(t *testing.T) {
	var batches [][]int

	processor := NewBatchProcessor(5, func(items []int) error {
		batches = append(batches, items)
		return nil
	})

	for i := 0; i < 12; i++ {
		if err := processor.Add(i); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := processor.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[0]) != 5 || len(batches[2]) != 2 {
		t.Errorf("batch sizes %d/%d/%d", len(batches[0]), len(batches[1]), len(batches[2]))
	}
	// Batches handed out earlier must not be overwritten by later adds.
	if batches[0][0] != 0 || batches[1][0] != 5 || batches[2][1] != 11 {
		t.Errorf("batches = %v", batches)
	}
}

func TestObjectPool(t *testing.T) {
	pool := NewObjectPool(func() []float64 { return make([]float64, 0, 16) })
	buf := pool.Get()
	if cap(buf) != 16 {
		t.Errorf("cap = %d", cap(buf))
	}
	pool.Put(buf[:0])
}

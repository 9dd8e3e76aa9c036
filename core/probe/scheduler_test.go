package probe

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func feed(chunks ...[]string) <-chan []string {
	ch := make(chan []string, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestSchedulerProbesEachAddressOnce(t *testing.T) {
	var calls atomic.Int64
	sched := NewScheduler(10, 100, nil, func(ctx context.Context, addr string) Result {
		calls.Add(1)
		return Result{Address: addr, Live: true, Latency: time.Millisecond}
	})

	// 1.1.1.1 repeats across chunks and must be probed once
	out := sched.Scan(context.Background(),
		feed([]string{"1.1.1.1", "1.1.1.2"}, []string{"1.1.1.1", "1.1.1.3"}))

	var results []Result
	for r := range out {
		results = append(results, r)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if calls.Load() != 3 {
		t.Fatalf("probe called %d times, want 3", calls.Load())
	}
}

func TestSchedulerConcurrencyCap(t *testing.T) {
	const limit = 5
	var running, peak atomic.Int64

	sched := NewScheduler(limit, 100, nil, func(ctx context.Context, addr string) Result {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return Result{Address: addr}
	})

	var addrs []string
	for i := 0; i < 50; i++ {
		addrs = append(addrs, fmt.Sprintf("10.0.0.%d", i+1))
	}
	out := sched.Scan(context.Background(), feed(addrs))
	count := 0
	for range out {
		count++
	}
	if count != 50 {
		t.Fatalf("got %d results, want 50", count)
	}
	if peak.Load() > limit {
		t.Fatalf("peak concurrency %d exceeds cap %d", peak.Load(), limit)
	}
}

func TestSchedulerPauseHoldsResults(t *testing.T) {
	gate := NewGate()
	sched := NewScheduler(4, 10, gate, func(ctx context.Context, addr string) Result {
		return Result{Address: addr, Live: true}
	})

	gate.Pause()
	out := sched.Scan(context.Background(), feed([]string{"1.1.1.1", "1.1.1.2"}))

	select {
	case r := <-out:
		t.Fatalf("result %v delivered while paused", r)
	case <-time.After(100 * time.Millisecond):
	}

	gate.Resume()
	count := 0
	for range out {
		count++
	}
	if count != 2 {
		t.Fatalf("got %d results after resume, want 2", count)
	}
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	sched := NewScheduler(2, 10, nil, func(ctx context.Context, addr string) Result {
		if addr == "1.1.1.2" {
			panic("broken candidate")
		}
		return Result{Address: addr, Live: true}
	})

	out := sched.Scan(context.Background(), feed([]string{"1.1.1.1", "1.1.1.2", "1.1.1.3"}))
	live := 0
	total := 0
	for r := range out {
		total++
		if r.Live {
			live++
		}
	}
	if total != 3 {
		t.Fatalf("got %d results, want 3", total)
	}
	if live != 2 {
		t.Fatalf("got %d live results, want 2", live)
	}
}

func TestSchedulerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sched := NewScheduler(2, 4, nil, func(ctx context.Context, addr string) Result {
		<-ctx.Done()
		return Result{Address: addr}
	})

	chunks := make(chan []string)
	out := sched.Scan(ctx, chunks)
	chunks <- []string{"1.1.1.1", "1.1.1.2"}
	cancel()
	close(chunks)

	done := make(chan struct{})
	go func() {
		for range out {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not shut down after cancellation")
	}
}

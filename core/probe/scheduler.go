package probe

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/projectdiscovery/gologger"
	"golang.org/x/sync/semaphore"
)

// ProbeFunc performs one probe. The scheduler only cares about the result,
// not how it was produced, which keeps it testable without a network.
type ProbeFunc func(ctx context.Context, addr string) Result

// Scheduler drains address chunks through a bounded set of concurrent
// probes. Results come out in completion order.
type Scheduler struct {
	probe     ProbeFunc
	gate      *Gate
	active    *semaphore.Weighted // concurrently running probes
	inflight  *semaphore.Weighted // admitted but unfinished addresses
	seen      *cache.Cache        // suppresses duplicates from overlapping ranges
	chunkSize int
}

func NewScheduler(concurrency, chunkSize int, gate *Gate, probe ProbeFunc) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if gate == nil {
		gate = NewGate()
	}
	return &Scheduler{
		probe:     probe,
		gate:      gate,
		active:    semaphore.NewWeighted(int64(concurrency)),
		inflight:  semaphore.NewWeighted(int64(chunkSize)),
		seen:      cache.New(30*time.Minute, 10*time.Minute),
		chunkSize: chunkSize,
	}
}

// Scan consumes chunks until the stream closes or ctx is cancelled. At most
// one chunk's worth of addresses is admitted at a time: pulling the next
// chunk waits for completions, so backpressure reaches the generator.
func (s *Scheduler) Scan(ctx context.Context, chunks <-chan []string) <-chan Result {
	out := make(chan Result, s.chunkSize)

	go func() {
		defer close(out)
		var wg sync.WaitGroup

		for chunk := range chunks {
			// checkpoint: no new chunk while paused
			if err := s.gate.Wait(ctx); err != nil {
				break
			}
			for _, addr := range chunk {
				if _, dup := s.seen.Get(addr); dup {
					continue
				}
				s.seen.Set(addr, struct{}{}, cache.DefaultExpiration)

				if err := s.inflight.Acquire(ctx, 1); err != nil {
					wg.Wait()
					return
				}
				wg.Add(1)
				go func(addr string) {
					defer wg.Done()
					defer s.inflight.Release(1)
					s.runOne(ctx, addr, out)
				}(addr)
			}
		}
		wg.Wait()
	}()

	return out
}

func (s *Scheduler) runOne(ctx context.Context, addr string, out chan<- Result) {
	// checkpoint: no new probe while paused
	if err := s.gate.Wait(ctx); err != nil {
		return
	}
	if err := s.active.Acquire(ctx, 1); err != nil {
		return
	}
	res := s.safeProbe(ctx, addr)
	s.active.Release(1)

	// checkpoint: completed results are held back while paused
	if err := s.gate.Wait(ctx); err != nil {
		return
	}
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

// safeProbe converts a panicking probe into a not-live result; one broken
// candidate never takes the scan down.
func (s *Scheduler) safeProbe(ctx context.Context, addr string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			gologger.Error().Msgf("probe %s crashed: %v", addr, r)
			res = Result{Address: addr}
		}
	}()
	return s.probe(ctx, addr)
}

// Package engine owns a whole scan: streaming addresses, probing them,
// ranking results and validating candidates. It is fully headless; any
// front end works off snapshots and callbacks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/projectdiscovery/gologger"
	"golang.org/x/sync/errgroup"

	"slipscan/core/cidr"
	"slipscan/core/probe"
	"slipscan/core/rank"
	"slipscan/core/result"
	"slipscan/core/slipstream"
)

// Config carries everything a scan needs up front.
type Config struct {
	SubnetFile string
	Domain     string
	RecordType string
	Chunk      int
	Threads    int

	RandomSub  bool
	Slipstream bool

	ProxyThreads     int
	PortPoolSize     int
	BasePort         int
	FallbackResolver string
	TestURL          string
	ClientDir        string

	OutputDir string
	SaveJSON  bool
}

// Callbacks let a front end follow the scan without touching engine state.
// All of them may be nil.
type Callbacks struct {
	OnFound    func(addr string, latency time.Duration)
	OnProxy    func(addr string, passed bool)
	OnDownload slipstream.Progress
}

// Snapshot is an immutable view of a running or finished scan.
type Snapshot struct {
	EstimatedTotal int64 // display-only estimate, 254 per input line
	Scanned        int64
	Found          int64
	Passed         int64
	FailedProxy    int64
	Elapsed        time.Duration
	Speed          float64 // addresses per second
	Paused         bool
	Records        []rank.Record
}

type Engine struct {
	cfg Config
	cb  Callbacks

	table *rank.Table
	gate  *probe.Gate
	mgr   *slipstream.Manager

	ranges []cidr.Range
	qtype  uint16

	estimated atomic.Int64
	scanned   atomic.Int64
	passed    atomic.Int64
	failed    atomic.Int64

	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config, cb Callbacks) *Engine {
	if cfg.Chunk <= 0 {
		cfg.Chunk = cidr.DefaultChunkSize
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 100
	}
	if cfg.ProxyThreads <= 0 {
		cfg.ProxyThreads = 3
	}
	if cfg.PortPoolSize <= 0 {
		cfg.PortPoolSize = 3
	}
	return &Engine{
		cfg:   cfg,
		cb:    cb,
		table: rank.NewTable(),
		gate:  probe.NewGate(),
		mgr:   slipstream.NewManager(cfg.ClientDir),
	}
}

// Start performs pipeline setup synchronously, then runs the scan in the
// background. Setup failures (unreadable file, zero ranges, missing and
// undownloadable client) surface here; per-address failures never do.
func (e *Engine) Start(ctx context.Context) error {
	qtype, err := probe.RecordType(e.cfg.RecordType)
	if err != nil {
		return err
	}
	e.qtype = qtype

	ranges, err := cidr.Load(e.cfg.SubnetFile)
	if err != nil {
		return err
	}
	e.ranges = ranges
	e.estimated.Store(int64(len(ranges)) * 254)

	if e.cfg.Slipstream && !e.mgr.Installed() {
		gologger.Info().Msgf("slipstream client not found, downloading")
		if err := e.mgr.Download(ctx, e.cb.OnDownload); err != nil {
			return fmt.Errorf("slipstream client unavailable: %w", err)
		}
		gologger.Info().Msgf("slipstream client downloaded")
	}

	// fresh state per scan
	e.table.Reset()
	e.scanned.Store(0)
	e.passed.Store(0)
	e.failed.Store(0)
	e.started = time.Now()
	e.done = make(chan struct{})

	ctx, e.cancel = context.WithCancel(ctx)
	go e.run(ctx)
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	defer e.cancel()

	chunks := cidr.Stream(ctx, e.ranges, e.cfg.Chunk)

	prober := probe.NewProber(probe.DefaultTimeout)
	q := probe.Query{Domain: e.cfg.Domain, Type: e.qtype, RandomSub: e.cfg.RandomSub}
	sched := probe.NewScheduler(e.cfg.Threads, e.cfg.Chunk, e.gate,
		func(ctx context.Context, addr string) probe.Result {
			return prober.Probe(ctx, addr, q)
		})

	var validator *slipstream.Validator
	if e.cfg.Slipstream {
		validator = slipstream.NewValidator(e.mgr,
			e.cfg.ProxyThreads, e.cfg.BasePort, e.cfg.PortPoolSize,
			e.cfg.Domain, e.cfg.FallbackResolver, e.cfg.TestURL)
	}

	// every validation task is awaited before the scan finishes
	var tasks errgroup.Group

	for res := range sched.Scan(ctx, chunks) {
		e.scanned.Add(1)
		if !res.Live {
			continue
		}
		if !e.table.Insert(res.Address, res.Latency) {
			continue
		}
		if e.cb.OnFound != nil {
			e.cb.OnFound(res.Address, res.Latency)
		}
		if validator == nil {
			continue
		}

		addr := res.Address
		e.table.SetProxyStatus(addr, rank.ProxyPending)
		tasks.Go(func() error {
			passed := validator.Validate(ctx, addr, func() {
				e.table.SetProxyStatus(addr, rank.ProxyTesting)
			})
			if passed {
				e.table.SetProxyStatus(addr, rank.ProxySuccess)
				e.passed.Add(1)
			} else {
				e.table.SetProxyStatus(addr, rank.ProxyFailed)
				e.failed.Add(1)
			}
			if e.cb.OnProxy != nil {
				e.cb.OnProxy(addr, passed)
			}
			return nil
		})
	}

	tasks.Wait()
	e.table.Rebuild()

	if ctx.Err() != nil {
		gologger.Info().Msgf("scan cancelled after %d addresses", e.scanned.Load())
		return
	}
	gologger.Info().Msgf("scan complete: scanned %d, found %d", e.scanned.Load(), e.table.Len())

	if _, err := e.Save(); err != nil {
		if errors.Is(err, result.ErrNothingToSave) {
			gologger.Warning().Msgf("nothing to save")
		} else {
			gologger.Error().Msgf("auto-save failed: %v", err)
		}
	}
}

// Save writes the result files for the current table state.
func (e *Engine) Save() ([]string, error) {
	records := e.table.Rebuild()
	meta := result.Meta{
		Domain:         e.cfg.Domain,
		RecordType:     e.cfg.RecordType,
		SlipstreamTest: e.cfg.Slipstream,
		TotalFound:     len(records),
		TotalPassed:    int(e.passed.Load()),
		ElapsedSeconds: time.Since(e.started).Seconds(),
		ScanID:         result.Fingerprint(e.cfg.SubnetFile),
	}
	paths, err := result.Save(e.cfg.OutputDir, meta, records, e.cfg.Slipstream, e.cfg.SaveJSON)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		gologger.Info().Msgf("results saved to %s", p)
	}
	return paths, nil
}

// Pause blocks new probes and result delivery at the next checkpoint.
// In-flight network operations are never interrupted.
func (e *Engine) Pause() { e.gate.Pause() }

// Resume releases everything waiting on the pause gate.
func (e *Engine) Resume() { e.gate.Resume() }

// Cancel aborts the scan. Validation subprocesses are still killed and
// reaped on their way out.
func (e *Engine) Cancel() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Done is closed when the scan has fully finished, validations included.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Wait blocks until the scan finishes, validations included.
func (e *Engine) Wait() {
	if e.done != nil {
		<-e.done
	}
}

func (e *Engine) Snapshot() Snapshot {
	elapsed := time.Since(e.started)
	scanned := e.scanned.Load()
	speed := 0.0
	if s := elapsed.Seconds(); s > 0 {
		speed = float64(scanned) / s
	}
	return Snapshot{
		EstimatedTotal: e.estimated.Load(),
		Scanned:        scanned,
		Found:          int64(e.table.Len()),
		Passed:         e.passed.Load(),
		FailedProxy:    e.failed.Load(),
		Elapsed:        elapsed,
		Speed:          speed,
		Paused:         e.gate.Paused(),
		Records:        e.table.View(),
	}
}

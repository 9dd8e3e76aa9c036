package rank

import (
	"sort"
	"sync"
	"time"
)

// ProxyStatus tracks one resolver's validation progress. It only ever moves
// forward.
type ProxyStatus int

const (
	ProxyNotRequested ProxyStatus = iota
	ProxyPending
	ProxyTesting
	ProxySuccess
	ProxyFailed
)

func (s ProxyStatus) String() string {
	switch s {
	case ProxyPending:
		return "Pending"
	case ProxyTesting:
		return "Testing"
	case ProxySuccess:
		return "Success"
	case ProxyFailed:
		return "Failed"
	default:
		return "N/A"
	}
}

// Terminal reports whether the status can no longer change.
func (s ProxyStatus) Terminal() bool {
	return s == ProxySuccess || s == ProxyFailed
}

// Record is one discovered resolver.
type Record struct {
	Address string
	Latency time.Duration
	Proxy   ProxyStatus
}

const DefaultRebuildInterval = 2 * time.Second

// Table holds every discovered resolver keyed by address and serves a
// latency-ascending view. Inserts land immediately; the sorted view is
// rebuilt at most once per interval while dirty, and unconditionally via
// Rebuild. Equal latencies keep discovery order.
type Table struct {
	mu       sync.Mutex
	records  map[string]*Record
	order    []*Record // discovery order
	view     []Record
	dirty    bool
	lastSort time.Time
	interval time.Duration
	now      func() time.Time
}

func NewTable() *Table {
	return &Table{
		records:  make(map[string]*Record),
		interval: DefaultRebuildInterval,
		now:      time.Now,
	}
}

// Insert records a live resolver. It is idempotent per address and reports
// whether the record was created.
func (t *Table) Insert(addr string, latency time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[addr]; ok {
		return false
	}
	r := &Record{Address: addr, Latency: latency}
	t.records[addr] = r
	t.order = append(t.order, r)
	t.dirty = true
	return true
}

// SetProxyStatus advances a record's validation status. Regressions and
// updates to terminal records are refused.
func (t *Table) SetProxyStatus(addr string, st ProxyStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[addr]
	if !ok || st <= r.Proxy || r.Proxy.Terminal() {
		return false
	}
	r.Proxy = st
	t.dirty = true
	return true
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// View returns the sorted snapshot, refreshing it only when dirty and the
// debounce interval has passed.
func (t *Table) View() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty && t.now().Sub(t.lastSort) >= t.interval {
		t.rebuildLocked()
	}
	return append([]Record(nil), t.view...)
}

// Rebuild resorts immediately regardless of the debounce interval.
func (t *Table) Rebuild() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rebuildLocked()
	return append([]Record(nil), t.view...)
}

func (t *Table) rebuildLocked() {
	view := make([]Record, len(t.order))
	for i, r := range t.order {
		view[i] = *r
	}
	sort.SliceStable(view, func(i, j int) bool {
		return view[i].Latency < view[j].Latency
	})
	t.view = view
	t.dirty = false
	t.lastSort = t.now()
}

// Reset drops all state for a fresh scan.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*Record)
	t.order = nil
	t.view = nil
	t.dirty = false
	t.lastSort = time.Time{}
}

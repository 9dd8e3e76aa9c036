package probe

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

const DefaultTimeout = 2 * time.Second

// Result is the classification of one probed address. Latency is only
// meaningful when Live is true.
type Result struct {
	Address string
	Live    bool
	Latency time.Duration
}

// Query describes what to ask every candidate resolver.
type Query struct {
	Domain    string
	Type      uint16
	RandomSub bool
}

// RecordType maps a textual record type ("A", "MX", ...) to its wire value.
func RecordType(s string) (uint16, error) {
	if t, ok := dns.StringToType[s]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown record type %q", s)
}

// Prober issues a single DNS query against one candidate resolver.
type Prober struct {
	Timeout time.Duration
	Port    int // resolver port, 53 unless overridden in tests
}

func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{Timeout: timeout, Port: 53}
}

// Probe sends one query with no retries and classifies the outcome.
func (p *Prober) Probe(ctx context.Context, addr string, q Query) Result {
	name := q.Domain
	if q.RandomSub {
		name = randomPrefix() + "." + name
	}

	c := &dns.Client{Timeout: p.Timeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), q.Type)

	start := time.Now()
	r, _, err := c.ExchangeContext(ctx, m, net.JoinHostPort(addr, strconv.Itoa(p.Port)))
	elapsed := time.Since(start)

	return classify(addr, r, err, elapsed, p.Timeout)
}

// classify applies the liveness policy: any correctly executed query inside
// the window counts, including NXDOMAIN, empty NOERROR and NOTIMP answers.
// The same answers beyond the window, transport failures, malformed
// responses, SERVFAIL and REFUSED do not.
func classify(addr string, r *dns.Msg, err error, elapsed, window time.Duration) Result {
	dead := Result{Address: addr}
	if err != nil || r == nil {
		return dead
	}
	if elapsed >= window {
		return dead
	}
	switch r.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError, dns.RcodeNotImplemented:
		return Result{Address: addr, Live: true, Latency: elapsed}
	default:
		return dead
	}
}

func randomPrefix() string {
	b := make([]byte, 4)
	if _, err := crand.Read(b); err != nil {
		return "probe"
	}
	return hex.EncodeToString(b)
}

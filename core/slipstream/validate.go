package slipstream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/projectdiscovery/gologger"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/semaphore"

	"slipscan/core/netutil"
)

const (
	// ReadyMarker is the stdout line the client prints once its local proxy
	// accepts connections.
	ReadyMarker = "Connection ready"

	readyTimeout = 15 * time.Second
	proxyTimeout = 15 * time.Second
)

// Validator proves that a live resolver also works as a tunnel endpoint. A
// candidate needs both a concurrency slot and a leased port before its
// client process is launched.
type Validator struct {
	mgr      *Manager
	slots    *semaphore.Weighted
	ports    *PortPool
	domain   string
	fallback string
	testURL  string

	// runFn is swapped in tests; the default launches the real client.
	runFn func(ctx context.Context, addr string, port int, onLaunched func()) bool
}

func NewValidator(mgr *Manager, concurrency, basePort, poolSize int, domain, fallback, testURL string) *Validator {
	if concurrency <= 0 {
		concurrency = 1
	}
	v := &Validator{
		mgr:      mgr,
		slots:    semaphore.NewWeighted(int64(concurrency)),
		ports:    NewPortPool(basePort, poolSize),
		domain:   domain,
		fallback: fallback,
		testURL:  testURL,
	}
	v.runFn = v.run
	return v
}

// Validate drives one candidate through the tunnel test. onLaunched fires
// when the client process has started, after the slot and port are held.
// The slot and the port are reclaimed on every path.
func (v *Validator) Validate(ctx context.Context, addr string, onLaunched func()) bool {
	if err := v.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer v.slots.Release(1)

	port, err := v.ports.Acquire(ctx)
	if err != nil {
		return false
	}
	defer v.ports.Release(port)

	return v.runFn(ctx, addr, port, onLaunched)
}

func (v *Validator) run(ctx context.Context, addr string, port int, onLaunched func()) bool {
	exe, err := v.mgr.ExecutablePath()
	if err != nil {
		gologger.Error().Msgf("%s: no client executable: %v", addr, err)
		return false
	}

	cmd := exec.Command(exe, v.mgr.RunArgs(addr, v.fallback, port, v.domain)...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		gologger.Error().Msgf("%s: launch failed: %v", addr, err)
		return false
	}
	if onLaunched != nil {
		onLaunched()
	}
	// The exit status is reclaimed in exactly one place. Closing pw when the
	// client exits turns its last output into EOF for the readers below.
	reaped := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		pw.Close()
		close(reaped)
	}()
	// Kill runs on every path, even when the scan has been cancelled. The
	// read side is torn down before waiting so Wait can never block on the
	// stdout copier.
	defer func() {
		_ = cmd.Process.Kill()
		pr.CloseWithError(errClientDone)
		<-reaped
	}()

	gologger.Debug().Msgf("%s: waiting for tunnel on port %d", addr, port)
	ready := awaitReady(ctx, pr, ReadyMarker, readyTimeout)
	// Keep the pipe drained from here on: a client that logs after the
	// marker must not fill the pipe and stall, nor wedge Wait.
	go io.Copy(io.Discard, pr)
	if !ready {
		gologger.Debug().Msgf("%s: tunnel not ready within %v", addr, readyTimeout)
		return false
	}

	if v.tryHTTP(ctx, port) {
		gologger.Debug().Msgf("%s: HTTP proxy test passed", addr)
		return true
	}
	if v.trySOCKS(ctx, port) {
		gologger.Debug().Msgf("%s: SOCKS5 proxy test passed", addr)
		return true
	}
	gologger.Debug().Msgf("%s: both proxy tests failed", addr)
	return false
}

// errClientDone unblocks any writer still copying client output once the
// validation outcome is decided.
var errClientDone = errors.New("slipstream client reaped")

// awaitReady scans r line by line until the marker shows up, the deadline
// passes, or ctx is cancelled.
func awaitReady(ctx context.Context, r io.Reader, marker string, timeout time.Duration) bool {
	found := make(chan bool, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if strings.Contains(sc.Text(), marker) {
				found <- true
				return
			}
		}
		found <- false
	}()
	select {
	case ok := <-found:
		return ok
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

func (v *Validator) tryHTTP(ctx context.Context, port int) bool {
	proxyURL := &url.URL{Scheme: "http", Host: net.JoinHostPort("127.0.0.1", strconv.Itoa(port))}
	client := netutil.NewClient(netutil.ClientOptions{
		Timeout:         proxyTimeout,
		FollowRedirects: true,
		Proxy:           http.ProxyURL(proxyURL),
	})
	return v.request(ctx, client)
}

func (v *Validator) trySOCKS(ctx context.Context, port int) bool {
	dialer, err := proxy.SOCKS5("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), nil,
		&net.Dialer{Timeout: proxyTimeout})
	if err != nil {
		return false
	}
	client := netutil.NewClient(netutil.ClientOptions{
		Timeout:         proxyTimeout,
		FollowRedirects: true,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
	})
	return v.request(ctx, client)
}

func (v *Validator) request(ctx context.Context, client *http.Client) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.testURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusMovedPermanently, http.StatusFound:
		return true
	default:
		return false
	}
}


package cidr

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"strings"

	"github.com/malfunkt/iprange"
	"github.com/projectdiscovery/gologger"
)

const DefaultChunkSize = 500

// ErrNoRanges is returned when the input file yields no usable ranges at all.
// Callers must treat it as a scan-level failure, not an empty scan.
var ErrNoRanges = errors.New("no valid address ranges in input")

// Range is one parsed input line as an inclusive IPv4 interval.
type Range struct {
	Lo, Hi uint32
}

// Load parses every non-empty, non-comment line of path with iprange.
// Malformed lines are logged and skipped.
func Load(path string) ([]Range, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subnet file: %w", err)
	}
	defer f.Close()

	var ranges []Range
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, err := iprange.Parse(line)
		if err != nil {
			gologger.Warning().Msgf("line %d: skipping %q: %v", lineNum, line, err)
			continue
		}
		lo, hi := ipToU32(r.Min), ipToU32(r.Max)
		if lo > hi {
			lo, hi = hi, lo
		}
		ranges = append(ranges, Range{Lo: lo, Hi: hi})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subnet file: %w", err)
	}
	if len(ranges) == 0 {
		return nil, ErrNoRanges
	}
	return ranges, nil
}

// Stream expands ranges into shuffled chunks of at most chunkSize addresses.
// Ranges are walked in random order, each split into /24-sized windows which
// are shuffled too, and the hosts of every window are shuffled before being
// appended. Memory stays bounded by one in-flight chunk.
func Stream(ctx context.Context, ranges []Range, chunkSize int) <-chan []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	out := make(chan []string, 1)

	go func() {
		defer close(out)

		shuffled := append([]Range(nil), ranges...)
		shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		chunk := make([]string, 0, chunkSize)
		emit := func() bool {
			select {
			case out <- chunk:
				chunk = make([]string, 0, chunkSize)
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, r := range shuffled {
			for _, w := range windows(r) {
				for _, addr := range hosts(w) {
					chunk = append(chunk, addr)
					if len(chunk) >= chunkSize {
						if !emit() {
							return
						}
					}
				}
			}
		}
		if len(chunk) > 0 {
			emit()
		}
	}()

	return out
}

// windows splits r at /24 boundaries and shuffles the result.
func windows(r Range) []Range {
	var ws []Range
	for base := uint64(r.Lo) &^ 0xff; base <= uint64(r.Hi); base += 256 {
		w := Range{Lo: uint32(base), Hi: uint32(base | 0xff)}
		if w.Lo < r.Lo {
			w.Lo = r.Lo
		}
		if w.Hi > r.Hi {
			w.Hi = r.Hi
		}
		ws = append(ws, w)
	}
	shuffle(len(ws), func(i, j int) {
		ws[i], ws[j] = ws[j], ws[i]
	})
	return ws
}

// hosts enumerates the usable addresses of one /24-sized window in random
// order. A window covering a full /24 drops its network and broadcast
// addresses; narrower windows keep every address.
func hosts(w Range) []string {
	lo, hi := w.Lo, w.Hi
	if lo&0xff == 0 && hi&0xff == 0xff {
		lo++
		hi--
	}
	addrs := make([]string, 0, hi-lo+1)
	for a := uint64(lo); a <= uint64(hi); a++ {
		addrs = append(addrs, u32ToIP(uint32(a)).String())
	}
	shuffle(len(addrs), func(i, j int) {
		addrs[i], addrs[j] = addrs[j], addrs[i]
	})
	return addrs
}

func ipToU32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

func u32ToIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}

// shuffle is a Fisher-Yates over crypto/rand. The order is not a security
// boundary, but predictable numeric order walks contiguous blocks and trips
// rate limiting.
func shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j, err := crand.Int(crand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			continue
		}
		swap(i, int(j.Int64()))
	}
}

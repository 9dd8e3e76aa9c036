package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"

	"slipscan/core/rank"
)

// ErrNothingToSave means no resolver qualified for persistence; no file is
// written in that case.
var ErrNothingToSave = errors.New("no resolvers to save")

const timestampLayout = "2006-01-02_15-04-05"

// Meta is the scan metadata embedded in the JSON report.
type Meta struct {
	Domain         string  `json:"domain"`
	RecordType     string  `json:"dns_type"`
	SlipstreamTest bool    `json:"slipstream_test"`
	TotalFound     int     `json:"total_found"`
	TotalPassed    int     `json:"total_passed_proxy"`
	TotalSaved     int     `json:"total_saved"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Timestamp      string  `json:"timestamp"`
	ScanID         string  `json:"scan_id,omitempty"`
}

type report struct {
	ScanInfo Meta     `json:"scan_info"`
	Servers  []string `json:"servers"`
}

// Fingerprint hashes the input file so reports from the same range list can
// be correlated. Empty on any read failure; the ID is informational only.
func Fingerprint(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", murmur3.Sum64(data))
}

// Save writes the plain-text list and, when withJSON is set, the JSON
// report. Records must already be latency-sorted; when proxyOnly is set,
// only validation-passing resolvers qualify.
func Save(dir string, meta Meta, records []rank.Record, proxyOnly, withJSON bool) ([]string, error) {
	addrs := filter(records, proxyOnly)
	if len(addrs) == 0 {
		return nil, ErrNothingToSave
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	meta.TotalSaved = len(addrs)
	if meta.Timestamp == "" {
		meta.Timestamp = time.Now().Format(timestampLayout)
	}

	txt := filepath.Join(dir, meta.Timestamp+".txt")
	if err := writeText(txt, meta, addrs); err != nil {
		return nil, err
	}
	paths := []string{txt}

	if withJSON {
		jsonPath := filepath.Join(dir, "scan_"+meta.Timestamp+".json")
		if err := writeJSON(jsonPath, meta, addrs); err != nil {
			return paths, err
		}
		paths = append(paths, jsonPath)
	}
	return paths, nil
}

func filter(records []rank.Record, proxyOnly bool) []string {
	addrs := make([]string, 0, len(records))
	for _, r := range records {
		if proxyOnly && r.Proxy != rank.ProxySuccess {
			continue
		}
		addrs = append(addrs, r.Address)
	}
	return addrs
}

func writeText(path string, meta Meta, addrs []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# slipscan results - %s\n", meta.Timestamp)
	fmt.Fprintf(&b, "# domain: %s | type: %s\n", meta.Domain, meta.RecordType)
	if meta.SlipstreamTest {
		b.WriteString("# slipstream test: enabled (only passing resolvers)\n")
	}
	fmt.Fprintf(&b, "# total saved: %d\n\n", len(addrs))
	for _, a := range addrs {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func writeJSON(path string, meta Meta, addrs []string) error {
	data, err := json.MarshalIndent(report{ScanInfo: meta, Servers: addrs}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

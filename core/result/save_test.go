package result

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"slipscan/core/rank"
)

func sampleRecords() []rank.Record {
	return []rank.Record{
		{Address: "1.1.1.1", Latency: 10 * time.Millisecond, Proxy: rank.ProxySuccess},
		{Address: "8.8.8.8", Latency: 20 * time.Millisecond, Proxy: rank.ProxyFailed},
		{Address: "9.9.9.9", Latency: 30 * time.Millisecond, Proxy: rank.ProxySuccess},
	}
}

func TestSaveNothing(t *testing.T) {
	if _, err := Save(t.TempDir(), Meta{}, nil, false, false); err != ErrNothingToSave {
		t.Fatalf("got %v, want ErrNothingToSave", err)
	}
	// proxyOnly with zero passing records is also nothing
	records := []rank.Record{{Address: "1.1.1.1", Proxy: rank.ProxyFailed}}
	if _, err := Save(t.TempDir(), Meta{}, records, true, false); err != ErrNothingToSave {
		t.Fatalf("got %v, want ErrNothingToSave", err)
	}
}

func TestSaveTextKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	meta := Meta{Domain: "tunnel.example.com", RecordType: "A", Timestamp: "2026-01-02_15-04-05"}
	paths, err := Save(dir, meta, sampleRecords(), false, false)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(paths))
	}
	if filepath.Base(paths[0]) != "2026-01-02_15-04-05.txt" {
		t.Fatalf("text file named %q", filepath.Base(paths[0]))
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var addrs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	want := []string{"1.1.1.1", "8.8.8.8", "9.9.9.9"}
	if len(addrs) != len(want) {
		t.Fatalf("got %d addresses, want %d", len(addrs), len(want))
	}
	for i, w := range want {
		if addrs[i] != w {
			t.Fatalf("addrs[%d] = %s, want %s (latency order)", i, addrs[i], w)
		}
	}
}

func TestSaveProxyOnlyFilters(t *testing.T) {
	dir := t.TempDir()
	meta := Meta{Timestamp: "2026-01-02_15-04-05"}
	paths, err := Save(dir, meta, sampleRecords(), true, false)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := os.ReadFile(paths[0])
	if strings.Contains(string(data), "8.8.8.8") {
		t.Fatal("failed resolver saved despite proxyOnly")
	}
	if !strings.Contains(string(data), "1.1.1.1") || !strings.Contains(string(data), "9.9.9.9") {
		t.Fatal("passing resolvers missing")
	}
}

func TestSaveJSONReport(t *testing.T) {
	dir := t.TempDir()
	meta := Meta{
		Domain:         "tunnel.example.com",
		RecordType:     "A",
		SlipstreamTest: true,
		TotalFound:     3,
		TotalPassed:    2,
		ElapsedSeconds: 12.5,
		Timestamp:      "2026-01-02_15-04-05",
		ScanID:         "deadbeefdeadbeef",
	}
	paths, err := Save(dir, meta, sampleRecords(), true, true)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want txt and json", len(paths))
	}
	if filepath.Base(paths[1]) != "scan_2026-01-02_15-04-05.json" {
		t.Fatalf("json file named %q", filepath.Base(paths[1]))
	}

	data, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var rep struct {
		ScanInfo struct {
			Domain     string `json:"domain"`
			RecordType string `json:"dns_type"`
			Slipstream bool   `json:"slipstream_test"`
			TotalSaved int    `json:"total_saved"`
			ScanID     string `json:"scan_id"`
		} `json:"scan_info"`
		Servers []string `json:"servers"`
	}
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rep.ScanInfo.Domain != "tunnel.example.com" || rep.ScanInfo.RecordType != "A" {
		t.Fatalf("scan_info = %+v", rep.ScanInfo)
	}
	if !rep.ScanInfo.Slipstream {
		t.Fatal("slipstream_test flag lost")
	}
	if rep.ScanInfo.TotalSaved != 2 {
		t.Fatalf("total_saved = %d, want 2", rep.ScanInfo.TotalSaved)
	}
	if rep.ScanInfo.ScanID != "deadbeefdeadbeef" {
		t.Fatalf("scan_id = %q", rep.ScanInfo.ScanID)
	}
	if len(rep.Servers) != 2 {
		t.Fatalf("servers = %v, want the two passing resolvers", rep.Servers)
	}
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subnets.txt")
	if err := os.WriteFile(path, []byte("10.0.0.0/24\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	id := Fingerprint(path)
	if len(id) != 16 {
		t.Fatalf("fingerprint %q, want 16 hex chars", id)
	}
	if id != Fingerprint(path) {
		t.Fatal("fingerprint not stable for identical input")
	}
	if Fingerprint(filepath.Join(t.TempDir(), "absent")) != "" {
		t.Fatal("missing file should yield an empty fingerprint")
	}
}

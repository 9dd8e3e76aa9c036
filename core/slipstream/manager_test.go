package slipstream

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testManager(t *testing.T, goos, goarch string) *Manager {
	t.Helper()
	m := NewManager(t.TempDir())
	m.goos = goos
	m.goarch = goarch
	return m
}

func TestPlatformKey(t *testing.T) {
	cases := []struct {
		goos, goarch string
		want         string
		ok           bool
	}{
		{"linux", "amd64", "linux-amd64", true},
		{"darwin", "arm64", "darwin-arm64", true},
		{"darwin", "amd64", "darwin-amd64", true},
		{"windows", "amd64", "windows-amd64", true},
		// windows releases ship amd64 only
		{"windows", "arm64", "windows-amd64", true},
		{"linux", "arm64", "", false},
		{"plan9", "amd64", "", false},
	}
	for _, tc := range cases {
		m := testManager(t, tc.goos, tc.goarch)
		key, err := m.platformKey()
		if tc.ok && err != nil {
			t.Fatalf("%s/%s: %v", tc.goos, tc.goarch, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s/%s: expected error", tc.goos, tc.goarch)
		}
		if key != tc.want {
			t.Fatalf("%s/%s: key = %q, want %q", tc.goos, tc.goarch, key, tc.want)
		}
	}
}

func TestDownloadURL(t *testing.T) {
	m := testManager(t, "linux", "amd64")
	url, err := m.DownloadURL()
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	want := releaseBase + "slipstream-client-linux-amd64"
	if url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}
}

func TestExecutablePathPrefersLegacyName(t *testing.T) {
	m := testManager(t, "linux", "amd64")

	p, err := m.ExecutablePath()
	if err != nil {
		t.Fatalf("ExecutablePath: %v", err)
	}
	if filepath.Base(p) != "slipstream-client-linux-amd64" {
		t.Fatalf("default path %q, want the platform download name", p)
	}
	if m.Installed() {
		t.Fatal("Installed true with nothing on disk")
	}

	legacy := filepath.Join(m.BaseDir, "linux", "slipstream-client")
	if err := os.MkdirAll(filepath.Dir(legacy), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(legacy, []byte("stub"), 0o755); err != nil {
		t.Fatalf("write legacy binary: %v", err)
	}

	p, err = m.ExecutablePath()
	if err != nil {
		t.Fatalf("ExecutablePath: %v", err)
	}
	if p != legacy {
		t.Fatalf("path = %q, want legacy %q", p, legacy)
	}
	if !m.Installed() {
		t.Fatal("Installed false with legacy binary on disk")
	}
}

func TestPlatformDirs(t *testing.T) {
	if d := testManager(t, "darwin", "arm64").platformDir(); filepath.Base(d) != "macos" {
		t.Fatalf("darwin dir = %q, want macos", d)
	}
	if d := testManager(t, "windows", "amd64").platformDir(); filepath.Base(d) != "windows" {
		t.Fatalf("windows dir = %q", d)
	}
	if d := testManager(t, "linux", "amd64").platformDir(); filepath.Base(d) != "linux" {
		t.Fatalf("linux dir = %q", d)
	}
}

func TestRunArgs(t *testing.T) {
	m := testManager(t, "linux", "amd64")
	got := m.RunArgs("1.2.3.4", "8.8.4.4:53", 10801, "tunnel.example.com")
	want := []string{
		"--resolver", "1.2.3.4:53",
		"--resolver", "8.8.4.4:53",
		"--tcp-listen-port", "10801",
		"--domain", "tunnel.example.com",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

// Package slipstream manages the external tunnel client: obtaining the
// platform binary and driving it to validate discovered resolvers as usable
// proxy endpoints.
package slipstream

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

const releaseBase = "https://github.com/AliRezaBeigy/slipstream-rust-deploy/releases/latest/download/"

var downloadFiles = map[string]string{
	"darwin-arm64":  "slipstream-client-darwin-arm64",
	"darwin-amd64":  "slipstream-client-darwin-amd64",
	"windows-amd64": "slipstream-client-windows-amd64.exe",
	"linux-amd64":   "slipstream-client-linux-amd64",
}

// Legacy install names checked before the platform-specific one.
var altFiles = map[string][]string{
	"darwin-arm64":  {"slipstream-client"},
	"darwin-amd64":  {"slipstream-client"},
	"windows-amd64": {"slipstream-client.exe"},
	"linux-amd64":   {"slipstream-client"},
}

var platformDirs = map[string]string{
	"darwin":  "macos",
	"windows": "windows",
	"linux":   "linux",
}

// Manager locates, downloads and launches the slipstream client for the
// running platform.
type Manager struct {
	BaseDir string
	goos    string
	goarch  string
}

func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = "slipstream-client"
	}
	return &Manager{BaseDir: baseDir, goos: runtime.GOOS, goarch: runtime.GOARCH}
}

func (m *Manager) platformKey() (string, error) {
	arch := m.goarch
	// windows builds ship amd64 only
	if m.goos == "windows" {
		arch = "amd64"
	}
	key := m.goos + "-" + arch
	if _, ok := downloadFiles[key]; !ok {
		return "", fmt.Errorf("unsupported platform %s/%s", m.goos, m.goarch)
	}
	return key, nil
}

func (m *Manager) platformDir() string {
	dir, ok := platformDirs[m.goos]
	if !ok {
		dir = m.goos
	}
	return filepath.Join(m.BaseDir, dir)
}

// ExecutablePath returns the client path, preferring an existing install
// under a legacy name over the primary download name.
func (m *Manager) ExecutablePath() (string, error) {
	key, err := m.platformKey()
	if err != nil {
		return "", err
	}
	dir := m.platformDir()
	for _, name := range altFiles[key] {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(dir, downloadFiles[key]), nil
}

// Installed reports whether a client binary already exists.
func (m *Manager) Installed() bool {
	p, err := m.ExecutablePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// DownloadURL returns the release asset URL for this platform.
func (m *Manager) DownloadURL() (string, error) {
	key, err := m.platformKey()
	if err != nil {
		return "", err
	}
	return releaseBase + downloadFiles[key], nil
}

// RunArgs builds the client invocation for one candidate: the candidate as
// primary resolver, a fixed fallback, the leased TCP port, and the tunnel
// domain.
func (m *Manager) RunArgs(resolver, fallback string, port int, domain string) []string {
	return []string{
		"--resolver", resolver + ":53",
		"--resolver", fallback,
		"--tcp-listen-port", strconv.Itoa(port),
		"--domain", domain,
	}
}

package slipstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/projectdiscovery/gologger"

	"slipscan/core/netutil"
)

const (
	downloadBlockSize  = 32 * 1024
	downloadRetries    = 5
	downloadBaseWait   = 2 * time.Second
	downloadDialWait   = 30 * time.Second
	downloadHeaderWait = 60 * time.Second
)

// Progress reports download state after every block.
type Progress func(downloaded, total int64, status string)

// Download fetches the client binary for this platform, resuming a partial
// transfer if one is on disk. On success the binary is in place and
// executable; on retryable failure the partial file survives for the next
// run.
func (m *Manager) Download(ctx context.Context, progress Progress) error {
	url, err := m.DownloadURL()
	if err != nil {
		return err
	}
	dest, err := m.ExecutablePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create client dir: %w", err)
	}

	// No overall deadline (the transfer is large), but connect and
	// first-byte stalls still fail fast enough for the retry loop to act.
	client := netutil.NewClient(netutil.ClientOptions{
		DialTimeout:           downloadDialWait,
		ResponseHeaderTimeout: downloadHeaderWait,
		FollowRedirects:       true,
	})

	if err := fetch(ctx, client, url, dest, progress); err != nil {
		return err
	}

	if m.goos != "windows" {
		if err := os.Chmod(dest, 0o755); err != nil {
			return fmt.Errorf("chmod client: %w", err)
		}
	}
	return nil
}

func fetch(ctx context.Context, client *http.Client, url, dest string, progress Progress) error {
	partial := dest + ".partial"
	var lastErr error

	for attempt := 1; attempt <= downloadRetries; attempt++ {
		err := fetchOnce(ctx, client, url, dest, partial, progress)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// cancelled; the partial file stays for a later resume
			return ctx.Err()
		}
		if !retryable(err) {
			// possibly corrupt; do not resume from it
			os.Remove(partial)
			return err
		}
		lastErr = err
		if progress != nil {
			progress(partialSize(partial), 0, fmt.Sprintf("retry %d/%d: %v", attempt, downloadRetries, err))
		}
		gologger.Warning().Msgf("download attempt %d/%d failed: %v", attempt, downloadRetries, err)
		if attempt < downloadRetries {
			select {
			case <-time.After(time.Duration(attempt) * downloadBaseWait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	// partial kept on purpose: the next invocation resumes instead of restarting
	return fmt.Errorf("download failed after %d attempts: %w", downloadRetries, lastErr)
}

func fetchOnce(ctx context.Context, client *http.Client, url, dest, partial string, progress Progress) error {
	downloaded := partialSize(partial)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &fatalErr{err}
	}
	if downloaded > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(downloaded, 10)+"-")
		if progress != nil {
			progress(downloaded, 0, fmt.Sprintf("resuming from %.1f MB", float64(downloaded)/(1<<20)))
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var total int64
	var flags int
	switch resp.StatusCode {
	case http.StatusPartialContent:
		total = totalFromContentRange(resp.Header.Get("Content-Range"))
		if total == 0 {
			total = downloaded + resp.ContentLength
		}
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case http.StatusOK:
		// range not honored: any progress so far is discarded
		total = resp.ContentLength
		downloaded = 0
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	default:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	f, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return &fatalErr{err}
	}

	if progress != nil {
		progress(downloaded, total, "downloading")
	}
	buf := make([]byte, downloadBlockSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				return &fatalErr{werr}
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total, "downloading")
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			f.Close()
			return rerr
		}
	}
	if err := f.Close(); err != nil {
		return &fatalErr{err}
	}

	// completed: replace any previous binary atomically
	os.Remove(dest)
	if err := os.Rename(partial, dest); err != nil {
		return &fatalErr{err}
	}
	return nil
}

// fatalErr marks non-network failures that must not be retried.
type fatalErr struct{ err error }

func (e *fatalErr) Error() string { return e.err.Error() }
func (e *fatalErr) Unwrap() error { return e.err }

func retryable(err error) bool {
	if _, ok := err.(*fatalErr); ok {
		return false
	}
	if netutil.IsNetworkErr(err) {
		return true
	}
	// bad statuses and truncated bodies are worth another attempt too
	return strings.Contains(err.Error(), "unexpected status") ||
		strings.Contains(err.Error(), "unexpected EOF")
}

func partialSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}

func totalFromContentRange(v string) int64 {
	i := strings.LastIndex(v, "/")
	if i < 0 {
		return 0
	}
	n, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ClientOptions configures the shared HTTP client builder. Timeout bounds
// the whole request; DialTimeout and ResponseHeaderTimeout bound their
// phases independently, so a client with no overall deadline (large
// transfers) still fails fast on a black-holed connection.
type ClientOptions struct {
	Timeout               time.Duration
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
	FollowRedirects       bool
	Proxy                 func(*http.Request) (*url.URL, error)
	DialContext           func(ctx context.Context, network, addr string) (net.Conn, error)
	DisableKeepAlives     bool
}

// NewClient builds an http.Client with the transport knobs this tool needs.
func NewClient(opts ClientOptions) *http.Client {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = opts.Timeout
	}
	transport := &http.Transport{
		Proxy: opts.Proxy,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		MaxIdleConns:          10,
		DisableKeepAlives:     opts.DisableKeepAlives,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS10,
		},
	}
	if opts.DialContext != nil {
		transport.DialContext = opts.DialContext
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}

	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client
}

// IsNetworkErr reports whether err is a transport-class failure worth
// retrying: timeouts, connection errors, unexpected stream ends.
func IsNetworkErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

package upstream

import (
	"net"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single upstream call.
	DefaultTimeout = 5 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 3 * time.Second
	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 2 << 20
)

// NewHTTPClient creates an HTTP client tuned for calls to the pools and matches services.
// Overall deadlines come from the per-call context, not from the client.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 3 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
		// Upstreams answer directly; a redirect is treated as a failure.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

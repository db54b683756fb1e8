package cloudapi

import (
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single Cloud API call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient returns a pooled HTTP client for the Graph API host.
// One client is shared by all sends so connections are reused.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	// HealthCheckTimeout is a short deadline for backend health checks. The
	// gateway's own /health handler is passive and does not use it.
	HealthCheckTimeout = 5 * time.Second
	// CompletionTimeout bounds a non-streaming chat completion forward.
	CompletionTimeout = 300 * time.Second

	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 32
	defaultMaxIdleConnsPerHost   = 8
)

// NewClient returns a hardened HTTP client for talking to inference backends.
// A timeout <= 0 disables the client-wide deadline, which is required for the
// Stream Relay: an SSE response body can legitimately stay open far longer
// than any single request/response round trip.
func NewClient(timeout time.Duration) *http.Client {
	responseHeaderTimeout := defaultResponseHeaderTimeout
	if timeout > 0 && timeout < responseHeaderTimeout {
		responseHeaderTimeout = timeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultDialTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		},
	}
}

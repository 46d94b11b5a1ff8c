package constants

import "time"

// HTTP client connection pool tuning for long-lived streaming upstreams.
const (
	MaxIdleConns        = 4096
	MaxIdleConnsPerHost = 512
	MaxConnsPerHost     = 1024
	IdleConnTimeout     = 120 * time.Second

	DefaultWriteBufferSize = 64 * 1024
	DefaultReadBufferSize  = 64 * 1024

	DefaultKeepAlive = 30 * time.Second
)

// HTTP timeouts.
const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 60 * time.Second
	DefaultExpectContinueTimeout = 2 * time.Second
)

package upstream

import (
	"net"
	"net/http"
	"net/url"

	"ag2api-go/internal/constants"
)

// NewHTTPClient builds the shared upstream client. The transport is
// tuned for many concurrent long-lived SSE streams; the client itself
// carries no timeout, per-request deadlines come from the context.
func NewHTTPClient(proxyURL string) *http.Client {
	tr := &http.Transport{
		Proxy: proxyFunc(proxyURL),
		DialContext: (&net.Dialer{
			Timeout:   constants.DefaultDialTimeout,
			KeepAlive: constants.DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   constants.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: constants.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: constants.DefaultExpectContinueTimeout,
		MaxIdleConns:          constants.MaxIdleConns,
		MaxIdleConnsPerHost:   constants.MaxIdleConnsPerHost,
		MaxConnsPerHost:       constants.MaxConnsPerHost,
		IdleConnTimeout:       constants.IdleConnTimeout,
		WriteBufferSize:       constants.DefaultWriteBufferSize,
		ReadBufferSize:        constants.DefaultReadBufferSize,
	}
	return &http.Client{Transport: tr, Timeout: 0}
}

func proxyFunc(proxyURL string) func(*http.Request) (*url.URL, error) {
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			return http.ProxyURL(parsed)
		}
	}
	return http.ProxyFromEnvironment
}

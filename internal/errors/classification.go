package errors

import "net/http"

// Class buckets an upstream failure by the recovery action it permits.
// The resilience engine drives its retry loop off this value alone.
type Class int

const (
	// ClassFatal errors cannot be recovered by retrying; surface to client.
	ClassFatal Class = iota
	// ClassAuth errors indicate a stale or revoked token; refresh then retry once.
	ClassAuth
	// ClassQuota errors indicate credential-level exhaustion; rotate to the
	// next credential and optionally disable the failing one.
	ClassQuota
	// ClassEndpoint errors indicate the endpoint itself is unhealthy; switch
	// to the next endpoint candidate before retrying.
	ClassEndpoint
	// ClassTransient errors are safe to retry against the same credential
	// and endpoint after a backoff.
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassAuth:
		return "auth"
	case ClassQuota:
		return "quota"
	case ClassEndpoint:
		return "endpoint"
	case ClassTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Classify assigns a recovery class to an APIError.
func Classify(e *APIError) Class {
	switch e.HTTPStatus {
	case http.StatusUnauthorized:
		return ClassAuth
	case http.StatusForbidden, http.StatusTooManyRequests:
		return ClassQuota
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ClassEndpoint
	case http.StatusInternalServerError, http.StatusRequestTimeout:
		return ClassTransient
	}
	switch e.Code {
	case "timeout", "connection_error", "network_error", "dns_error":
		return ClassEndpoint
	}
	return ClassFatal
}

// Retryable reports whether the class permits another attempt.
func (c Class) Retryable() bool {
	return c != ClassFatal
}

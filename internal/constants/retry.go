package constants

import "time"

// Retry policy defaults for upstream requests.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBase    = 1 * time.Second
	DefaultRetryCeiling = 30 * time.Second
	RetryBackoffFactor  = 2.0

	// Per-status retry delays used when the upstream omits Retry-After.
	RateLimitRetryDelay          = 60 * time.Second
	ServiceUnavailableRetryDelay = 30 * time.Second
	GatewayErrorRetryDelay       = 15 * time.Second
	DefaultErrorRetryDelay       = 5 * time.Second
)

// Auto-disable thresholds for repeated credential failures.
const (
	DefaultAutoDisable429Threshold     = 3
	DefaultAutoDisable401Threshold     = 3
	DefaultAutoDisableConsecutiveFails = 10
)

// Continuation policy defaults.
const (
	DefaultMaxContinuations = 3
)

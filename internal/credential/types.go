package credential

import (
	"fmt"
	"sync"
	"time"

	"ag2api-go/internal/constants"
)

// Family identifies which upstream wire family an account talks to.
type Family string

const (
	FamilyGeminiCLI   Family = "gemini-cli"
	FamilyAntigravity Family = "antigravity"
)

// Valid reports whether f names a known wire family.
func (f Family) Valid() bool {
	return f == FamilyGeminiCLI || f == FamilyAntigravity
}

// AutoDisableConfig controls the failure-driven disable policy.
// DisableCodes lists status codes that take the account out of service
// permanently on first sight; the thresholds govern temporary
// quarantine cooldowns for everything else.
type AutoDisableConfig struct {
	Enabled              bool
	DisableCodes         []int
	Threshold429         int
	Threshold401         int
	ConsecutiveFailLimit int
}

func (c AutoDisableConfig) isZero() bool {
	return !c.Enabled && len(c.DisableCodes) == 0 &&
		c.Threshold429 == 0 && c.Threshold401 == 0 && c.ConsecutiveFailLimit == 0
}

// DefaultAutoDisableConfig mirrors the constants package defaults.
var DefaultAutoDisableConfig = AutoDisableConfig{
	Enabled:              true,
	DisableCodes:         []int{403},
	Threshold429:         constants.DefaultAutoDisable429Threshold,
	Threshold401:         constants.DefaultAutoDisable401Threshold,
	ConsecutiveFailLimit: constants.DefaultAutoDisableConsecutiveFails,
}

// Account is one upstream OAuth account in the pool. All mutable state is
// guarded by mu; callers outside the package only ever see clones.
type Account struct {
	ID           string
	Family       Family
	Email        string
	Label        string
	ProjectID    string
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time

	// Runtime state
	Disabled         bool
	DisabledReason   string
	QuarantinedUntil time.Time
	FailureCount     int
	ConsecutiveFails int
	LastFailure      time.Time
	LastSuccess      time.Time
	LastErrorCode    int
	TotalRequests    int64
	SuccessCount     int64
	ErrorCodeCounts  map[int]int

	// Call count for rotation
	CallsSinceRotation int32

	mu sync.RWMutex
}

// TokenExpired reports whether the access token is missing or expires
// within the refresh-ahead window.
func (a *Account) TokenExpired(ahead time.Duration) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.AccessToken == "" {
		return true
	}
	if a.ExpiresAt.IsZero() {
		return true
	}
	return time.Until(a.ExpiresAt) <= ahead
}

// Token returns the current access token.
func (a *Account) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.AccessToken
}

// Project returns the stored project id, empty when the account has none.
func (a *Account) Project() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ProjectID
}

// Available reports whether the account may serve a request right now.
func (a *Account) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.Disabled {
		return false
	}
	if !a.QuarantinedUntil.IsZero() && time.Now().Before(a.QuarantinedUntil) {
		return false
	}
	return true
}

// MarkSuccess records a successful request and clears failure streaks.
func (a *Account) MarkSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.LastSuccess = time.Now()
	a.SuccessCount++
	a.TotalRequests++
	a.ConsecutiveFails = 0
	a.CallsSinceRotation++
	a.QuarantinedUntil = time.Time{}

	// Decay per-code counters so old bursts do not haunt the account.
	for code := range a.ErrorCodeCounts {
		if a.ErrorCodeCounts[code] > 0 {
			a.ErrorCodeCounts[code]--
		}
	}
}

// MarkFailure records a failed request and applies the disable policy.
// Status codes in cfg.DisableCodes take the account out of service
// terminally; other codes accrue toward quarantine cooldowns. It
// reports whether this failure disabled the account.
func (a *Account) MarkFailure(reason string, statusCode int, cfg AutoDisableConfig) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.LastFailure = time.Now()
	a.FailureCount++
	a.ConsecutiveFails++
	a.TotalRequests++
	a.CallsSinceRotation++
	a.LastErrorCode = statusCode

	if statusCode > 0 {
		if a.ErrorCodeCounts == nil {
			a.ErrorCodeCounts = make(map[int]int)
		}
		a.ErrorCodeCounts[statusCode]++
	}

	if !cfg.Enabled {
		return false
	}

	for _, code := range cfg.DisableCodes {
		if statusCode == code {
			wasDisabled := a.Disabled
			a.Disabled = true
			a.DisabledReason = fmt.Sprintf("upstream returned %d", statusCode)
			if reason != "" {
				a.DisabledReason += ": " + reason
			}
			return !wasDisabled
		}
	}

	threshold := func(v, def int) int {
		if v > 0 {
			return v
		}
		return def
	}

	var cooldown time.Duration
	why := ""
	switch statusCode {
	case 429:
		if a.ErrorCodeCounts[429] >= threshold(cfg.Threshold429, DefaultAutoDisableConfig.Threshold429) {
			cooldown, why = 30*time.Minute, "rate limit exceeded (429)"
		}
	case 401:
		if a.ErrorCodeCounts[401] >= threshold(cfg.Threshold401, DefaultAutoDisableConfig.Threshold401) {
			cooldown, why = 2*time.Hour, "unauthorized (401)"
		}
	}
	if a.ConsecutiveFails >= threshold(cfg.ConsecutiveFailLimit, DefaultAutoDisableConfig.ConsecutiveFailLimit) {
		cooldown, why = time.Hour, "too many consecutive failures"
	}

	if cooldown > 0 {
		a.QuarantinedUntil = time.Now().Add(cooldown)
		a.DisabledReason = why
		if reason != "" {
			a.DisabledReason = why + ": " + reason
		}
	}
	return false
}

// ShouldRotate checks if the account reached its rotation call budget.
func (a *Account) ShouldRotate(threshold int32) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.CallsSinceRotation >= threshold
}

// ResetCallCount resets the rotation counter.
func (a *Account) ResetCallCount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CallsSinceRotation = 0
}

// Clone creates a deep copy safe to hand outside the pool.
func (a *Account) Clone() *Account {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var counts map[int]int
	if len(a.ErrorCodeCounts) > 0 {
		counts = make(map[int]int, len(a.ErrorCodeCounts))
		for k, v := range a.ErrorCodeCounts {
			counts[k] = v
		}
	}

	return &Account{
		ID:                 a.ID,
		Family:             a.Family,
		Email:              a.Email,
		Label:              a.Label,
		ProjectID:          a.ProjectID,
		ClientID:           a.ClientID,
		ClientSecret:       a.ClientSecret,
		AccessToken:        a.AccessToken,
		RefreshToken:       a.RefreshToken,
		ExpiresAt:          a.ExpiresAt,
		Disabled:           a.Disabled,
		DisabledReason:     a.DisabledReason,
		QuarantinedUntil:   a.QuarantinedUntil,
		FailureCount:       a.FailureCount,
		ConsecutiveFails:   a.ConsecutiveFails,
		LastFailure:        a.LastFailure,
		LastSuccess:        a.LastSuccess,
		LastErrorCode:      a.LastErrorCode,
		TotalRequests:      a.TotalRequests,
		SuccessCount:       a.SuccessCount,
		ErrorCodeCounts:    counts,
		CallsSinceRotation: a.CallsSinceRotation,
	}
}

// setTokens applies a refreshed token set under lock.
func (a *Account) setTokens(access, refresh string, expiresAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.AccessToken = access
	if refresh != "" {
		a.RefreshToken = refresh
	}
	if !expiresAt.IsZero() {
		a.ExpiresAt = expiresAt
	}
}

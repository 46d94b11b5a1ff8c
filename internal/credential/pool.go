package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ag2api-go/internal/constants"
	"ag2api-go/internal/monitoring"
	"ag2api-go/internal/oauth"
)

// ErrNoAccountAvailable is returned when every account of the requested
// family is disabled, quarantined, or missing.
var ErrNoAccountAvailable = errors.New("no account available")

// TokenRefresher exchanges a refresh token for a fresh access token.
// *oauth.Manager satisfies this.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, creds *oauth.Credentials) error
}

// Options configure the account pool.
type Options struct {
	Store             Store
	Refreshers        map[Family]TokenRefresher
	RotationThreshold int32
	AutoDisable       AutoDisableConfig
	RefreshAhead      time.Duration
	Coordinator       RefreshCoordinator
}

// Pool manages upstream accounts with per-family round-robin rotation,
// proactive token refresh, and failure-driven quarantine.
type Pool struct {
	mu       sync.Mutex
	accounts []*Account
	cursor   map[Family]int
	closed   bool

	store             Store
	refreshers        map[Family]TokenRefresher
	rotationThreshold int32
	autoDisable       AutoDisableConfig
	refreshAhead      time.Duration
	coord             RefreshCoordinator
}

// NewPool builds a pool and loads accounts from the store.
func NewPool(ctx context.Context, opts Options) (*Pool, error) {
	rotation := opts.RotationThreshold
	if rotation <= 0 {
		rotation = 100
	}
	ahead := opts.RefreshAhead
	if ahead <= 0 {
		ahead = constants.TokenRefreshAhead
	}
	coord := opts.Coordinator
	if coord == nil {
		coord = NewInflightCoordinator()
	}
	autoDisable := opts.AutoDisable
	if autoDisable.isZero() {
		autoDisable = DefaultAutoDisableConfig
	}

	p := &Pool{
		cursor:            make(map[Family]int),
		store:             opts.Store,
		refreshers:        opts.Refreshers,
		rotationThreshold: rotation,
		autoDisable:       autoDisable,
		refreshAhead:      ahead,
		coord:             coord,
	}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads accounts from the store, preserving runtime state for
// accounts whose IDs survive the reload.
func (p *Pool) Reload(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	loaded, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	previous := make(map[string]*Account, len(p.accounts))
	for _, a := range p.accounts {
		previous[a.ID] = a
	}
	for i, a := range loaded {
		if old, ok := previous[a.ID]; ok {
			old.mu.RLock()
			a.FailureCount = old.FailureCount
			a.ConsecutiveFails = old.ConsecutiveFails
			a.LastFailure = old.LastFailure
			a.LastSuccess = old.LastSuccess
			a.LastErrorCode = old.LastErrorCode
			a.TotalRequests = old.TotalRequests
			a.SuccessCount = old.SuccessCount
			a.QuarantinedUntil = old.QuarantinedUntil
			a.CallsSinceRotation = old.CallsSinceRotation
			if len(old.ErrorCodeCounts) > 0 {
				a.ErrorCodeCounts = make(map[int]int, len(old.ErrorCodeCounts))
				for k, v := range old.ErrorCodeCounts {
					a.ErrorCodeCounts[k] = v
				}
			}
			// Prefer in-memory tokens when newer; a reload must not roll
			// back a refresh that has not been persisted yet.
			if old.ExpiresAt.After(a.ExpiresAt) {
				a.AccessToken = old.AccessToken
				a.RefreshToken = old.RefreshToken
				a.ExpiresAt = old.ExpiresAt
			}
			old.mu.RUnlock()
		}
		loaded[i] = a
	}

	p.accounts = loaded
	log.WithField("accounts", len(loaded)).Info("account pool loaded")
	return nil
}

// Acquire returns a clone of the next usable account for family, refreshing
// its token first when needed. The walk is bounded by the pool size.
func (p *Pool) Acquire(ctx context.Context, family Family) (*Account, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("pool closed: %w", ErrNoAccountAvailable)
	}

	candidates := p.familyAccounts(family)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for family %s", ErrNoAccountAvailable, family)
	}

	for attempt := 0; attempt < len(candidates); attempt++ {
		acct := p.nextAccount(family, candidates)
		if acct == nil {
			break
		}
		if err := p.ensureFresh(ctx, acct); err != nil {
			log.WithError(err).WithField("account", acct.ID).Warn("token refresh failed, trying next account")
			var re *oauth.RefreshError
			status := 0
			if errors.As(err, &re) {
				status = re.Status
			}
			if acct.MarkFailure("token refresh failed", status, p.autoDisable) {
				p.persistAccount(ctx, acct)
			}
			p.skipAccount(family, acct, candidates)
			continue
		}
		return acct.Clone(), nil
	}
	return nil, fmt.Errorf("%w for family %s", ErrNoAccountAvailable, family)
}

// Alternate returns a usable account of the family other than excludeID.
func (p *Pool) Alternate(ctx context.Context, family Family, excludeID string) (*Account, error) {
	candidates := p.familyAccounts(family)
	for attempt := 0; attempt < len(candidates); attempt++ {
		acct := p.nextAccount(family, candidates)
		if acct == nil {
			break
		}
		if acct.ID == excludeID {
			p.skipAccount(family, acct, candidates)
			continue
		}
		if err := p.ensureFresh(ctx, acct); err != nil {
			p.skipAccount(family, acct, candidates)
			continue
		}
		return acct.Clone(), nil
	}
	return nil, fmt.Errorf("%w: no alternate for family %s", ErrNoAccountAvailable, family)
}

// familyAccounts snapshots the live account pointers for one family.
func (p *Pool) familyAccounts(family Family) []*Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Account, 0, len(p.accounts))
	for _, a := range p.accounts {
		if a.Family == family {
			out = append(out, a)
		}
	}
	return out
}

// nextAccount returns the account under the family cursor. The cursor
// is sticky: it moves only when the current account has spent its
// rotation budget or cannot serve, so each account absorbs a full run
// of calls before the next one takes over.
func (p *Pool) nextAccount(family Family, candidates []*Account) *Account {
	if len(candidates) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(candidates); i++ {
		idx := p.cursor[family] % len(candidates)
		acct := candidates[idx]

		if acct.ShouldRotate(p.rotationThreshold) {
			log.WithFields(log.Fields{"account": acct.ID, "calls": acct.CallsSinceRotation}).Info("rotating account")
			acct.ResetCallCount()
			p.cursor[family] = (idx + 1) % len(candidates)
			continue
		}
		if !acct.Available() {
			p.cursor[family] = (idx + 1) % len(candidates)
			continue
		}
		return acct
	}
	return nil
}

// skipAccount moves the family cursor past acct so the next selection
// lands on a different account.
func (p *Pool) skipAccount(family Family, skip *Account, candidates []*Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for idx, acct := range candidates {
		if acct.ID == skip.ID {
			if p.cursor[family]%len(candidates) == idx {
				p.cursor[family] = (idx + 1) % len(candidates)
			}
			return
		}
	}
}

// persistAccount writes the account's current state through the store.
func (p *Pool) persistAccount(ctx context.Context, acct *Account) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(ctx, acct.Clone()); err != nil {
		log.WithError(err).WithField("account", acct.ID).Warn("failed to persist account state")
	}
}

// ensureFresh refreshes the account token when it is missing or near expiry.
// Concurrent callers for the same account coalesce into one refresh.
func (p *Pool) ensureFresh(ctx context.Context, acct *Account) error {
	if !acct.TokenExpired(p.refreshAhead) {
		return nil
	}
	return p.coord.Do(ctx, acct.ID, func(ctx context.Context) error {
		// Re-check under the flight: a coalesced waiter sees the token the
		// winner already fetched.
		if !acct.TokenExpired(p.refreshAhead) {
			return nil
		}
		return p.refreshLocked(ctx, acct)
	})
}

// Refresh forces a token refresh for the given account ID.
func (p *Pool) Refresh(ctx context.Context, accountID string) error {
	acct := p.findAccount(accountID)
	if acct == nil {
		return fmt.Errorf("account %s not found", accountID)
	}
	return p.coord.Do(ctx, accountID, func(ctx context.Context) error {
		return p.refreshLocked(ctx, acct)
	})
}

func (p *Pool) refreshLocked(ctx context.Context, acct *Account) error {
	refresher := p.refreshers[acct.Family]
	if refresher == nil {
		return fmt.Errorf("no refresher configured for family %s", acct.Family)
	}

	acct.mu.RLock()
	oc := &oauth.Credentials{
		ClientID:     acct.ClientID,
		ClientSecret: acct.ClientSecret,
		RefreshToken: acct.RefreshToken,
		ProjectID:    acct.ProjectID,
	}
	acct.mu.RUnlock()

	if err := refresher.RefreshToken(ctx, oc); err != nil {
		monitoring.CredentialRefreshes.WithLabelValues(string(acct.Family), "failure").Inc()
		return err
	}
	monitoring.CredentialRefreshes.WithLabelValues(string(acct.Family), "success").Inc()
	acct.setTokens(oc.AccessToken, oc.RefreshToken, oc.ExpiresAt)

	if p.store != nil {
		if err := p.store.Save(ctx, acct.Clone()); err != nil {
			log.WithError(err).WithField("account", acct.ID).Warn("failed to persist refreshed token")
		}
	}
	return nil
}

// Get returns a clone of the account with the given ID, reflecting any
// refresh that happened since the caller's copy was taken.
func (p *Pool) Get(accountID string) (*Account, error) {
	acct := p.findAccount(accountID)
	if acct == nil {
		return nil, fmt.Errorf("account %s not found", accountID)
	}
	return acct.Clone(), nil
}

// Close takes the pool out of service; subsequent Acquire calls fail.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// ReportSuccess records a successful upstream call for the account.
func (p *Pool) ReportSuccess(accountID string) {
	if acct := p.findAccount(accountID); acct != nil {
		acct.MarkSuccess()
	}
}

// ReportFailure records a failed upstream call and applies the disable
// policy. An account disabled by the failure is persisted immediately
// so the disable survives a restart.
func (p *Pool) ReportFailure(accountID, reason string, statusCode int) {
	acct := p.findAccount(accountID)
	if acct == nil {
		return
	}
	if acct.MarkFailure(reason, statusCode, p.autoDisable) {
		p.persistAccount(context.Background(), acct)
	}
}

// Disable takes an account out of rotation until Enable is called.
// The change is written through the store.
func (p *Pool) Disable(accountID, reason string) error {
	acct := p.findAccount(accountID)
	if acct == nil {
		return fmt.Errorf("account %s not found", accountID)
	}
	acct.mu.Lock()
	acct.Disabled = true
	acct.DisabledReason = reason
	acct.mu.Unlock()
	log.WithFields(log.Fields{"account": accountID, "reason": reason}).Warn("account disabled")
	p.persistAccount(context.Background(), acct)
	return nil
}

// Enable returns an account to rotation and clears quarantine.
func (p *Pool) Enable(accountID string) error {
	acct := p.findAccount(accountID)
	if acct == nil {
		return fmt.Errorf("account %s not found", accountID)
	}
	acct.mu.Lock()
	acct.Disabled = false
	acct.DisabledReason = ""
	acct.QuarantinedUntil = time.Time{}
	acct.ConsecutiveFails = 0
	acct.ErrorCodeCounts = make(map[int]int)
	acct.mu.Unlock()
	p.persistAccount(context.Background(), acct)
	return nil
}

// Accounts returns clones of every account for inspection.
func (p *Pool) Accounts() []*Account {
	p.mu.Lock()
	live := make([]*Account, len(p.accounts))
	copy(live, p.accounts)
	p.mu.Unlock()

	out := make([]*Account, len(live))
	for i, a := range live {
		out[i] = a.Clone()
	}
	return out
}

func (p *Pool) findAccount(id string) *Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

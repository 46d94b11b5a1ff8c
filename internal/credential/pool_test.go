package credential

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ag2api-go/internal/oauth"
)

type stubStore struct {
	mu       sync.Mutex
	accounts []*Account
	saved    []string
	loads    int
}

func (s *stubStore) Load(context.Context) ([]*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	out := make([]*Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

func (s *stubStore) Save(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, acct.ID)
	return nil
}

type stubRefresher struct {
	mu      sync.Mutex
	calls   int32
	delay   time.Duration
	failErr error
}

func (r *stubRefresher) RefreshToken(ctx context.Context, creds *oauth.Credentials) error {
	atomic.AddInt32(&r.calls, 1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.failErr != nil {
		return r.failErr
	}
	creds.AccessToken = "access-" + creds.RefreshToken
	creds.ExpiresAt = time.Now().Add(time.Hour)
	return nil
}

func freshAccount(id string, family Family) *Account {
	return &Account{
		ID:           id,
		Family:       family,
		RefreshToken: "refresh-" + id,
		AccessToken:  "access-" + id,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func newTestPool(t *testing.T, refresher TokenRefresher, accounts ...*Account) *Pool {
	t.Helper()
	store := &stubStore{accounts: accounts}
	pool, err := NewPool(context.Background(), Options{
		Store: store,
		Refreshers: map[Family]TokenRefresher{
			FamilyGeminiCLI:   refresher,
			FamilyAntigravity: refresher,
		},
		RotationThreshold: 100,
	})
	require.NoError(t, err)
	return pool
}

func newThresholdPool(t *testing.T, threshold int32, accounts ...*Account) (*Pool, *stubStore) {
	t.Helper()
	store := &stubStore{accounts: accounts}
	pool, err := NewPool(context.Background(), Options{
		Store: store,
		Refreshers: map[Family]TokenRefresher{
			FamilyGeminiCLI:   &stubRefresher{},
			FamilyAntigravity: &stubRefresher{},
		},
		RotationThreshold: threshold,
	})
	require.NoError(t, err)
	return pool, store
}

func TestAcquireRoundRobinFairness(t *testing.T) {
	pool, _ := newThresholdPool(t, 1,
		freshAccount("a", FamilyAntigravity),
		freshAccount("b", FamilyAntigravity),
		freshAccount("c", FamilyAntigravity),
	)

	counts := make(map[string]int)
	const rounds = 30
	for i := 0; i < rounds; i++ {
		acct, err := pool.Acquire(context.Background(), FamilyAntigravity)
		require.NoError(t, err)
		counts[acct.ID]++
		pool.ReportSuccess(acct.ID)
	}
	require.Len(t, counts, 3)
	for id, n := range counts {
		require.Equal(t, rounds/3, n, "account %s selected unevenly", id)
	}
}

func TestAcquireStaysOnAccountUntilThreshold(t *testing.T) {
	pool, _ := newThresholdPool(t, 3,
		freshAccount("a", FamilyAntigravity),
		freshAccount("b", FamilyAntigravity),
	)

	var order []string
	for i := 0; i < 6; i++ {
		acct, err := pool.Acquire(context.Background(), FamilyAntigravity)
		require.NoError(t, err)
		order = append(order, acct.ID)
		pool.ReportSuccess(acct.ID)
	}
	require.Equal(t, []string{"a", "a", "a", "b", "b", "b"}, order,
		"cursor must stay put until the account exhausts its call budget")
}

func TestAcquireAlternatesWithThresholdOne(t *testing.T) {
	pool, _ := newThresholdPool(t, 1,
		freshAccount("a", FamilyAntigravity),
		freshAccount("b", FamilyAntigravity),
	)

	var order []string
	for i := 0; i < 4; i++ {
		acct, err := pool.Acquire(context.Background(), FamilyAntigravity)
		require.NoError(t, err)
		order = append(order, acct.ID)
		pool.ReportSuccess(acct.ID)
	}
	require.Equal(t, []string{"a", "b", "a", "b"}, order)
}

func TestForbiddenDisablesAccountAndPersists(t *testing.T) {
	a := freshAccount("a", FamilyAntigravity)
	pool, store := newThresholdPool(t, 100, a, freshAccount("b", FamilyAntigravity))

	pool.ReportFailure("a", "permission denied", 403)

	require.False(t, a.Available(), "one 403 must take the account out of service")
	require.True(t, a.Clone().Disabled, "403 disable is terminal, not a cooldown")
	store.mu.Lock()
	require.Contains(t, store.saved, "a", "disable must be written through the store")
	store.mu.Unlock()

	got, err := pool.Acquire(context.Background(), FamilyAntigravity)
	require.NoError(t, err)
	require.Equal(t, "b", got.ID)
}

func TestAcquireSkipsOtherFamily(t *testing.T) {
	pool := newTestPool(t, &stubRefresher{},
		freshAccount("gem", FamilyGeminiCLI),
		freshAccount("ant", FamilyAntigravity),
	)

	for i := 0; i < 5; i++ {
		acct, err := pool.Acquire(context.Background(), FamilyGeminiCLI)
		require.NoError(t, err)
		require.Equal(t, "gem", acct.ID)
	}
}

func TestDisabledAccountNeverSelected(t *testing.T) {
	pool, _ := newThresholdPool(t, 1,
		freshAccount("a", FamilyAntigravity),
		freshAccount("b", FamilyAntigravity),
	)
	require.NoError(t, pool.Disable("a", "manual"))

	for i := 0; i < 10; i++ {
		acct, err := pool.Acquire(context.Background(), FamilyAntigravity)
		require.NoError(t, err)
		require.Equal(t, "b", acct.ID)
		pool.ReportSuccess(acct.ID)
	}

	require.NoError(t, pool.Enable("a"))
	seen := make(map[string]bool)
	for i := 0; i < 4; i++ {
		acct, err := pool.Acquire(context.Background(), FamilyAntigravity)
		require.NoError(t, err)
		seen[acct.ID] = true
		pool.ReportSuccess(acct.ID)
	}
	require.True(t, seen["a"], "re-enabled account should rejoin rotation")
}

func TestAcquireNoAccountAvailable(t *testing.T) {
	pool := newTestPool(t, &stubRefresher{}, freshAccount("a", FamilyAntigravity))
	require.NoError(t, pool.Disable("a", "manual"))

	_, err := pool.Acquire(context.Background(), FamilyAntigravity)
	require.ErrorIs(t, err, ErrNoAccountAvailable)

	_, err = pool.Acquire(context.Background(), FamilyGeminiCLI)
	require.ErrorIs(t, err, ErrNoAccountAvailable)
}

func TestConcurrentAcquireCoalescesRefresh(t *testing.T) {
	refresher := &stubRefresher{delay: 50 * time.Millisecond}
	stale := freshAccount("a", FamilyAntigravity)
	stale.AccessToken = ""
	stale.ExpiresAt = time.Time{}
	pool := newTestPool(t, refresher, stale)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = pool.Acquire(context.Background(), FamilyAntigravity)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&refresher.calls),
		"concurrent acquisitions must coalesce into a single refresh")
}

func TestRefreshPersistsToStore(t *testing.T) {
	store := &stubStore{accounts: []*Account{freshAccount("a", FamilyGeminiCLI)}}
	pool, err := NewPool(context.Background(), Options{
		Store:      store,
		Refreshers: map[Family]TokenRefresher{FamilyGeminiCLI: &stubRefresher{}},
	})
	require.NoError(t, err)

	require.NoError(t, pool.Refresh(context.Background(), "a"))
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Contains(t, store.saved, "a")
}

func TestQuarantineAfterRepeated429(t *testing.T) {
	acct := freshAccount("a", FamilyAntigravity)
	pool := newTestPool(t, &stubRefresher{}, acct, freshAccount("b", FamilyAntigravity))

	for i := 0; i < DefaultAutoDisableConfig.Threshold429; i++ {
		pool.ReportFailure("a", "rate limited", 429)
	}
	require.False(t, acct.Available(), "account should be quarantined after repeated 429s")

	for i := 0; i < 6; i++ {
		got, err := pool.Acquire(context.Background(), FamilyAntigravity)
		require.NoError(t, err)
		require.Equal(t, "b", got.ID)
	}
}

func TestMarkSuccessClearsQuarantine(t *testing.T) {
	acct := freshAccount("a", FamilyAntigravity)
	for i := 0; i < DefaultAutoDisableConfig.Threshold429; i++ {
		acct.MarkFailure("rate limited", 429, DefaultAutoDisableConfig)
	}
	require.False(t, acct.Available())

	acct.MarkSuccess()
	require.True(t, acct.Available())
	require.Equal(t, 0, acct.ConsecutiveFails)
}

func TestRotationThresholdAdvancesCursor(t *testing.T) {
	a := freshAccount("a", FamilyAntigravity)
	b := freshAccount("b", FamilyAntigravity)
	store := &stubStore{accounts: []*Account{a, b}}
	pool, err := NewPool(context.Background(), Options{
		Store:             store,
		Refreshers:        map[Family]TokenRefresher{FamilyAntigravity: &stubRefresher{}},
		RotationThreshold: 2,
	})
	require.NoError(t, err)

	// Saturate a's rotation budget, then verify the cursor moves on.
	a.MarkSuccess()
	a.MarkSuccess()
	require.True(t, a.ShouldRotate(2))

	got, err := pool.Acquire(context.Background(), FamilyAntigravity)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int32(0), a.CallsSinceRotation, "rotation should reset the call counter")
}

func TestReloadPreservesRuntimeState(t *testing.T) {
	acct := freshAccount("a", FamilyAntigravity)
	store := &stubStore{accounts: []*Account{acct}}
	pool, err := NewPool(context.Background(), Options{
		Store:      store,
		Refreshers: map[Family]TokenRefresher{FamilyAntigravity: &stubRefresher{}},
	})
	require.NoError(t, err)

	pool.ReportFailure("a", "boom", 500)

	// Simulate the file changing on disk with the same account.
	store.mu.Lock()
	store.accounts = []*Account{freshAccount("a", FamilyAntigravity)}
	store.mu.Unlock()
	require.NoError(t, pool.Reload(context.Background()))

	accounts := pool.Accounts()
	require.Len(t, accounts, 1)
	require.Equal(t, 1, accounts[0].FailureCount, "reload should carry failure counters forward")
}

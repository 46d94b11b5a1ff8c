package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ag2api-go/internal/config"
	"ag2api-go/internal/credential"
	"ag2api-go/internal/errors"
	"ag2api-go/internal/oauth"
	"ag2api-go/internal/translator"
)

type memStore struct {
	accounts []*credential.Account
}

func (s *memStore) Load(context.Context) ([]*credential.Account, error) {
	out := make([]*credential.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *memStore) Save(context.Context, *credential.Account) error { return nil }

type countingRefresher struct {
	calls atomic.Int32
}

func (r *countingRefresher) RefreshToken(_ context.Context, creds *oauth.Credentials) error {
	r.calls.Add(1)
	creds.AccessToken = "refreshed-" + creds.AccessToken
	creds.ExpiresAt = time.Now().Add(time.Hour)
	return nil
}

func testAccount(id, token string, family credential.Family) *credential.Account {
	return &credential.Account{
		ID:           id,
		Family:       family,
		ProjectID:    "proj-" + id,
		AccessToken:  token,
		RefreshToken: "rt-" + id,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func newTestEngine(t *testing.T, refresher credential.TokenRefresher, endpoints []string, retries int, accounts ...*credential.Account) (*Engine, *credential.Pool) {
	t.Helper()
	pool, err := credential.NewPool(context.Background(), credential.Options{
		Store: &memStore{accounts: accounts},
		Refreshers: map[credential.Family]credential.TokenRefresher{
			credential.FamilyGeminiCLI:   refresher,
			credential.FamilyAntigravity: refresher,
		},
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.GeminiCLIEndpoints = endpoints
	cfg.AntigravityEndpoints = endpoints
	cfg.RetryMax = retries
	cfg.RetryOnNetworkError = true

	engine := NewEngine(EngineOptions{Pool: pool, Config: cfg})
	engine.sleep = func(context.Context, time.Duration) error { return nil }
	return engine, pool
}

func chatRequest(t *testing.T, model string) *translator.Request {
	t.Helper()
	req, apiErr := translator.ParseChatRequest([]byte(
		`{"model":"` + model + `","messages":[{"role":"user","content":"hi"}]}`))
	require.Nil(t, apiErr)
	return req
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer tok-a", r.Header.Get("Authorization"))
		w.Write([]byte(`{"response":{"candidates":[]}}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, &countingRefresher{}, []string{srv.URL}, 2,
		testAccount("a", "tok-a", credential.FamilyGeminiCLI))

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.Nil(t, apiErr)
	defer resp.Body.Close()
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "a", resp.Account.ID)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "candidates")
}

func TestExecuteRetriesTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"internal"}}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, &countingRefresher{}, []string{srv.URL}, 2,
		testAccount("a", "tok-a", credential.FamilyGeminiCLI))

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.Nil(t, apiErr)
	resp.Body.Close()
	assert.Equal(t, int32(2), hits.Load())
}

func TestExecuteRefreshesOn401(t *testing.T) {
	refresher := &countingRefresher{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer stale" {
			http.Error(w, `{"error":{"message":"unauthorized"}}`, http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, refresher, []string{srv.URL}, 2,
		testAccount("a", "stale", credential.FamilyGeminiCLI))

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.Nil(t, apiErr)
	resp.Body.Close()
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestExecuteRotatesOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-a" {
			http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, &countingRefresher{}, []string{srv.URL}, 2,
		testAccount("a", "tok-a", credential.FamilyGeminiCLI),
		testAccount("b", "tok-b", credential.FamilyGeminiCLI))

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.Nil(t, apiErr)
	resp.Body.Close()
	assert.Equal(t, "b", resp.Account.ID)
}

func TestExecuteDisablesAccountAfterSecondAuthFailure(t *testing.T) {
	refresher := &countingRefresher{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-b" {
			w.Write([]byte(`{}`))
			return
		}
		http.Error(w, `{"error":{"message":"unauthorized"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	engine, pool := newTestEngine(t, refresher, []string{srv.URL}, 3,
		testAccount("a", "tok-a", credential.FamilyGeminiCLI),
		testAccount("b", "tok-b", credential.FamilyGeminiCLI))

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.Nil(t, apiErr)
	resp.Body.Close()
	assert.Equal(t, "b", resp.Account.ID)
	assert.Equal(t, int32(1), refresher.calls.Load(),
		"one forced refresh, then the account is given up on")

	for _, acct := range pool.Accounts() {
		if acct.ID == "a" {
			assert.True(t, acct.Disabled, "account still rejected after refresh must be disabled")
		}
	}
}

func TestExecuteRetriesRefreshedTokenBeforeRotating(t *testing.T) {
	refresher := &countingRefresher{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-a" {
			http.Error(w, `{"error":{"message":"unauthorized"}}`, http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, refresher, []string{srv.URL}, 2,
		testAccount("a", "tok-a", credential.FamilyGeminiCLI),
		testAccount("b", "tok-b", credential.FamilyGeminiCLI))

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.Nil(t, apiErr)
	resp.Body.Close()
	assert.Equal(t, "a", resp.Account.ID, "refreshed account gets its retry before rotation")
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestExecuteSwitchesEndpointOn429(t *testing.T) {
	var primary, fallback atomic.Int32
	limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primary.Add(1)
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	}))
	defer limited.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallback.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer healthy.Close()

	engine, _ := newTestEngine(t, &countingRefresher{}, []string{limited.URL, healthy.URL}, 2,
		testAccount("a", "tok-a", credential.FamilyGeminiCLI))

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.Nil(t, apiErr)
	resp.Body.Close()
	assert.Equal(t, int32(1), primary.Load(), "rate-limited endpoint is abandoned, not hammered")
	assert.Equal(t, int32(1), fallback.Load())
}

func TestExecuteSwitchesEndpointOn503(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer good.Close()

	engine, _ := newTestEngine(t, &countingRefresher{}, []string{bad.URL, good.URL}, 2,
		testAccount("a", "tok-a", credential.FamilyGeminiCLI))

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.Nil(t, apiErr)
	resp.Body.Close()
}

func TestExecuteFatalNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, &countingRefresher{}, []string{srv.URL}, 3,
		testAccount("a", "tok-a", credential.FamilyGeminiCLI))

	_, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, int32(1), hits.Load())
}

func TestExecuteNoCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	engine, _ := newTestEngine(t, &countingRefresher{}, []string{srv.URL}, 1)

	_, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.NotNil(t, apiErr)
	assert.Equal(t, errors.CodeNoCredential, apiErr.Code)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus)
}

func TestExecuteHonorsRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			http.Error(w, `{"error":{"message":"slow down"}}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, &countingRefresher{}, []string{srv.URL}, 2,
		testAccount("a", "tok-a", credential.FamilyGeminiCLI))

	var slept time.Duration
	engine.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "gemini-2.5-flash"), false)
	require.Nil(t, apiErr)
	resp.Body.Close()
	assert.Equal(t, 7*time.Second, slept)
}

func TestExecuteAntigravityRestampsRequestID(t *testing.T) {
	seen := make(chan string, 2)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- string(body)
		if hits.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"internal"}}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, &countingRefresher{}, []string{srv.URL}, 2,
		testAccount("a", "tok-a", credential.FamilyAntigravity))

	resp, apiErr := engine.Execute(context.Background(), chatRequest(t, "ant/claude-sonnet-4-5"), true)
	require.Nil(t, apiErr)
	resp.Body.Close()

	first := <-seen
	second := <-seen
	assert.Contains(t, first, `"requestId":"agent-`)
	assert.NotEqual(t, firstRequestID(t, first), firstRequestID(t, second))
}

func firstRequestID(t *testing.T, body string) string {
	t.Helper()
	req := struct {
		RequestID string `json:"requestId"`
	}{}
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.NotEmpty(t, req.RequestID)
	return req.RequestID
}

func TestRingAdvanceWraps(t *testing.T) {
	ring := NewRing([]string{"a", "b"})
	assert.Equal(t, "a", ring.Current())
	assert.Equal(t, "b", ring.Advance())
	assert.Equal(t, "a", ring.Advance())
}

func TestSynthesizeProjectIDShape(t *testing.T) {
	id := SynthesizeProjectID()
	parts := 0
	for _, c := range id {
		if c == '-' {
			parts++
		}
	}
	assert.GreaterOrEqual(t, parts, 2, "adjective-noun-hex: %s", id)
}

func TestProjectResolverStoredPolicy(t *testing.T) {
	resolver := NewProjectResolver(ProjectPolicyStored)

	withProject := testAccount("a", "t", credential.FamilyAntigravity)
	project, ok := resolver.Resolve(withProject)
	require.True(t, ok)
	assert.Equal(t, "proj-a", project)

	withoutProject := testAccount("b", "t", credential.FamilyAntigravity)
	withoutProject.ProjectID = ""
	_, ok = resolver.Resolve(withoutProject)
	assert.False(t, ok)
}

func TestParseRetryAfterForms(t *testing.T) {
	d, ok := parseRetryAfter("30")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	d, ok = parseRetryAfter(time.Now().Add(10 * time.Second).UTC().Format(time.RFC1123))
	require.True(t, ok)
	assert.InDelta(t, 10, d.Seconds(), 2)

	_, ok = parseRetryAfter("")
	assert.False(t, ok)
}

package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type testTokenServer struct {
	server *httptest.Server

	mu          sync.Mutex
	refreshed   int
	lastClient  string
	failStatus  int
	failPayload string
}

func newTestTokenServer(t *testing.T) *testTokenServer {
	t.Helper()

	s := &testTokenServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.mu.Lock()
		s.lastClient = r.Form.Get("client_id")
		fail, payload := s.failStatus, s.failPayload
		if fail == 0 {
			s.refreshed++
		}
		s.mu.Unlock()

		if fail != 0 {
			w.WriteHeader(fail)
			_, _ = w.Write([]byte(payload))
			return
		}
		if r.Form.Get("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "refreshed-token",
			RefreshToken: "next-refresh-token",
			ExpiresIn:    3600,
		})
	})
	s.server = httptest.NewServer(mux)
	return s
}

func newTestManager(s *testTokenServer) *Manager {
	return NewManager(AntigravityClientID, AntigravityClientSecret,
		WithHTTPClient(s.server.Client()),
		WithTokenURL(s.server.URL+"/token"),
	)
}

func TestRefreshTokenUpdatesCredentials(t *testing.T) {
	s := newTestTokenServer(t)
	defer s.server.Close()

	m := newTestManager(s)
	creds := &Credentials{RefreshToken: "refresh-abc"}
	if err := m.RefreshToken(context.Background(), creds); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if creds.AccessToken != "refreshed-token" {
		t.Fatalf("unexpected access token %q", creds.AccessToken)
	}
	if creds.RefreshToken != "next-refresh-token" {
		t.Fatalf("refresh token not rotated: %q", creds.RefreshToken)
	}
	if creds.ExpiresAt.Before(time.Now().Add(50 * time.Minute)) {
		t.Fatalf("expiry not advanced: %v", creds.ExpiresAt)
	}
}

func TestRefreshTokenPrefersCredentialClient(t *testing.T) {
	s := newTestTokenServer(t)
	defer s.server.Close()

	m := newTestManager(s)
	creds := &Credentials{RefreshToken: "refresh-abc", ClientID: "per-cred-id", ClientSecret: "per-cred-secret"}
	if err := m.RefreshToken(context.Background(), creds); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if s.lastClient != "per-cred-id" {
		t.Fatalf("expected per-credential client id, got %q", s.lastClient)
	}
}

func TestRefreshTokenRevoked(t *testing.T) {
	s := newTestTokenServer(t)
	defer s.server.Close()
	s.failStatus = http.StatusBadRequest
	s.failPayload = `{"error":"invalid_grant"}`

	m := newTestManager(s)
	err := m.RefreshToken(context.Background(), &Credentials{RefreshToken: "dead"})
	if err == nil {
		t.Fatalf("expected error")
	}
	re, ok := err.(*RefreshError)
	if !ok {
		t.Fatalf("expected RefreshError, got %T", err)
	}
	if !re.Revoked() {
		t.Fatalf("expected revoked classification for 400")
	}
}

func TestRefreshTokenMissingRefreshToken(t *testing.T) {
	m := NewManager(GeminiCLIClientID, GeminiCLIClientSecret)
	if err := m.RefreshToken(context.Background(), &Credentials{}); err == nil {
		t.Fatalf("expected error for missing refresh token")
	}
}

func TestExpiredWithinMargin(t *testing.T) {
	c := &Credentials{ExpiresAt: time.Now().Add(2 * time.Minute)}
	if !c.IsExpired() {
		t.Fatalf("token expiring inside refresh-ahead window should read expired")
	}
	c.ExpiresAt = time.Now().Add(time.Hour)
	if c.IsExpired() {
		t.Fatalf("fresh token should not read expired")
	}
	if (&Credentials{}).IsExpired() != true {
		t.Fatalf("zero expiry should read expired")
	}
}

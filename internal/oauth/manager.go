package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"ag2api-go/internal/constants"
)

// Well-known desktop client identities. Accounts without their own client
// credentials refresh through the identity of the family they belong to.
const (
	GeminiCLIClientID     = "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com"
	GeminiCLIClientSecret = "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"

	AntigravityClientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	AntigravityClientSecret = "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"
)

// DefaultScopes grant Code Assist access plus account identification.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// ManagerOption customizes Manager creation.
type ManagerOption func(*Manager)

// Manager performs refresh-token grants against Google's token endpoint.
type Manager struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	endpoint     oauth2.Endpoint
	tokenURL     string
	now          func() time.Time
}

// NewManager creates a Manager with the given default client identity.
// Per-credential client overrides still win at refresh time.
func NewManager(clientID, clientSecret string, opts ...ManagerOption) *Manager {
	m := &Manager{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		endpoint:     google.Endpoint,
		tokenURL:     constants.OAuthTokenURL,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithHTTPClient overrides the HTTP client used for outbound calls.
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithTokenURL overrides the token refresh endpoint.
func WithTokenURL(tokenURL string) ManagerOption {
	return func(m *Manager) {
		if tokenURL != "" {
			m.tokenURL = tokenURL
		}
	}
}

// WithNowFunc overrides the clock used for time calculations (testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// OAuthConfig exposes the oauth2 configuration for auxiliary flows.
func (m *Manager) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.clientID,
		ClientSecret: m.clientSecret,
		Scopes:       append([]string(nil), DefaultScopes...),
		Endpoint:     m.endpoint,
	}
}

// RefreshToken exchanges the stored refresh token for a fresh access token
// and updates creds in place. The request is form-encoded; Google rejects
// JSON bodies on this endpoint.
func (m *Manager) RefreshToken(ctx context.Context, creds *Credentials) error {
	if creds.RefreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}

	clientID, clientSecret := m.clientID, m.clientSecret
	if creds.ClientID != "" {
		clientID = creds.ClientID
	}
	if creds.ClientSecret != "" {
		clientSecret = creds.ClientSecret
	}
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return fmt.Errorf("oauth client credentials not configured")
	}

	data := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"refresh_token": {creds.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &RefreshError{Status: resp.StatusCode, Body: string(body)}
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	creds.AccessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		creds.RefreshToken = tokenResp.RefreshToken
	}
	if tokenResp.ExpiresIn > 0 {
		creds.ExpiresAt = m.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	log.WithField("project", creds.ProjectID).Info("token refreshed")
	return nil
}

// RefreshError carries the token endpoint's HTTP failure so callers can
// distinguish a revoked grant (400/401) from a transient outage.
type RefreshError struct {
	Status int
	Body   string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed with status %d: %s", e.Status, e.Body)
}

// Revoked reports whether the failure means the refresh token is dead.
func (e *RefreshError) Revoked() bool {
	return e.Status == http.StatusBadRequest || e.Status == http.StatusUnauthorized ||
		(e.Status == http.StatusForbidden && strings.Contains(e.Body, "invalid_grant"))
}

package oauth

import (
	"time"

	"ag2api-go/internal/constants"
)

// Credentials represents the OAuth state attached to one upstream account.
type Credentials struct {
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	ProjectID    string    `json:"project_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// IsExpired reports whether the access token is expired or will be within
// the refresh-ahead window, so callers refresh before the token dies mid-request.
func (c *Credentials) IsExpired() bool {
	return c.ExpiredWithin(constants.TokenRefreshAhead)
}

// ExpiredWithin reports whether the token expires within margin from now.
func (c *Credentials) ExpiredWithin(margin time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(margin).After(c.ExpiresAt)
}

// TokenResponse represents the OAuth token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

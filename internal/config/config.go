package config

import (
	"ag2api-go/internal/common"
	"ag2api-go/internal/constants"
)

// Config is the full gateway configuration loaded from file plus
// environment overrides. Fields map 1:1 to YAML keys.
type Config struct {
	// Server settings
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"log_file"`

	// Client auth: bearer keys accepted on the OpenAI surface.
	APIKeys []string `yaml:"api_keys"`

	// Per-client rate limiting; zero disables it.
	RateLimitPerSec int `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int `yaml:"rate_limit_burst"`

	// Credential pool
	AccountsFile            string `yaml:"accounts_file"`
	WatchAccounts           bool   `yaml:"watch_accounts"`
	CallsPerRotation        int    `yaml:"calls_per_rotation"`
	RefreshAheadSec         int    `yaml:"refresh_ahead_sec"`
	AutoDisableEnabled      bool   `yaml:"auto_disable_enabled"`
	AutoDisableCodes        []int  `yaml:"auto_disable_codes"`
	AutoDisable429Threshold int    `yaml:"auto_disable_429_threshold"`
	AutoDisable401Threshold int    `yaml:"auto_disable_401_threshold"`
	AutoDisableConsecutive  int    `yaml:"auto_disable_consecutive_fails"`

	// Retry policy
	RetryMax            int  `yaml:"retry_max"`
	RetryIntervalSec    int  `yaml:"retry_interval_sec"`
	RetryMaxIntervalSec int  `yaml:"retry_max_interval_sec"`
	RetryOnNetworkError bool `yaml:"retry_on_network_error"`

	// Anti-truncation / continuation
	AntiTruncationEnabled bool   `yaml:"anti_truncation_enabled"`
	AntiTruncationMax     int    `yaml:"anti_truncation_max"`
	DoneMarker            string `yaml:"done_marker"`

	// Fake streaming
	FakeStreamingHeartbeatSec int `yaml:"fake_streaming_heartbeat_sec"`
	FakeStreamingChunkSize    int `yaml:"fake_streaming_chunk_size"`
	FakeStreamingDelayMs      int `yaml:"fake_streaming_delay_ms"`

	// Upstream settings
	GeminiCLIEndpoints   []string `yaml:"gemini_cli_endpoints"`
	AntigravityEndpoints []string `yaml:"antigravity_endpoints"`
	ProjectPolicy        string   `yaml:"project_policy"` // "stored" or "synthesize"
	ProxyURL             string   `yaml:"proxy_url"`
	OAuthClientID        string   `yaml:"oauth_client_id"`
	OAuthClientSecret    string   `yaml:"oauth_client_secret"`

	// Model surface
	DisabledModels []string `yaml:"disabled_models"`
}

// ProjectPolicy values.
const (
	ProjectPolicyStored     = "stored"
	ProjectPolicySynthesize = "synthesize"
)

// Default returns a Config populated with working defaults; Load overlays
// file and environment values on top of it.
func Default() *Config {
	return &Config{
		Host:                      "0.0.0.0",
		Port:                      8045,
		RateLimitBurst:            20,
		AccountsFile:              "accounts.toml",
		WatchAccounts:             true,
		CallsPerRotation:          10,
		RefreshAheadSec:           int(constants.TokenRefreshAhead.Seconds()),
		AutoDisableEnabled:        true,
		AutoDisableCodes:          []int{403},
		AutoDisable429Threshold:   constants.DefaultAutoDisable429Threshold,
		AutoDisable401Threshold:   constants.DefaultAutoDisable401Threshold,
		AutoDisableConsecutive:    constants.DefaultAutoDisableConsecutiveFails,
		RetryMax:                  constants.DefaultMaxAttempts,
		RetryIntervalSec:          1,
		RetryMaxIntervalSec:       30,
		RetryOnNetworkError:       true,
		AntiTruncationEnabled:     false,
		AntiTruncationMax:         constants.DefaultMaxContinuations,
		DoneMarker:                common.DefaultMarker,
		FakeStreamingHeartbeatSec: 5,
		FakeStreamingChunkSize:    64,
		FakeStreamingDelayMs:      20,
		GeminiCLIEndpoints:        append([]string(nil), constants.GeminiCLIEndpoints...),
		AntigravityEndpoints:      append([]string(nil), constants.AntigravityEndpoints...),
		ProjectPolicy:             ProjectPolicySynthesize,
	}
}

package config

import "fmt"

// Validate rejects configurations that cannot produce a working gateway.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.ProjectPolicy != ProjectPolicyStored && c.ProjectPolicy != ProjectPolicySynthesize {
		return fmt.Errorf("invalid project_policy %q (want %q or %q)",
			c.ProjectPolicy, ProjectPolicyStored, ProjectPolicySynthesize)
	}
	if c.CallsPerRotation < 1 {
		return fmt.Errorf("calls_per_rotation must be >= 1, got %d", c.CallsPerRotation)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry_max must be >= 0, got %d", c.RetryMax)
	}
	if c.AntiTruncationMax < 1 {
		return fmt.Errorf("anti_truncation_max must be >= 1, got %d", c.AntiTruncationMax)
	}
	if len(c.GeminiCLIEndpoints) == 0 {
		return fmt.Errorf("gemini_cli_endpoints must not be empty")
	}
	if len(c.AntigravityEndpoints) == 0 {
		return fmt.Errorf("antigravity_endpoints must not be empty")
	}
	if c.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec must be >= 0, got %d", c.RateLimitPerSec)
	}
	if c.FakeStreamingChunkSize < 1 {
		return fmt.Errorf("fake_streaming_chunk_size must be >= 1, got %d", c.FakeStreamingChunkSize)
	}
	return nil
}

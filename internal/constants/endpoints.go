package constants

// Upstream endpoint defaults. Each family carries an ordered candidate list;
// the resilience engine walks the list on endpoint-level failures.
var (
	GeminiCLIEndpoints = []string{
		"https://cloudcode-pa.googleapis.com",
	}
	AntigravityEndpoints = []string{
		"https://cloudcode-pa.googleapis.com",
		"https://daily-cloudcode-pa.sandbox.googleapis.com",
	}
)

const (
	// OAuthTokenURL is Google's token endpoint used for refresh grants.
	OAuthTokenURL = "https://oauth2.googleapis.com/token"

	// GeminiCLIAPIVersion prefixes Code Assist RPC paths.
	GeminiCLIAPIVersion = "v1internal"

	// Client identity presented to the antigravity backend.
	AntigravityUserAgent  = "antigravity/1.11.3 windows/amd64"
	AntigravityClientName = "antigravity"

	// GeminiCLIUserAgent matches the official gemini-cli client.
	GeminiCLIUserAgent = "google-api-nodejs-client/9.15.1"
)

package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"ag2api-go/internal/constants"
	"ag2api-go/internal/credential"
)

const (
	pathStreamGenerate = "/" + constants.GeminiCLIAPIVersion + ":streamGenerateContent"
	pathGenerate       = "/" + constants.GeminiCLIAPIVersion + ":generateContent"
	pathFetchModels    = "/" + constants.GeminiCLIAPIVersion + ":fetchAvailableModels"

	clientMetadata = "ideType=IDE_UNSPECIFIED,platform=PLATFORM_UNSPECIFIED,pluginType=GEMINI"
)

// generateURL builds the generateContent URL on the given endpoint.
func generateURL(endpoint string, stream bool) string {
	if stream {
		return endpoint + pathStreamGenerate + "?alt=sse"
	}
	return endpoint + pathGenerate
}

func modelsURL(endpoint string) string {
	return endpoint + pathFetchModels
}

// newUpstreamRequest builds a POST with the family's client
// fingerprint applied.
func newUpstreamRequest(ctx context.Context, family credential.Family, url string, payload []byte, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	applyFingerprint(req, family)
	return req, nil
}

func applyFingerprint(req *http.Request, family credential.Family) {
	switch family {
	case credential.FamilyAntigravity:
		req.Header.Set("User-Agent", constants.AntigravityUserAgent)
		req.Header.Set("X-Goog-Api-Client", "gl-node/22.17.0")
	default:
		req.Header.Set("User-Agent", generateGeminiCLIUserAgent())
		gv := strings.TrimPrefix(runtime.Version(), "go")
		req.Header.Set("X-Goog-Api-Client", "gl-go/"+gv)
	}
	req.Header.Set("Client-Metadata", clientMetadata)
}

// generateGeminiCLIUserAgent mimics the official CLI's User-Agent.
func generateGeminiCLIUserAgent() string {
	return fmt.Sprintf("gemini-code-assist-cli/1.0.0 (%s; %s) %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version())
}

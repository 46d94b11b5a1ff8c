package errors

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

const maxUpstreamMessageBytes = 200

// statusTaxonomy maps upstream HTTP statuses onto the gateway's error
// taxonomy. Statuses outside the table fall through to unknown_error.
var statusTaxonomy = map[int]struct {
	code     string
	errType  string
	fallback string
}{
	http.StatusBadRequest:          {CodeInvalidRequest, "invalid_request_error", "Invalid request"},
	http.StatusUnauthorized:        {CodeInvalidAPIKey, "authentication_error", "Invalid authentication"},
	http.StatusForbidden:           {CodePermissionDenied, "permission_error", "Permission denied"},
	http.StatusNotFound:            {CodeNotFound, "invalid_request_error", "Resource not found"},
	http.StatusTooManyRequests:     {CodeRateLimited, "rate_limit_error", "Rate limit exceeded"},
	http.StatusInternalServerError: {CodeServerError, "server_error", "Internal server error"},
	http.StatusBadGateway:          {CodeBadGateway, "server_error", "Bad gateway"},
	http.StatusServiceUnavailable:  {CodeUnavailable, "server_error", "Service temporarily unavailable"},
	http.StatusGatewayTimeout:      {CodeTimeout, "timeout_error", "Request timeout"},
}

// MapHTTPError turns an upstream HTTP failure into the gateway's error
// taxonomy, preferring the upstream's own message when one is present.
func MapHTTPError(statusCode int, upstreamBody []byte) *APIError {
	msg := upstreamMessage(upstreamBody)
	tax, ok := statusTaxonomy[statusCode]
	if !ok {
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d error", statusCode)
		}
		return New(statusCode, CodeUnknown, "server_error", msg)
	}
	if msg == "" {
		msg = tax.fallback
	}
	return New(statusCode, tax.code, tax.errType, msg)
}

// upstreamMessage digs the human-readable message out of a
// generateContent error envelope, falling back to the raw body,
// truncated so an HTML error page cannot flood the client.
func upstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.String() != "" {
		return msg.String()
	}
	raw := string(body)
	if len(raw) > maxUpstreamMessageBytes {
		return raw[:maxUpstreamMessageBytes] + "..."
	}
	return raw
}

package errors

// ErrorFormat represents the target error format.
type ErrorFormat string

const (
	FormatOpenAI ErrorFormat = "openai"
	FormatGemini ErrorFormat = "gemini"
)

// APIError represents a standardized error across upstream providers.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
	Type       string
	Details    map[string]interface{}
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// OpenAIError mirrors OpenAI's error envelope.
type OpenAIError struct {
	Error struct {
		Message string                 `json:"message"`
		Type    string                 `json:"type"`
		Code    string                 `json:"code,omitempty"`
		Param   string                 `json:"param,omitempty"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// GeminiError mirrors the generateContent error structure.
type GeminiError struct {
	Error struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Status  string                 `json:"status"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// Gateway error taxonomy. The first group originates inside the
// gateway; the second names upstream HTTP failures.
const (
	CodeNoCredential        = "no_credential_available"
	CodeTruncationExhausted = "truncation_exhausted"
	CodeStreamDecode        = "stream_decode_error"

	CodeInvalidRequest   = "invalid_request_error"
	CodeInvalidAPIKey    = "invalid_api_key"
	CodePermissionDenied = "permission_denied"
	CodeNotFound         = "not_found"
	CodeRateLimited      = "rate_limit_exceeded"
	CodeServerError      = "server_error"
	CodeBadGateway       = "bad_gateway"
	CodeUnavailable      = "service_unavailable"
	CodeTimeout          = "timeout"
	CodeUnknown          = "unknown_error"
)

package logging

// Outcome buckets a finished call into a short label for logs and
// metrics. Status 0 with an error means the request never produced a
// response at all.
func Outcome(status int, hasErr bool) string {
	if hasErr && status == 0 {
		return "network_error"
	}
	switch {
	case status == 401:
		return "auth_rejected"
	case status == 403:
		return "forbidden"
	case status == 429:
		return "rate_limited"
	case status >= 500 && status < 600:
		return "upstream_5xx"
	case status >= 400 && status < 500:
		return "client_4xx"
	}
	if hasErr {
		return "error"
	}
	return "ok"
}

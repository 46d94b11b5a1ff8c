package upstream

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"ag2api-go/internal/constants"
)

// nextBackoff computes the delay before the given retry attempt:
// base * 2^attempt with jitter, capped at the ceiling.
func nextBackoff(attempt int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		base = constants.DefaultRetryBase
	}
	if ceiling <= 0 {
		ceiling = constants.DefaultRetryCeiling
	}
	dur := float64(base) * math.Pow(constants.RetryBackoffFactor, float64(attempt))
	if dur > float64(ceiling) {
		dur = float64(ceiling)
	}
	jitter := 0.5 + rand.Float64()
	return time.Duration(dur * jitter)
}

// parseRetryAfter decodes a Retry-After header, either delta-seconds
// or an HTTP date.
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, v); err == nil {
			d := time.Until(t)
			if d < 0 {
				d = 0
			}
			return d, true
		}
	}
	return 0, false
}

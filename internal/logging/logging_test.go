package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeBuckets(t *testing.T) {
	cases := []struct {
		status int
		hasErr bool
		want   string
	}{
		{200, false, "ok"},
		{200, true, "error"},
		{0, true, "network_error"},
		{401, false, "auth_rejected"},
		{403, false, "forbidden"},
		{429, false, "rate_limited"},
		{404, false, "client_4xx"},
		{503, false, "upstream_5xx"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Outcome(tc.status, tc.hasErr), "status %d", tc.status)
	}
}

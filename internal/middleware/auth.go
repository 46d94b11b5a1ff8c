package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth checks the request against the configured bearer keys. An
// empty key list disables authentication. Keys are also accepted via the
// x-api-key header and the ?key= query parameter.
func APIKeyAuth(keys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}

		provided := bearerToken(c.GetHeader("Authorization"))
		if provided == "" {
			provided = c.GetHeader("x-api-key")
		}
		if provided == "" {
			provided = c.Query("key")
		}

		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
				c.Set("api_key", key)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"message": "invalid API key",
				"type":    "authentication_error",
				"code":    "invalid_api_key",
			},
		})
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(header)
}

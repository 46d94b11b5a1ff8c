package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"ag2api-go/internal/logging"
)

// RequestLogger logs one structured line per HTTP request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logging.WithReq(c, log.Fields{
			"status":     c.Writer.Status(),
			"outcome":    logging.Outcome(c.Writer.Status(), len(c.Errors) > 0),
			"latency_ms": logging.DurationMS(time.Since(start)),
			"user_agent": c.Request.UserAgent(),
		}).Info("http_request")
	}
}

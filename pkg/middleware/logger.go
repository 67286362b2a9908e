package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs mutating API requests with zap. Metrics scrapes, static
// assets, and plain GET traffic are skipped to keep the log signal useful.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		if method == "GET" ||
			strings.Contains(path, "/metrics") ||
			strings.Contains(path, "/favicon.ico") {
			return
		}

		logger.Info("request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

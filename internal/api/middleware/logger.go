package middleware

import (
	"strconv"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Logger logs one line per request and counts it by route template.
func Logger(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		if status >= 500 {
			logger.Error("%s %s %d %s %s", c.Request.Method, path, status, time.Since(start), c.ClientIP())
			return
		}
		logger.Info("%s %s %d %s %s", c.Request.Method, path, status, time.Since(start), c.ClientIP())
	}
}

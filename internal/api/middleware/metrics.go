package middleware

import (
	"strconv"
	"time"

	"gw-lending/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics считает запросы по шаблону маршрута, чтобы id в пути не
// раздували кардинальность
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		m.Requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

package server

import (
	"errors"
	"time"

	"ollamagate/internal/core"
	"ollamagate/internal/metrics"

	"github.com/gin-gonic/gin"
)

// respondWithError writes the {"error": message} body used by every endpoint.
func respondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

// recordRequestResultWithMetrics records request result
func recordRequestResultWithMetrics(m *metrics.MetricsService, success bool, startTime time.Time, model, endpoint string) {
	if success {
		metrics.RecordSuccessWithMetrics(m, startTime, model, endpoint)
	} else {
		metrics.RecordFailureWithMetrics(m, startTime, model, endpoint)
	}
}

// upstreamStatus returns the status to relay for a gateway failure and
// whether the daemon itself rejected the request.
func upstreamStatus(err error) (int, bool) {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) && gwErr.Kind == core.KindUpstreamRejected && gwErr.Status > 0 {
		return gwErr.Status, true
	}
	return 0, false
}

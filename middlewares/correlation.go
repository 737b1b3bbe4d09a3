package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/rentals_backend/utils"
)

const CorrelationHeader = "x-correlation-id"

// maxCorrelationIdLength matches the audit row's correlation_id column.
const maxCorrelationIdLength = 64

func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(CorrelationHeader))
		if cid == "" || len(cid) > maxCorrelationIdLength {
			cid = uuid.NewString()
		}
		c.Writer.Header().Set(CorrelationHeader, cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}
